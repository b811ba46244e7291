package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/smallbiznis/subsight/internal/analytics"
	analyticsdomain "github.com/smallbiznis/subsight/internal/analytics/domain"
	"github.com/smallbiznis/subsight/internal/config"
	"github.com/smallbiznis/subsight/internal/connection"
	connectiondomain "github.com/smallbiznis/subsight/internal/connection/domain"
	"github.com/smallbiznis/subsight/internal/observability"
	obsmiddleware "github.com/smallbiznis/subsight/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/subsight/internal/observability/metrics"
	obstracing "github.com/smallbiznis/subsight/internal/observability/tracing"
)

var Module = fx.Module("http.server",
	connection.Module,
	analytics.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	connectionSvc connectiondomain.Service
	analyticsSvc  analyticsdomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	ConnectionSvc connectiondomain.Service
	AnalyticsSvc  analyticsdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		connectionSvc: p.ConnectionSvc,
		analyticsSvc:  p.AnalyticsSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	stripeGroup := api.Group("/stripe")
	stripeGroup.POST("/connect", s.ConnectStripe)
	stripeGroup.GET("/connect", s.ConnectionStatus)
	stripeGroup.DELETE("/connect", s.DisconnectStripe)

	analyticsGroup := api.Group("/analytics")
	analyticsGroup.POST("/sync", s.SyncAnalytics)
	analyticsGroup.GET("/monthly-breakdown", s.MonthlyBreakdown)
	analyticsGroup.GET("/snapshot", s.SnapshotOverview)
	analyticsGroup.GET("/snapshot/rows", s.SnapshotRows)
}

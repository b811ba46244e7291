package stripedata

import (
	"errors"
	"fmt"
	"net/http"

	stripe "github.com/stripe/stripe-go/v79"
)

var (
	// ErrAuthorization means the stored key was rejected. The connection
	// must be marked invalid; retrying will not help.
	ErrAuthorization = errors.New("stripe authorization failed")
	// ErrTransient covers rate limits, Stripe outages and network
	// failures. The run can be retried later with the same key.
	ErrTransient = errors.New("stripe temporarily unavailable")
)

// Classify buckets a Stripe call error so callers can decide between
// invalidating the connection and scheduling a retry.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Type == stripe.ErrorType("authentication_error"),
			stripeErr.HTTPStatusCode == http.StatusUnauthorized,
			stripeErr.HTTPStatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrAuthorization, stripeErr.Msg)
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
			stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %s", ErrTransient, stripeErr.Msg)
		default:
			return err
		}
	}

	// Anything that never produced a Stripe error is a transport
	// failure: DNS, timeouts, connection resets.
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

func IsAuthorization(err error) bool {
	return errors.Is(err, ErrAuthorization)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

package domain

import "context"

// KeyValidator checks an API key against Stripe before it is stored.
type KeyValidator interface {
	ValidateKey(ctx context.Context, apiKey string) (accountID string, err error)
}

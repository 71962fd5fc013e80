// Package salesforce pulls recently created Salesforce leads into
// lead_master.
package salesforce

import (
	"context"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client is the Salesforce surface the sync uses.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
}

// Config provides Salesforce credentials.
type Config interface {
	GetSalesforceDomain() string
	GetSalesforceUsername() string
	GetSalesforcePassword() string
	GetSalesforceSecurityToken() string
	GetSalesforceConsumerKey() string
	GetSalesforceConsumerSecret() string
	GetSalesforceRateLimit() float64
}

// ClientOption configures the Salesforce client.
type ClientOption func(*sfClient)

// WithRateLimit sets a per-second rate limit for SF API calls.
func WithRateLimit(rps float64) ClientOption {
	return func(c *sfClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// sfClient wraps go-salesforce. The library takes no context, so ctx only
// bounds the rate limiter wait.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient wraps an authenticated go-salesforce instance.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect authenticates with the username-password flow.
func Connect(cfg Config) (Client, error) {
	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.GetSalesforceDomain(),
		Username:       cfg.GetSalesforceUsername(),
		Password:       cfg.GetSalesforcePassword(),
		SecurityToken:  cfg.GetSalesforceSecurityToken(),
		ConsumerKey:    cfg.GetSalesforceConsumerKey(),
		ConsumerSecret: cfg.GetSalesforceConsumerSecret(),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}
	return NewClient(sf, WithRateLimit(cfg.GetSalesforceRateLimit())), nil
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "sf: rate limit")
		}
	}
	if err := c.sf.Query(soql, out); err != nil {
		return eris.Wrap(err, "sf: query")
	}
	return nil
}

package db

import (
	"context"
	"time"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolAdapter exposes a pool as the HTTP layer's health checker.
type PoolAdapter struct {
	pool    Pinger
	timeout time.Duration
}

// NewPoolAdapter wraps pool; each ping is bounded by two seconds.
func NewPoolAdapter(pool Pinger) *PoolAdapter {
	return &PoolAdapter{pool: pool, timeout: 2 * time.Second}
}

// Ping checks database connectivity.
func (a *PoolAdapter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.pool.Ping(ctx)
}

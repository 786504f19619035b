// Package repository persists fit reviews and résumé metadata with gorm.
package repository

import (
	"time"

	"github.com/okian/aireview/pkg/logger"
)

const (
	defaultListLimit     = 50
	maxListLimit         = 500
	defaultSlowThreshold = 200 * time.Millisecond
)

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	log           logger.Logger
	defaultLimit  int
	slowThreshold time.Duration
}

func defaultOptions() options {
	return options{
		defaultLimit:  defaultListLimit,
		slowThreshold: defaultSlowThreshold,
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithDefaultLimit sets the page size List uses when the filter has none.
func WithDefaultLimit(n int) Option {
	return func(o *options) {
		if n > 0 && n <= maxListLimit {
			o.defaultLimit = n
		}
	}
}

// WithSlowThreshold sets the duration above which queries are logged at warn.
func WithSlowThreshold(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.slowThreshold = d
		}
	}
}

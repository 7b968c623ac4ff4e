// Package retry runs a function until it succeeds, its budget is
// exhausted, or the caller's context is cancelled.
package retry

import (
	"context"
	"time"

	"github.com/ubsv-storage/validator-core/ulogger"
)

// Options configures a RetryWithLogger call. Defaults: 3 retries, a
// one-second linear backoff, logged under the message "In RetryWithLogger, ".
type Options func(s *SetOptions)

type SetOptions struct {
	Message             string
	BackoffDurationType time.Duration
	BackoffMultiplier   int
	RetryCount          int
	InfiniteRetry       bool
	ExponentialBackoff  bool
	BackoffFactor       float64
	MaxBackoff          time.Duration
}

func NewSetOptions(opts ...Options) *SetOptions {
	options := &SetOptions{}
	options.setDefaults()

	for _, opt := range opts {
		opt(options)
	}

	return options
}

func (o *SetOptions) setDefaults() {
	o.Message = "In RetryWithLogger, "
	o.BackoffDurationType = time.Second
	o.BackoffMultiplier = 2
	o.RetryCount = 3
	o.InfiniteRetry = false
	o.ExponentialBackoff = false
	o.BackoffFactor = 2.0
	o.MaxBackoff = 30 * time.Second
}

func WithMessage(message string) Options {
	return func(s *SetOptions) {
		s.Message = message
	}
}

func WithBackoffDurationType(retryTime time.Duration) Options {
	return func(s *SetOptions) {
		s.BackoffDurationType = retryTime
	}
}

func WithBackoffMultiplier(backoffMultiplier int) Options {
	return func(s *SetOptions) {
		s.BackoffMultiplier = backoffMultiplier
	}
}

func WithRetryCount(retryCount int) Options {
	return func(s *SetOptions) {
		s.RetryCount = retryCount
	}
}

func WithInfiniteRetry() Options {
	return func(s *SetOptions) {
		s.InfiniteRetry = true
	}
}

func WithExponentialBackoff() Options {
	return func(s *SetOptions) {
		s.ExponentialBackoff = true
	}
}

func WithBackoffFactor(factor float64) Options {
	return func(s *SetOptions) {
		s.BackoffFactor = factor
	}
}

func WithMaxBackoff(maxBackoff time.Duration) Options {
	return func(s *SetOptions) {
		s.MaxBackoff = maxBackoff
	}
}

// RetryWithLogger runs fn until it succeeds, the retry budget is exhausted,
// or ctx is cancelled, logging each retry through logger. Used by the
// reward aggregator's weight-submission path.
func RetryWithLogger(ctx context.Context, logger ulogger.Logger, fn func() error, opts ...Options) error {
	options := NewSetOptions(opts...)

	var err error
	backoff := options.BackoffDurationType

	for attempt := 0; options.InfiniteRetry || attempt <= options.RetryCount; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		if !options.InfiniteRetry && attempt == options.RetryCount {
			break
		}

		logger.Warnf("%s attempt %d failed: %v", options.Message, attempt+1, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if options.ExponentialBackoff {
			backoff = time.Duration(float64(backoff) * options.BackoffFactor)
			if backoff > options.MaxBackoff {
				backoff = options.MaxBackoff
			}
		} else {
			backoff = options.BackoffDurationType * time.Duration(options.BackoffMultiplier*(attempt+1))
		}
	}

	return err
}

package graphstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ontology-impact/pkg/apperrors"
)

// BreakerConfig holds configuration for the circuit breaker guarding the graph store.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// StateListener is notified when the breaker changes state.
type StateListener func(name string, from, to gobreaker.State)

func newBreaker(name string, cfg BreakerConfig, logger *zap.Logger, listener StateListener) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Graph store circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if listener != nil {
				listener(name, from, to)
			}
		},
		// Only outages count against the store; a rejected query is the caller's problem
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, apperrors.ErrStoreUnavailable)
		},
	})
}

// breakerError maps breaker rejections to StoreUnavailable.
func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.NewStoreUnavailable(storeName, fmt.Errorf("%w: %w", apperrors.ErrCircuitOpen, err))
	}
	return err
}

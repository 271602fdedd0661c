package broker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"tinyex.com/pkg/logger"
)

type BreakerRule struct {
	MaxRequests uint32        // probes let through while half-open
	Interval    time.Duration // closed-state counting window
	Timeout     time.Duration // open-state duration

	TripConsecutiveFailures uint32
	TripFailureRate         float64 // 0~1
	TripMinRequests         uint32  // samples before the rate applies
}

// Breaker fails Publish fast while the wrapped broker keeps erroring, so a
// dead NATS server does not stall the feed.
type Breaker struct {
	Broker
	cb *gobreaker.CircuitBreaker[struct{}]
}

func NewBreaker(name string, inner Broker, rule BreakerRule) *Breaker {
	if rule.MaxRequests == 0 {
		rule.MaxRequests = 5
	}
	if rule.Timeout <= 0 {
		rule.Timeout = 3 * time.Second
	}
	if rule.Interval <= 0 {
		rule.Interval = 10 * time.Second
	}
	if rule.TripConsecutiveFailures == 0 && rule.TripFailureRate == 0 {
		rule.TripConsecutiveFailures = 10
	}
	if rule.TripMinRequests == 0 {
		rule.TripMinRequests = 20
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: rule.MaxRequests,
		Interval:    rule.Interval,
		Timeout:     rule.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if rule.TripConsecutiveFailures > 0 && c.ConsecutiveFailures >= rule.TripConsecutiveFailures {
				return true
			}
			if rule.TripFailureRate > 0 && c.Requests >= rule.TripMinRequests {
				return float64(c.TotalFailures)/float64(c.Requests) >= rule.TripFailureRate
			}
			return false
		},
		IsSuccessful: func(err error) bool {
			// the caller gave up; says nothing about the broker
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "broker breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &Breaker{Broker: inner, cb: gobreaker.NewCircuitBreaker[struct{}](st)}
}

// Publish returns gobreaker.ErrOpenState or ErrTooManyRequests without
// calling the broker while the circuit is open.
func (b *Breaker) Publish(ctx context.Context, topic string, payload []byte) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.Broker.Publish(ctx, topic, payload)
	})
	return err
}

func (b *Breaker) State() gobreaker.State { return b.cb.State() }

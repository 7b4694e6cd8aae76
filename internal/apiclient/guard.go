package apiclient

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
	"github.com/xela07ax/sitevitals-console/internal/domain"
	"github.com/xela07ax/sitevitals-console/internal/infra"
	"golang.org/x/time/rate"
)

// callGuard оборачивает каждый исходящий вызов в Circuit Breaker и
// клиентский rate limiter. Ретраев здесь НЕТ намеренно: политика сервиса —
// любая ошибка доходит до вызывающего, повтор только по явному действию
// пользователя.
type callGuard struct {
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newCallGuard(cfg infra.AuditAPIConfig) *callGuard {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "audit-api",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// RemoteError — сервис жив и ответил по протоколу. Предохранитель
		// должен выбивать только на транспортных сбоях.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var rErr *domain.RemoteError
			return errors.As(err, &rErr)
		},
	})

	return &callGuard{
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.OutboundRPS), cfg.OutboundBurst),
	}
}

func (g *callGuard) Do(ctx context.Context, call func() ([]byte, error)) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, &domain.TransportError{Cause: err}
	}

	result, err := g.cb.Execute(func() (interface{}, error) {
		return call()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domain.TransportError{Cause: err}
		}
		return nil, err
	}

	return result.([]byte), nil
}

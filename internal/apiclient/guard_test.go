package apiclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/sitevitals-console/internal/domain"
	"github.com/xela07ax/sitevitals-console/internal/infra"
)

func newTestGuard() *callGuard {
	return newCallGuard(infra.AuditAPIConfig{
		CBMaxRequests: 1,
		CBInterval:    time.Minute,
		CBTimeout:     time.Minute,
		OutboundRPS:   1000,
		OutboundBurst: 100,
	})
}

func TestGuard_TransportFailuresTripBreaker(t *testing.T) {
	guard := newTestGuard()
	failing := func() ([]byte, error) {
		return nil, &domain.TransportError{Cause: errors.New("connection refused")}
	}

	for i := 0; i < 6; i++ {
		_, err := guard.Do(context.Background(), failing)
		var tErr *domain.TransportError
		require.ErrorAs(t, err, &tErr)
	}

	// Предохранитель открыт: вызов не доходит до функции
	called := false
	_, err := guard.Do(context.Background(), func() ([]byte, error) {
		called = true
		return nil, nil
	})

	var tErr *domain.TransportError
	require.ErrorAs(t, err, &tErr)
	assert.False(t, called)
}

func TestGuard_RemoteErrorsDoNotTripBreaker(t *testing.T) {
	guard := newTestGuard()
	rejecting := func() ([]byte, error) {
		return nil, &domain.RemoteError{StatusCode: 402, Message: "quota exceeded"}
	}

	for i := 0; i < 20; i++ {
		_, err := guard.Do(context.Background(), rejecting)
		var rErr *domain.RemoteError
		require.ErrorAs(t, err, &rErr, "call %d", i)
	}

	// Сервис отвечает по протоколу — трафик не блокируется
	data, err := guard.Do(context.Background(), func() ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
}

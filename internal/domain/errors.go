package domain

import (
	"errors"
	"fmt"
)

// Таксономия ошибок всего сервиса. Координатор и API-клиент никогда
// не ретраят сами — любая из этих ошибок доходит до вызывающего,
// и уже он решает, показывать ли Retry.
var (
	ErrNotConfigured    = errors.New("api key is not configured")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidResponse  = errors.New("unexpected response from remote service")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrDuplicate        = errors.New("duplicate record")
)

// RemoteError — удаленный сервис ответил >= 400. Сообщение вытаскиваем
// из тела ошибки (поле detail) и прокидываем наверх без изменений.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote service error [%d]: %s", e.StatusCode, e.Message)
}

// TransportError — сеть/таймаут/обрыв, до удаленного сервиса не достучались.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote service unreachable: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

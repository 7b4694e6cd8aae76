package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormTokenIssuer — анти-CSRF токен для анонимных форм (запуск аудита,
// сбор email). Формат: base64(unix_ts) + "." + base64(hmac-sha256(ts)).
// Состояния на сервере нет: валидность определяется подписью и сроком.
type FormTokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewFormTokenIssuer(secret string, ttl time.Duration) *FormTokenIssuer {
	return &FormTokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue выпускает токен от текущего момента.
func (f *FormTokenIssuer) Issue() string {
	return f.issueAt(time.Now())
}

func (f *FormTokenIssuer) issueAt(t time.Time) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	mac := hmac.New(sha256.New, f.secret)
	mac.Write([]byte(ts))
	sig := mac.Sum(nil)

	return base64.RawURLEncoding.EncodeToString([]byte(ts)) + "." +
		base64.RawURLEncoding.EncodeToString(sig)
}

// Verify проверяет подпись и срок жизни токена.
func (f *FormTokenIssuer) Verify(token string) error {
	return f.verifyAt(token, time.Now())
}

func (f *FormTokenIssuer) verifyAt(token string, now time.Time) error {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("malformed form token")
	}

	tsRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return fmt.Errorf("malformed form token timestamp")
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("malformed form token signature")
	}

	mac := hmac.New(sha256.New, f.secret)
	mac.Write(tsRaw)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return fmt.Errorf("form token signature mismatch")
	}

	ts, err := strconv.ParseInt(string(tsRaw), 10, 64)
	if err != nil {
		return fmt.Errorf("malformed form token timestamp")
	}

	issued := time.Unix(ts, 0)
	if now.Sub(issued) > f.ttl || issued.After(now.Add(time.Minute)) {
		return fmt.Errorf("form token expired")
	}
	return nil
}

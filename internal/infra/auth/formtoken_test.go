package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormToken_RoundTrip(t *testing.T) {
	issuer := NewFormTokenIssuer("secret", time.Hour)

	token := issuer.Issue()
	require.NoError(t, issuer.Verify(token))
}

func TestFormToken_Expired(t *testing.T) {
	issuer := NewFormTokenIssuer("secret", time.Hour)

	token := issuer.issueAt(time.Now().Add(-2 * time.Hour))
	assert.Error(t, issuer.Verify(token))
}

func TestFormToken_FromTheFuture(t *testing.T) {
	issuer := NewFormTokenIssuer("secret", time.Hour)

	// Допуск на рассинхронизацию часов — минута, больше не прощаем
	token := issuer.issueAt(time.Now().Add(10 * time.Minute))
	assert.Error(t, issuer.Verify(token))
}

func TestFormToken_WrongSecret(t *testing.T) {
	issuer := NewFormTokenIssuer("secret", time.Hour)
	other := NewFormTokenIssuer("another", time.Hour)

	assert.Error(t, other.Verify(issuer.Issue()))
}

func TestFormToken_Malformed(t *testing.T) {
	issuer := NewFormTokenIssuer("secret", time.Hour)

	for _, token := range []string{"", "nodot", "a.b", "!!!.???"} {
		assert.Error(t, issuer.Verify(token), "token %q", token)
	}
}

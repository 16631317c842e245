package web

import (
	"testing"
	"time"

	"github.com/askanium/gcleaner-backend/collect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	raw, err := issuer.Issue(collect.Principal{ID: 42, Email: "me@email.com"},
		&oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: expiry})
	require.NoError(t, err)

	claims, err := issuer.Parse(raw)
	require.NoError(t, err)
	principal, err := claims.Principal()
	require.NoError(t, err)
	assert.Equal(t, collect.Principal{ID: 42, Email: "me@email.com"}, principal)

	token := claims.OAuthToken()
	assert.Equal(t, "access", token.AccessToken)
	assert.Equal(t, "refresh", token.RefreshToken)
	assert.True(t, expiry.Equal(token.Expiry))
}

func TestTokenRejected(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	raw, err := issuer.Issue(collect.Principal{ID: 1}, &oauth2.Token{})
	require.NoError(t, err)

	_, err = NewTokenIssuer("other-secret", time.Hour).Parse(raw)
	assert.ErrorIs(t, err, errInvalidToken)

	expired := NewTokenIssuer("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = expired.Parse(raw)
	assert.ErrorIs(t, err, errInvalidToken)
}

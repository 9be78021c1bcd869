package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evercrisp-ai/Ben-OS-sub001/api"
)

func TestSignTokenAcceptedBySharedSecretAuth(t *testing.T) {
	tok, err := signToken("s3cret", "user-1", time.Hour, time.Now())
	require.NoError(t, err)

	auth := api.NewAuth(nil, "", "", api.WithSharedSecret([]byte("s3cret")))
	user, err := auth.UserIDFromAuthHeader("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user)

	other := api.NewAuth(nil, "", "", api.WithSharedSecret([]byte("different")))
	_, err = other.UserIDFromAuthHeader("Bearer " + tok)
	assert.Error(t, err)
}

func TestSignTokenExpired(t *testing.T) {
	tok, err := signToken("s3cret", "user-1", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	auth := api.NewAuth(nil, "", "", api.WithSharedSecret([]byte("s3cret")))
	_, err = auth.UserIDFromAuthHeader("Bearer " + tok)
	assert.Error(t, err)
}

func TestSignTokenRequiresSecret(t *testing.T) {
	_, err := signToken("", "user-1", time.Hour, time.Now())
	assert.Error(t, err)
}

func TestTokenCommandReadsSecretFromEnv(t *testing.T) {
	t.Setenv("BOARDCTL_JWT_SECRET", "s3cret")

	out, err := run(t, "token", "user-2")
	require.NoError(t, err)
	tok := strings.TrimSpace(out)
	assert.Equal(t, 2, strings.Count(tok, "."))

	auth := api.NewAuth(nil, "", "", api.WithSharedSecret([]byte("s3cret")))
	user, err := auth.UserIDFromAuthHeader("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, "user-2", user)
}

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoneVerifierAlwaysPasses(t *testing.T) {
	v, err := NewVerifier(Config{Mode: ModeNone})
	require.NoError(t, err)
	assert.NoError(t, v.Verify(httptest.NewRequest(http.MethodPost, "/", nil), nil))
}

func TestStaticKeyVerifier(t *testing.T) {
	v, err := NewVerifier(Config{Mode: ModeStaticKey, StaticKey: "secret123"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.ErrorIs(t, v.Verify(req, nil), ErrMissingAPIKey)

	req.Header.Set("X-API-Key", "wrong")
	assert.ErrorIs(t, v.Verify(req, nil), ErrAPIKeyMismatch)

	req.Header.Set("X-API-Key", "secret123")
	assert.NoError(t, v.Verify(req, nil))
}

func TestBearerVerifier(t *testing.T) {
	v, err := NewVerifier(Config{Mode: ModeBearer, BearerToken: "tok-abc"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.ErrorIs(t, v.Verify(req, nil), ErrMissingBearerToken)

	req.Header.Set("Authorization", "Bearer wrong")
	assert.ErrorIs(t, v.Verify(req, nil), ErrBearerTokenMismatch)

	req.Header.Set("Authorization", "Bearer tok-abc")
	assert.NoError(t, v.Verify(req, nil))
}

func TestHMACVerifierAcceptsValidSignature(t *testing.T) {
	v, err := NewVerifier(Config{Mode: ModeHMAC, HMACSecret: "shh"})
	require.NoError(t, err)

	body := []byte(`{"event":"ping"}`)
	timestamp := "1700000000"

	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", "sha256="+sig)
	assert.NoError(t, v.Verify(req, body))
}

func TestHMACVerifierRejectsTamperedBody(t *testing.T) {
	v, err := NewVerifier(Config{Mode: ModeHMAC, HMACSecret: "shh"})
	require.NoError(t, err)

	timestamp := "1700000000"
	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write([]byte(`{"event":"ping"}`))
	sig := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", sig)
	err = v.Verify(req, []byte(`{"event":"tampered"}`))
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestNewVerifierRejectsUnknownMode(t *testing.T) {
	_, err := NewVerifier(Config{Mode: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrInvalidMethod)
}

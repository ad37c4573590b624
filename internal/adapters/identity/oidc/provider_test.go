package oidc

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClientID = "lsc-cli"

type fakeIssuer struct {
	t       *testing.T
	server  *httptest.Server
	key     *rsa.PrivateKey
	subject string
	email   string
}

func newFakeIssuer(t *testing.T, subject, email string) *fakeIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	issuer := &fakeIssuer{t: t, key: key, subject: subject, email: email}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", issuer.discovery)
	mux.HandleFunc("/keys", issuer.keys)
	mux.HandleFunc("/token", issuer.token)
	issuer.server = httptest.NewServer(mux)
	t.Cleanup(issuer.server.Close)

	return issuer
}

func (f *fakeIssuer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(f.t, json.NewEncoder(w).Encode(v))
}

func (f *fakeIssuer) discovery(w http.ResponseWriter, _ *http.Request) {
	f.writeJSON(w, map[string]any{
		"issuer":                                f.server.URL,
		"authorization_endpoint":                f.server.URL + "/authorize",
		"token_endpoint":                        f.server.URL + "/token",
		"jwks_uri":                              f.server.URL + "/keys",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (f *fakeIssuer) keys(w http.ResponseWriter, _ *http.Request) {
	f.writeJSON(w, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": "test-key",
			"n":   base64.RawURLEncoding.EncodeToString(f.key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(f.key.E)).Bytes()),
		}},
	})
}

func (f *fakeIssuer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.Form.Get("code") != "auth-code" || r.Form.Get("code_verifier") == "" {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
		return
	}

	f.writeJSON(w, map[string]any{
		"access_token": "access",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     f.signIDToken(),
	})
}

func (f *fakeIssuer) signIDToken() string {
	now := time.Now()
	header, err := json.Marshal(map[string]string{"alg": "RS256", "kid": "test-key", "typ": "JWT"})
	require.NoError(f.t, err)
	payload, err := json.Marshal(map[string]any{
		"iss":   f.server.URL,
		"aud":   testClientID,
		"sub":   f.subject,
		"email": f.email,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})
	require.NoError(f.t, err)

	signingInput := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(payload)
	digest := sha256.Sum256([]byte(signingInput))
	signature, err := rsa.SignPKCS1v15(rand.Reader, f.key, crypto.SHA256, digest[:])
	require.NoError(f.t, err)

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature)
}

// followRedirect plays the browser: it checks the authorization request and hits the loopback callback.
func followRedirect(t *testing.T, wantLoginHint string) AuthURLHandler {
	return func(authURL string) error {
		parsed, err := url.Parse(authURL)
		require.NoError(t, err)

		q := parsed.Query()
		assert.Equal(t, "/authorize", parsed.Path)
		assert.Equal(t, testClientID, q.Get("client_id"))
		assert.Equal(t, "S256", q.Get("code_challenge_method"))
		assert.NotEmpty(t, q.Get("code_challenge"))
		assert.Contains(t, q.Get("scope"), "openid")
		assert.Equal(t, wantLoginHint, q.Get("login_hint"))

		callback := q.Get("redirect_uri") + "?code=auth-code&state=" + url.QueryEscape(q.Get("state"))
		resp, err := http.Get(callback)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}
}

func TestSignInVerifiesIDToken(t *testing.T) {
	t.Parallel()

	issuer := newFakeIssuer(t, "subject-42", "ana@example.com")
	provider, err := NewProvider(
		Config{Issuer: issuer.server.URL, ClientID: testClientID, ListenAddr: "127.0.0.1:0", Timeout: 5 * time.Second},
		WithHTTPClient(issuer.server.Client()),
		WithAuthURLHandler(followRedirect(t, "ana@example.com")),
	)
	require.NoError(t, err)

	user, err := provider.SignIn(context.Background(), domain.SignInRequest{Email: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.User{ID: "subject-42", Email: "ana@example.com"}, user)
}

func TestSignInRejectsTokenForOtherAudience(t *testing.T) {
	t.Parallel()

	issuer := newFakeIssuer(t, "subject-42", "ana@example.com")
	provider, err := NewProvider(
		Config{Issuer: issuer.server.URL, ClientID: "someone-else", ListenAddr: "127.0.0.1:0", Timeout: 5 * time.Second},
		WithHTTPClient(issuer.server.Client()),
		WithAuthURLHandler(func(authURL string) error {
			parsed, err := url.Parse(authURL)
			require.NoError(t, err)
			q := parsed.Query()
			resp, err := http.Get(q.Get("redirect_uri") + "?code=auth-code&state=" + url.QueryEscape(q.Get("state")))
			if err != nil {
				return err
			}
			return resp.Body.Close()
		}),
	)
	require.NoError(t, err)

	_, err = provider.SignIn(context.Background(), domain.SignInRequest{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "verify id token")
}

func TestSignInFailsWhenIssuerUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	provider, err := NewProvider(Config{Issuer: server.URL, ClientID: testClientID})
	require.NoError(t, err)

	_, err = provider.SignIn(context.Background(), domain.SignInRequest{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "discover oidc issuer")
}

func TestNewProviderRequiresIssuerAndClient(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(Config{ClientID: testClientID})
	assert.ErrorContains(t, err, "issuer is required")

	_, err = NewProvider(Config{Issuer: "https://id.example.com"})
	assert.ErrorContains(t, err, "client id is required")
}

package api

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezn-project/rezn/internal/apply"
	"github.com/rezn-project/rezn/internal/crypto"
	"github.com/rezn-project/rezn/internal/jcs"
	"github.com/rezn-project/rezn/internal/metrics"
	"github.com/rezn-project/rezn/internal/model"
	"github.com/rezn-project/rezn/internal/secrets"
	"github.com/rezn-project/rezn/internal/stats"
	"github.com/rezn-project/rezn/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	kv, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	identity, err := crypto.LoadOrGenerate(filepath.Join(dir, "identity.txt"))
	require.NoError(t, err)

	m := metrics.New()
	fanout := stats.NewFanOut(m)
	s := New(Deps{
		KV:          kv,
		ApplyEngine: apply.New(kv, nil, m),
		Secrets:     secrets.New(kv, identity, m),
		Ingester:    stats.NewIngester("ws://unused", fanout, nil),
		FanOut:      fanout,
		Metrics:     m,
	})
	return s, kv
}

func TestHandleStateRawEmptyStoreReturnsEmptyObject(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/state/raw", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "{}", rec.Body.String())
}

func TestHandleApplyThenState(t *testing.T) {
	s, _ := newTestServer(t)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	program := model.Program{{Kind: "pod", Name: "web"}}
	programBytes, err := jcs.Canonical(program)
	require.NoError(t, err)
	sig := ed25519.Sign(priv, programBytes)

	body, err := json.Marshal(map[string]interface{}{
		"name": "site",
		"instruction_wrapper": model.SignedProgram{
			Program: program,
			Signature: model.Signature{
				Algorithm: "ed25519",
				Pub:       base64.StdEncoding.EncodeToString(pub),
				Sig:       base64.StdEncoding.EncodeToString(sig),
			},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/apply", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/state", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var desired model.DesiredMap
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &desired))
	assert.Len(t, desired["site"], 1)
}

func TestHandleSecretLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	createBody, _ := json.Marshal(map[string]string{"name": "db-password", "secret": "hunter2"})
	req := httptest.NewRequest(http.MethodPost, "/secrets", bytes.NewReader(createBody))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/secret?key=db-password", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hunter2", rec.Body.String())

	req = httptest.NewRequest(http.MethodDelete, "/secret?key=db-password", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/secret?key=db-password", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetSecretMissingReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/secret?key=missing", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

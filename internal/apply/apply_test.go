package apply

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezn-project/rezn/internal/jcs"
	"github.com/rezn-project/rezn/internal/metrics"
	"github.com/rezn-project/rezn/internal/model"
	"github.com/rezn-project/rezn/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func signedProgram(t *testing.T, pub ed25519.PublicKey, priv ed25519.PrivateKey, program model.Program) model.SignedProgram {
	t.Helper()
	programBytes, err := jcs.Canonical(program)
	require.NoError(t, err)
	sig := ed25519.Sign(priv, programBytes)
	return model.SignedProgram{
		Program: program,
		Signature: model.Signature{
			Algorithm: "ed25519",
			Pub:       base64.StdEncoding.EncodeToString(pub),
			Sig:       base64.StdEncoding.EncodeToString(sig),
		},
	}
}

func TestApplyAcceptsValidSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	s := openTestStore(t)
	engine := New(s, nil, nil)

	fields, _ := json.Marshal(model.PodFields{Image: "nginx", Replicas: 1, Ports: []uint16{80}})
	program := model.Program{{Kind: "pod", Name: "web", Fields: fields}}
	wrapper := signedProgram(t, pub, priv, program)

	err = engine.Apply("site", wrapper)
	require.NoError(t, err)

	raw, err := s.GetDesired("desired")
	require.NoError(t, err)
	var desired model.DesiredMap
	require.NoError(t, json.Unmarshal(raw, &desired))
	assert.Len(t, desired["site"], 1)
}

func TestApplyRejectsBadSignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	s := openTestStore(t)
	engine := New(s, nil, nil)

	program := model.Program{{Kind: "pod", Name: "web"}}
	wrapper := signedProgram(t, pub, otherPriv, program)

	err = engine.Apply("site", wrapper)
	require.Error(t, err)
}

func TestApplyRecordsResultMetric(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	s := openTestStore(t)
	m := metrics.New()
	engine := New(s, nil, m)

	program := model.Program{{Kind: "pod", Name: "web"}}
	require.NoError(t, engine.Apply("site", signedProgram(t, pub, priv, program)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ApplyTotal.WithLabelValues("success")))

	require.Error(t, engine.Apply("site", signedProgram(t, pub, otherPriv, program)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ApplyTotal.WithLabelValues("failure")))
}

func TestApplyRejectsUnsupportedAlgorithm(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	s := openTestStore(t)
	engine := New(s, nil, nil)

	program := model.Program{{Kind: "pod", Name: "web"}}
	wrapper := signedProgram(t, pub, priv, program)
	wrapper.Signature.Algorithm = "rsa"

	err = engine.Apply("site", wrapper)
	require.Error(t, err)
}

func TestApplyOverwriteIsAllowed(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	s := openTestStore(t)
	engine := New(s, nil, nil)

	first := signedProgram(t, pub, priv, model.Program{{Kind: "pod", Name: "web"}})
	require.NoError(t, engine.Apply("site", first))

	second := signedProgram(t, pub, priv, model.Program{{Kind: "pod", Name: "web-v2"}})
	require.NoError(t, engine.Apply("site", second))

	raw, err := s.GetDesired("desired")
	require.NoError(t, err)
	var desired model.DesiredMap
	require.NoError(t, json.Unmarshal(raw, &desired))
	assert.Equal(t, "web-v2", desired["site"][0].Name)
}

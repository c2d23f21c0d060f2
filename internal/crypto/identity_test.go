package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrGenerateCreatesIdentityOnFirstUse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.txt")

	id, err := LoadOrGenerate(path)
	require.NoError(t, err)
	assert.NotEmpty(t, id.Recipient())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	pubInfo, err := os.Stat(filepath.Join(dir, "default.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), pubInfo.Mode().Perm())
}

func TestLoadOrGenerateReloadsExistingIdentity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.txt")

	first, err := LoadOrGenerate(path)
	require.NoError(t, err)

	second, err := LoadOrGenerate(path)
	require.NoError(t, err)

	assert.Equal(t, first.Recipient(), second.Recipient())
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	dir := t.TempDir()
	id, err := LoadOrGenerate(filepath.Join(dir, "identity.txt"))
	require.NoError(t, err)

	plaintext := []byte("a secret value")
	envelope, err := id.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, envelope)

	decrypted, err := id.Decrypt(envelope)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

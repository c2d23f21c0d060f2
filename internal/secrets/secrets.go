// Package secrets stores operator-supplied values encrypted at rest,
// using internal/crypto for the envelope and internal/store for
// persistence.
package secrets

import (
	"os"

	"github.com/rezn-project/rezn/internal/crypto"
	"github.com/rezn-project/rezn/internal/metrics"
	"github.com/rezn-project/rezn/internal/model"
	"github.com/rezn-project/rezn/internal/store"
)

// Store is the secret store: plaintext never touches disk or the KV
// engine, only age envelopes do.
type Store struct {
	kv       *store.Store
	identity *crypto.Identity
	metrics  *metrics.Metrics
}

// New builds a secret store over an already-open KV store and identity,
// reporting operation counts to m. m may be nil, in which case no metrics
// are recorded.
func New(kv *store.Store, identity *crypto.Identity, m *metrics.Metrics) *Store {
	return &Store{kv: kv, identity: identity, metrics: m}
}

func (s *Store) countOp(op string) {
	if s.metrics != nil {
		s.metrics.SecretOpsTotal.WithLabelValues(op).Inc()
	}
}

// Put encrypts value to this node's identity and persists the envelope
// under key, overwriting any existing value.
func (s *Store) Put(key string, value []byte) error {
	s.countOp("put")
	envelope, err := s.identity.Encrypt(value)
	if err != nil {
		return err
	}
	return s.kv.PutSecret(key, envelope)
}

// Get decrypts and returns the plaintext stored under key.
func (s *Store) Get(key string) ([]byte, error) {
	s.countOp("get")
	envelope, err := s.kv.GetSecret(key)
	if err != nil {
		return nil, err
	}
	return s.identity.Decrypt(envelope)
}

// Delete removes key from the store and reports whether it previously
// existed. It is not an error to delete a key that does not exist.
func (s *Store) Delete(key string) (bool, error) {
	s.countOp("delete")
	return s.kv.DeleteSecret(key)
}

// Keys lists every secret name currently stored.
func (s *Store) Keys() ([]string, error) {
	return s.kv.SecretKeys()
}

// Export writes the raw (still-encrypted) envelope for key to an .age
// file at path, so operators can move it between nodes sharing an
// identity without ever seeing the plaintext.
func (s *Store) Export(key, path string) error {
	s.countOp("export")
	envelope, err := s.kv.GetSecret(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, envelope, 0o600); err != nil {
		return model.WrapOp("secrets.Export", key, model.ErrStorage, err)
	}
	return nil
}

// Import reads an .age envelope from path and stores it verbatim under
// key. The envelope is decrypted with this node's identity first, and
// nothing is stored if that fails.
func (s *Store) Import(key, path string) error {
	s.countOp("import")
	envelope, err := os.ReadFile(path)
	if err != nil {
		return model.WrapOp("secrets.Import", key, model.ErrStorage, err)
	}
	// Fail fast if the envelope cannot be opened by this node's identity,
	// rather than silently storing an unusable secret.
	if _, err := s.identity.Decrypt(envelope); err != nil {
		return err
	}
	return s.kv.PutSecret(key, envelope)
}

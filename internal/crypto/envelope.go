package crypto

import (
	"bytes"
	"io"

	"filippo.io/age"

	"github.com/rezn-project/rezn/internal/model"
)

// Encrypt seals plaintext to this node's own identity using the age stream
// format, so the resulting envelope can only ever be opened by the same
// node (or an operator holding a copy of its secret key).
func (id *Identity) Encrypt(plaintext []byte) ([]byte, error) {
	id.mu.Lock()
	recipient := id.secretKey.Recipient()
	id.mu.Unlock()

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, model.WrapOp("crypto.Encrypt", "", model.ErrCrypto, err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, model.WrapOp("crypto.Encrypt", "", model.ErrCrypto, err)
	}
	if err := w.Close(); err != nil {
		return nil, model.WrapOp("crypto.Encrypt", "", model.ErrCrypto, err)
	}
	return buf.Bytes(), nil
}

// Decrypt opens an envelope previously produced by Encrypt.
func (id *Identity) Decrypt(envelope []byte) ([]byte, error) {
	id.mu.Lock()
	key := id.secretKey
	id.mu.Unlock()

	r, err := age.Decrypt(bytes.NewReader(envelope), key)
	if err != nil {
		return nil, model.WrapOp("crypto.Decrypt", "", model.ErrCrypto, err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, model.WrapOp("crypto.Decrypt", "", model.ErrCrypto, err)
	}
	return plaintext, nil
}

// Package crypto manages this node's age identity and the envelope
// encryption built on top of it.
package crypto

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"

	"github.com/rezn-project/rezn/internal/model"
)

const publicIdentityFile = "default.txt"

// Identity holds this node's age keypair, loaded once and reused for every
// secret encryption and decryption.
type Identity struct {
	mu        sync.Mutex
	secretKey *age.X25519Identity
}

// LoadOrGenerate loads the age identity at path, generating and persisting
// a fresh one on first run. The secret key file is written 0o600; the
// matching public recipient file (default.txt, alongside path) is written
// 0o644 so it can be shared freely.
func LoadOrGenerate(path string) (*Identity, error) {
	if path == "" {
		path = "identity.txt"
	}

	if _, err := os.Stat(path); err == nil {
		key, err := readIdentity(path)
		if err != nil {
			return nil, model.WrapOp("crypto.LoadOrGenerate", path, model.ErrIdentity, err)
		}
		return &Identity{secretKey: key}, nil
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, model.WrapOp("crypto.LoadOrGenerate", path, model.ErrIdentity, err)
		}
	}

	key, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, model.WrapOp("crypto.LoadOrGenerate", path, model.ErrIdentity, err)
	}

	if err := os.WriteFile(path, []byte(key.String()+"\n"), 0o600); err != nil {
		return nil, model.WrapOp("crypto.LoadOrGenerate", path, model.ErrIdentity, err)
	}

	pubPath := filepath.Join(filepath.Dir(path), publicIdentityFile)
	if err := os.WriteFile(pubPath, []byte(key.Recipient().String()+"\n"), 0o644); err != nil {
		return nil, model.WrapOp("crypto.LoadOrGenerate", pubPath, model.ErrIdentity, err)
	}

	return &Identity{secretKey: key}, nil
}

func readIdentity(path string) (*age.X25519Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "AGE-SECRET-KEY-1") {
			return age.ParseX25519Identity(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errNoIdentityInFile
}

// Recipient returns the public recipient string callers can hand to
// operators for out-of-band encryption (the default.txt contents).
func (id *Identity) Recipient() string {
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.secretKey.Recipient().String()
}

type identityFileError string

func (e identityFileError) Error() string { return string(e) }

const errNoIdentityInFile = identityFileError("no age identity in file")

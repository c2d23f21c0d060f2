// Package apply verifies and commits signed programs into the desired
// state store.
package apply

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"crypto/ed25519"

	"github.com/rezn-project/rezn/internal/jcs"
	"github.com/rezn-project/rezn/internal/metrics"
	"github.com/rezn-project/rezn/internal/model"
	"github.com/rezn-project/rezn/internal/store"
)

const algorithmEd25519 = "ed25519"

// Engine verifies signed programs and commits them to the desired map.
type Engine struct {
	kv      *store.Store
	log     *logrus.Entry
	metrics *metrics.Metrics
}

// New builds an apply engine over kv, logging through log and reporting to m.
// m may be nil, in which case no metrics are recorded.
func New(kv *store.Store, log *logrus.Entry, m *metrics.Metrics) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{kv: kv, log: log, metrics: m}
}

// Apply verifies wrapper's signature over its RFC 8785 canonical encoding
// and, on success, commits wrapper.Program under name in the desired map,
// then records an audit InstructionMeta. Overwriting an existing name is
// allowed and only logged, never rejected.
func (e *Engine) Apply(name string, wrapper model.SignedProgram) (err error) {
	if e.metrics != nil {
		defer func() {
			result := "success"
			if err != nil {
				result = "failure"
			}
			e.metrics.ApplyTotal.WithLabelValues(result).Inc()
		}()
	}

	programBytes, err := jcs.Canonical(wrapper.Program)
	if err != nil {
		return model.WrapOp("apply.Apply", name, model.ErrDecode, err)
	}

	if wrapper.Signature.Algorithm != algorithmEd25519 {
		return model.WrapOp("apply.Apply", name, model.ErrUnsupportedAlgorithm,
			unsupportedAlgoError(wrapper.Signature.Algorithm))
	}

	pub, err := base64.StdEncoding.DecodeString(wrapper.Signature.Pub)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return model.WrapOp("apply.Apply", name, model.ErrDecode, errBadPub)
	}
	sig, err := base64.StdEncoding.DecodeString(wrapper.Signature.Sig)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return model.WrapOp("apply.Apply", name, model.ErrDecode, errBadSig)
	}

	if !ed25519.Verify(ed25519.PublicKey(pub), programBytes, sig) {
		return model.WrapOp("apply.Apply", name, model.ErrSignature, errVerifyFailed)
	}

	if err := e.commit(name, wrapper.Program); err != nil {
		return err
	}

	meta := model.InstructionMeta{
		SigID:     wrapper.Signature.Sig,
		AppliedAt: time.Now().UTC().Format(time.RFC3339),
		Atoms:     atomsOf(wrapper.Program),
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return model.WrapOp("apply.Apply", name, model.ErrDecode, err)
	}
	if err := e.kv.PutInstructionMeta(name, metaBytes); err != nil {
		// Desired state already committed; the audit record is best-effort.
		e.log.WithError(err).WithField("name", name).Warn("failed to record instruction metadata")
	}

	return nil
}

// commit performs the read-decode-insert-encode-write cycle inside a
// single store transaction, so two concurrent Apply calls for different
// molecule names can never observe the same prior state and overwrite
// each other's insert (a lost update).
func (e *Engine) commit(name string, program model.Program) error {
	return e.kv.UpdateDesired("desired", func(raw []byte, found bool) ([]byte, error) {
		var desired model.DesiredMap
		if found {
			if err := json.Unmarshal(raw, &desired); err != nil {
				return nil, model.WrapOp("apply.commit", name, model.ErrDecode, err)
			}
		} else {
			desired = model.DesiredMap{}
		}

		if _, exists := desired[name]; exists {
			e.log.WithField("name", name).Warn("overwriting existing desired-state entry")
		}
		desired[name] = program

		encoded, err := jcs.Canonical(desired)
		if err != nil {
			return nil, model.WrapOp("apply.commit", name, model.ErrDecode, err)
		}
		return encoded, nil
	})
}

func atomsOf(program model.Program) [][2]string {
	atoms := make([][2]string, len(program))
	for i, inst := range program {
		atoms[i] = [2]string{inst.Kind, inst.Name}
	}
	return atoms
}

type algoError string

func (e algoError) Error() string { return "unsupported signature algorithm: " + string(e) }

func unsupportedAlgoError(algo string) error { return algoError(algo) }

type staticError string

func (e staticError) Error() string { return string(e) }

const (
	errBadPub       = staticError("public key must decode to exactly 32 bytes")
	errBadSig       = staticError("signature must decode to exactly 64 bytes")
	errVerifyFailed = staticError("ed25519 signature verification failed")
)

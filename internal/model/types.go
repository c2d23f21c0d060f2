// Package model defines the wire and storage types shared by the apply
// engine, the reconciler, the stats pipeline, and the HTTP surface.
package model

import "encoding/json"

// Instruction is one declarative item inside a Program. Kind discriminates
// the instruction type; only "pod" is consumed by the reconciler, but every
// kind must round-trip through storage verbatim.
type Instruction struct {
	Kind    string          `json:"kind"`
	Name    string          `json:"name"`
	Fields  json.RawMessage `json:"fields,omitempty"`
	Options []string        `json:"options,omitempty"`
}

// Program is an ordered list of Instructions submitted as one signed unit.
type Program []Instruction

// EnvVar is either a literal string or a reference to an external secret.
// It is recorded verbatim but not acted upon by the core reconciler.
type EnvVar struct {
	Literal *string
	From    *EnvVarRef
}

// EnvVarRef names an external secret source for an EnvVar.
type EnvVarRef struct {
	From string `json:"from"`
	Name string `json:"name"`
}

// MarshalJSON encodes EnvVar as either a bare string or an object, matching
// the PodFields.env wire shape.
func (e EnvVar) MarshalJSON() ([]byte, error) {
	if e.From != nil {
		return json.Marshal(e.From)
	}
	if e.Literal != nil {
		return json.Marshal(*e.Literal)
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes either a bare string literal or an {from, name}
// object into an EnvVar.
func (e *EnvVar) UnmarshalJSON(data []byte) error {
	var lit string
	if err := json.Unmarshal(data, &lit); err == nil {
		e.Literal = &lit
		e.From = nil
		return nil
	}
	var ref EnvVarRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return err
	}
	e.From = &ref
	e.Literal = nil
	return nil
}

// PodFields is the shape of Instruction.Fields when Kind == "pod".
type PodFields struct {
	Image    string            `json:"image"`
	Replicas int               `json:"replicas"`
	Ports    []uint16          `json:"ports"`
	Secure   bool              `json:"secure,omitempty"`
	Env      map[string]EnvVar `json:"env,omitempty"`
}

// Signature authenticates a Program's canonical encoding.
type Signature struct {
	Algorithm string `json:"algorithm"`
	Pub       string `json:"pub"`
	Sig       string `json:"sig"`
}

// SignedProgram is the apply payload's inner signed unit.
type SignedProgram struct {
	Program   Program   `json:"program"`
	Signature Signature `json:"signature"`
}

// DesiredMap maps a caller-supplied molecule name to its Program. Callers
// should treat iteration order as the sorted key order produced by JSON
// encoding (encoding/json and jcs.Canonical); Go's native map has no order
// of its own.
type DesiredMap map[string]Program

// InstructionMeta is the per-apply audit record written under
// "instruction/<name>".
type InstructionMeta struct {
	SigID     string      `json:"sig_id"`
	AppliedAt string      `json:"applied_at"`
	Atoms     [][2]string `json:"atoms"`
}

// PodSpec is the derived, ephemeral shape the reconciler acts on.
type PodSpec struct {
	MolName  string
	Name     string
	Image    string
	Replicas int
	Ports    []uint16
}

// ContainerSummary is the gateway's minimal view of a running container.
type ContainerSummary struct {
	ID    string   `json:"Id"`
	Names []string `json:"Names"`
}

// StatsSample is one container's point-in-time resource usage.
type StatsSample struct {
	CPUAvg *float64 `json:"cpu_avg,omitempty"`
	MaxMem *uint64  `json:"max_mem,omitempty"`
}

// TimestampedStats pairs a StatsSample with the wall-clock second it was
// recorded, used to enforce per-container monotonic freshness.
type TimestampedStats struct {
	Stats     StatsSample `json:"stats"`
	Timestamp uint64      `json:"timestamp"`
}

// StatsMap maps container id to its most recently accepted sample.
type StatsMap map[string]TimestampedStats

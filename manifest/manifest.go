// Package manifest decodes and validates the in-header JSON manifest
// that drives bundle encoding: which payloads go where, and how each
// payload's body is block-encoded.
package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/edgeupdate/bundle/compress"
	"github.com/edgeupdate/bundle/hashalgo"
)

// UpdateType is the manifest's top-level update_type field.
type UpdateType string

const (
	Full        UpdateType = "full"
	Incremental UpdateType = "incremental"
)

// DeliveryKind selects which PayloadEntry variant a payload encodes to.
type DeliveryKind string

const (
	DeliverySlot    DeliveryKind = "slot"
	DeliveryExecute DeliveryKind = "execute"
)

// Delivery names where a payload's installed bytes end up: a slot name
// (written via slot.Writer) or an executable handler name (run via
// exec.Registry once the bundle body is fully written to a temp file).
type Delivery struct {
	Kind    DeliveryKind `json:"-"`
	Slot    string       `json:"slot,omitempty"`
	Execute string       `json:"execute,omitempty"`
}

// UnmarshalJSON implements the slot/execute variant selection: exactly
// one of "slot" or "execute" must be present.
func (d *Delivery) UnmarshalJSON(data []byte) error {
	var raw struct {
		Slot    *string `json:"slot"`
		Execute *string `json:"execute"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch {
	case raw.Slot != nil && raw.Execute == nil:
		d.Kind = DeliverySlot
		d.Slot = *raw.Slot
	case raw.Execute != nil && raw.Slot == nil:
		d.Kind = DeliveryExecute
		d.Execute = *raw.Execute
	default:
		return fmt.Errorf("manifest: delivery must set exactly one of slot or execute")
	}

	return nil
}

// MarshalJSON renders whichever variant is set.
func (d Delivery) MarshalJSON() ([]byte, error) {
	switch d.Kind {
	case DeliverySlot:
		return json.Marshal(struct {
			Slot string `json:"slot"`
		}{d.Slot})
	case DeliveryExecute:
		return json.Marshal(struct {
			Execute string `json:"execute"`
		}{d.Execute})
	default:
		return nil, fmt.Errorf("manifest: delivery has no variant set")
	}
}

// BlockEncoding is a payload's optional block_encoding manifest field.
type BlockEncoding struct {
	Chunker       string        `json:"chunker"`
	HashAlgorithm string        `json:"hash_algorithm,omitempty"`
	Deduplicate   bool          `json:"deduplicate,omitempty"`
	Compression   compress.Spec `json:"-"`
}

// compressionLevel is the inner object of block_encoding.compression's
// single-key wire shape: {"xz":{"level":6}}. Level is a pointer so an
// algorithm with no level (s2, lz4) can omit the key entirely rather
// than emit a misleading "level":0.
type compressionLevel struct {
	Level *int `json:"level,omitempty"`
}

// MarshalJSON renders Compression in the manifest's documented object
// form — a single-key object naming the algorithm, e.g.
// {"xz":{"level":6}} — or omits the field entirely when unset, mirroring
// Delivery's own variant-object marshaling above.
func (b BlockEncoding) MarshalJSON() ([]byte, error) {
	type alias BlockEncoding
	aux := struct {
		alias
		Compression map[string]compressionLevel `json:"compression,omitempty"`
	}{alias: alias(b)}

	if spec := b.Compression; spec.Algorithm != "" && spec.Algorithm != compress.None {
		lvl := compressionLevel{}
		if spec.HasLevel() {
			level := spec.Level
			lvl.Level = &level
		}
		aux.Compression = map[string]compressionLevel{string(spec.Algorithm): lvl}
	}

	return json.Marshal(aux)
}

// UnmarshalJSON parses Compression's object form into a compress.Spec,
// reusing compress.ParseSpec's algorithm/level validation by rebuilding
// its compact "alg:level" string from the decoded object.
func (b *BlockEncoding) UnmarshalJSON(data []byte) error {
	type alias BlockEncoding
	aux := struct {
		*alias
		Compression map[string]compressionLevel `json:"compression,omitempty"`
	}{alias: (*alias)(b)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch len(aux.Compression) {
	case 0:
		b.Compression = compress.Spec{}
	case 1:
		for name, lvl := range aux.Compression {
			compact := name
			if lvl.Level != nil {
				compact = fmt.Sprintf("%s:%d", name, *lvl.Level)
			}
			spec, err := compress.ParseSpec(compact)
			if err != nil {
				return fmt.Errorf("manifest: compression: %w", err)
			}
			b.Compression = spec
		}
	default:
		return fmt.Errorf("manifest: compression must name exactly one algorithm, got %d", len(aux.Compression))
	}

	return nil
}

// ResolvedHashAlgorithm returns HashAlgorithm, defaulting to fallback
// when unset.
func (b BlockEncoding) ResolvedHashAlgorithm(fallback hashalgo.Algorithm) (hashalgo.Algorithm, error) {
	if b.HashAlgorithm == "" {
		return fallback, nil
	}
	alg := hashalgo.Algorithm(b.HashAlgorithm)
	if !alg.Valid() {
		return "", fmt.Errorf("manifest: unknown hash_algorithm %q", b.HashAlgorithm)
	}

	return alg, nil
}

// CompressionSpec returns the block's compression choice, the zero Spec
// if unset. Compression is already a parsed compress.Spec by the time a
// BlockEncoding exists — validated at UnmarshalJSON time for a manifest
// decoded from JSON, or by the caller's own construction otherwise — so
// this never fails; the error return is kept so callers written against
// the previous string-parsing form don't need to change.
func (b BlockEncoding) CompressionSpec() (compress.Spec, error) {
	return b.Compression, nil
}

// Payload is one entry in the manifest's payloads list.
type Payload struct {
	Filename      string         `json:"filename"`
	Delivery      Delivery       `json:"delivery"`
	BlockEncoding *BlockEncoding `json:"block_encoding,omitempty"`
}

// Manifest is the in-header JSON document describing a bundle's
// payloads and how each should be encoded and installed.
type Manifest struct {
	UpdateType    UpdateType `json:"update_type"`
	HashAlgorithm string     `json:"hash_algorithm,omitempty"`
	Payloads      []Payload  `json:"payloads"`
}

// ResolvedHashAlgorithm returns the manifest's default hash algorithm,
// falling back to sha512-256 when unset, per spec.
func (m Manifest) ResolvedHashAlgorithm() (hashalgo.Algorithm, error) {
	if m.HashAlgorithm == "" {
		return hashalgo.SHA512256, nil
	}
	alg := hashalgo.Algorithm(m.HashAlgorithm)
	if !alg.Valid() {
		return "", fmt.Errorf("manifest: unknown hash_algorithm %q", m.HashAlgorithm)
	}

	return alg, nil
}

// Parse decodes and validates a manifest's JSON bytes.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: invalid JSON: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks structural invariants that json.Unmarshal alone can't
// enforce: update_type is a known value, every payload has a filename, a
// slot is claimed by at most one payload unless UpdateType is
// Incremental (which allows a later payload to intentionally overwrite
// an earlier one's slot), and every block_encoding parses.
func (m Manifest) Validate() error {
	switch m.UpdateType {
	case Full, Incremental:
	default:
		return fmt.Errorf("manifest: unknown update_type %q", m.UpdateType)
	}

	if _, err := m.ResolvedHashAlgorithm(); err != nil {
		return err
	}

	slots := make(map[string]bool)
	for i, p := range m.Payloads {
		if p.Filename == "" {
			return fmt.Errorf("manifest: payloads[%d]: filename is required", i)
		}
		if p.Delivery.Kind == DeliverySlot {
			if slots[p.Delivery.Slot] && m.UpdateType != Incremental {
				return fmt.Errorf("manifest: payloads[%d]: slot %q already claimed by another payload", i, p.Delivery.Slot)
			}
			slots[p.Delivery.Slot] = true
		}
		if p.BlockEncoding != nil {
			if err := p.BlockEncoding.validate(); err != nil {
				return fmt.Errorf("manifest: payloads[%d]: %w", i, err)
			}
		}
	}

	return nil
}

func (b BlockEncoding) validate() error {
	if _, err := ParseChunkerSpec(b.Chunker); err != nil {
		return err
	}
	if _, err := b.ResolvedHashAlgorithm(hashalgo.SHA512256); err != nil {
		return err
	}
	// A BlockEncoding built directly in Go (rather than decoded from
	// JSON) skips UnmarshalJSON's ParseSpec check, so re-validate its
	// Compression here by round-tripping it through the same compact
	// form ParseSpec already knows how to reject.
	if _, err := compress.ParseSpec(b.Compression.String()); err != nil {
		return err
	}

	return nil
}

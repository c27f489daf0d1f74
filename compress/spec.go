package compress

import (
	"fmt"
	"strconv"
	"strings"
)

// Spec names an algorithm and, for algorithms that expose one, a
// compression level. It is the parsed form of the compact strings used
// for the BLOCK_ENCODING_COMPRESSION wire value: "xz:6", "zstd:3", "s2",
// "lz4". A manifest's block_encoding.compression field uses a JSON
// object form instead, which manifest.BlockEncoding converts to a Spec.
// A zero Spec (Algorithm == "") means no compression field is present.
type Spec struct {
	Algorithm Algorithm
	Level     int
}

// HasLevel reports whether Algorithm supports a numeric level.
func (s Spec) HasLevel() bool {
	return s.Algorithm == XZ || s.Algorithm == Zstd
}

// String renders Spec back to its compact wire/manifest form.
func (s Spec) String() string {
	if s.Algorithm == "" || s.Algorithm == None {
		return ""
	}
	if s.HasLevel() {
		return fmt.Sprintf("%s:%d", s.Algorithm, s.Level)
	}

	return string(s.Algorithm)
}

// ParseSpec parses a compact compression string. An empty string yields
// the zero Spec (no compression).
func ParseSpec(s string) (Spec, error) {
	if s == "" {
		return Spec{}, nil
	}

	name, rest, hasLevel := strings.Cut(s, ":")
	alg := Algorithm(name)

	switch alg {
	case None:
		return Spec{}, nil
	case XZ, Zstd:
		if !hasLevel {
			return Spec{}, fmt.Errorf("compress: %q compression requires a level, got %q", alg, s)
		}
		level, err := strconv.Atoi(rest)
		if err != nil {
			return Spec{}, fmt.Errorf("compress: invalid level in %q: %w", s, err)
		}

		return Spec{Algorithm: alg, Level: level}, nil
	case S2, LZ4:
		if hasLevel {
			return Spec{}, fmt.Errorf("compress: %q compression takes no level, got %q", alg, s)
		}

		return Spec{Algorithm: alg}, nil
	default:
		return Spec{}, fmt.Errorf("compress: unknown compression algorithm: %q", name)
	}
}

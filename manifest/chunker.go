package manifest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/edgeupdate/bundle/chunk"
)

// ChunkerKind selects which chunk.Chunker implementation a
// block_encoding.chunker string names.
type ChunkerKind string

const (
	ChunkerFixed  ChunkerKind = "fixed"
	ChunkerCasync ChunkerKind = "casync"
)

// ChunkerSpec is the parsed form of a chunker string: "fixed:{size}" or
// "casync:{min},{avg},{max}".
type ChunkerSpec struct {
	Kind      ChunkerKind
	FixedSize int
	CasyncMin int
	CasyncAvg int
	CasyncMax int
}

// ParseChunkerSpec parses a block_encoding.chunker string.
func ParseChunkerSpec(s string) (ChunkerSpec, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return ChunkerSpec{}, fmt.Errorf("manifest: chunker %q missing parameters", s)
	}

	switch ChunkerKind(kind) {
	case ChunkerFixed:
		size, err := strconv.Atoi(rest)
		if err != nil || size <= 0 {
			return ChunkerSpec{}, fmt.Errorf("manifest: invalid fixed chunker size in %q", s)
		}

		return ChunkerSpec{Kind: ChunkerFixed, FixedSize: size}, nil

	case ChunkerCasync:
		parts := strings.Split(rest, ",")
		if len(parts) != 3 {
			return ChunkerSpec{}, fmt.Errorf("manifest: casync chunker %q needs min,avg,max", s)
		}
		nums := make([]int, 3)
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return ChunkerSpec{}, fmt.Errorf("manifest: invalid casync parameter in %q", s)
			}
			nums[i] = n
		}

		return ChunkerSpec{Kind: ChunkerCasync, CasyncMin: nums[0], CasyncAvg: nums[1], CasyncMax: nums[2]}, nil

	default:
		return ChunkerSpec{}, fmt.Errorf("manifest: unknown chunker kind %q", kind)
	}
}

// String renders ChunkerSpec back to its compact wire/manifest form.
func (c ChunkerSpec) String() string {
	switch c.Kind {
	case ChunkerFixed:
		return fmt.Sprintf("fixed:%d", c.FixedSize)
	case ChunkerCasync:
		return fmt.Sprintf("casync:%d,%d,%d", c.CasyncMin, c.CasyncAvg, c.CasyncMax)
	default:
		return ""
	}
}

// New builds the chunk.Chunker the spec describes. New panics if Kind
// holds an unrecognized value, since ParseChunkerSpec is the only
// constructor and never produces one.
func (c ChunkerSpec) New() chunk.Chunker {
	switch c.Kind {
	case ChunkerFixed:
		return chunk.NewFixed(c.FixedSize)
	case ChunkerCasync:
		return chunk.NewCasync(c.CasyncMin, c.CasyncAvg, c.CasyncMax)
	default:
		panic(fmt.Sprintf("manifest: chunker spec has unknown kind %q", c.Kind))
	}
}

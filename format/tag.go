package format

import "fmt"

// Tag is a 32-bit field identifier. The top bit of the most significant
// byte marks the tag optional (1) or required (0): an unknown optional
// tag is skipped by decoders, while an unknown required tag is a fatal
// format error. Tags are globally unique across the schema; reusing a
// tag number at a different position in the tree is a registration-time
// programming error.
type Tag uint32

const optionalBit uint32 = 1 << 31

// RequiredTag builds a required tag from its 31-bit payload. Panics if n
// already has the optional bit set, since that would silently change its
// meaning.
func RequiredTag(n uint32) Tag {
	if n&optionalBit != 0 {
		panic(fmt.Sprintf("format: tag 0x%08x already has the optional bit set", n))
	}

	return Tag(n)
}

// OptionalTag builds an optional tag from its 31-bit payload.
func OptionalTag(n uint32) Tag {
	return Tag(n | optionalBit)
}

// IsOptional reports whether unknown occurrences of t must be skipped.
func (t Tag) IsOptional() bool {
	return uint32(t)&optionalBit != 0
}

// IsRequired reports whether unknown occurrences of t are a fatal error.
func (t Tag) IsRequired() bool {
	return !t.IsOptional()
}

func (t Tag) String() string {
	if name, ok := Name(t); ok {
		return name
	}

	kind := "required"
	if t.IsOptional() {
		kind = "optional"
	}

	return fmt.Sprintf("tag(0x%08x,%s)", uint32(t), kind)
}

// registry holds every tag declared by this package, keyed by its numeric
// value, so that duplicate registration and unknown-tag pretty-printing
// both have a single source of truth.
var registry = make(map[Tag]string)

// register records name for tag. It panics on duplicate registration: tag
// uniqueness is a build-time invariant of the schema, not a runtime
// condition callers should need to handle.
func register(name string, tag Tag) Tag {
	if existing, ok := registry[tag]; ok {
		panic(fmt.Sprintf("format: tag 0x%08x registered twice: %q and %q", uint32(tag), existing, name))
	}
	for other, existing := range registry {
		if uint32(other)&^optionalBit == uint32(tag)&^optionalBit {
			panic(fmt.Sprintf("format: tag 0x%08x registered twice: %q and %q", uint32(tag), existing, name))
		}
	}
	registry[tag] = name

	return tag
}

// Name returns the registered name of tag, if any.
func Name(tag Tag) (string, bool) {
	name, ok := registry[tag]

	return name, ok
}

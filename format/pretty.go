package format

import (
	"fmt"
	"io"
	"strings"
)

// PrettyPrint decodes every atom from src and renders it as an indented
// tree of tags and lengths to w, skipping (rather than interpreting) the
// bytes of every value. It never fails on unknown tags — unlike schema
// decoding, this is a raw structural diagnostic, so every tag is
// "known" to it by definition.
func PrettyPrint(src ByteSource, w io.Writer) error {
	r := NewReader(src, ReaderOptions{})

	depth := 0
	for {
		head, ok, err := r.ReadAtomHead()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		switch head.Kind {
		case SegmentStart:
			fmt.Fprintf(w, "%s%s {\n", indent(depth), head.Tag)
			depth++
		case SegmentEnd:
			depth--
			fmt.Fprintf(w, "%s}\n", indent(depth))
		case Value:
			fmt.Fprintf(w, "%s%s: %d byte(s)\n", indent(depth), head.Tag, head.Length)
			if err := r.SkipValue(head); err != nil {
				return err
			}
		}
	}
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}

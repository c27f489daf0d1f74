package bundleerr

import (
	"fmt"
	"strings"
)

// Report renders e and its cause chain as a nested, indented tree: one
// line per *Error in the chain, each cause indented one level deeper
// than the error it explains. A non-*Error cause terminates the tree
// as a plain leaf line.
func (e *Error) Report() string {
	var b strings.Builder
	writeReport(&b, e, 0)

	return b.String()
}

func writeReport(b *strings.Builder, err error, depth int) {
	indent := strings.Repeat("  ", depth)

	be, ok := err.(*Error)
	if !ok {
		fmt.Fprintf(b, "%scaused by: %v\n", indent, err)

		return
	}

	fmt.Fprintf(b, "%s[%s] %s", indent, be.Kind, be.Message)
	if len(be.Path) > 0 {
		fmt.Fprintf(b, " (at %s)", strings.Join(be.Path, "/"))
	}
	if be.Expected != nil && be.Actual != nil {
		fmt.Fprintf(b, " expected=%x actual=%x", be.Expected.Sum, be.Actual.Sum)
	}
	b.WriteString("\n")

	if be.Cause != nil {
		writeReport(b, be.Cause, depth+1)
	}
}

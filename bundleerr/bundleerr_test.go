package bundleerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeupdate/bundle/hashalgo"
)

func TestError_ImplementsUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	e := Wrap(Resource("slot unavailable", "BUNDLE", "PAYLOADS", "PAYLOAD[0]"), cause)

	assert.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "resource")
	assert.Contains(t, e.Error(), "BUNDLE/PAYLOADS/PAYLOAD[0]")
	assert.Contains(t, e.Error(), "disk full")
}

func TestIntegrity_CarriesExpectedAndActual(t *testing.T) {
	expected, err := hashalgo.Sum(hashalgo.SHA256, []byte("a"))
	require.NoError(t, err)
	actual, err := hashalgo.Sum(hashalgo.SHA256, []byte("b"))
	require.NoError(t, err)

	e := Integrity("block hash mismatch", expected, actual, "PAYLOAD[1]", "BLOCK[3]")

	assert.Equal(t, KindIntegrity, e.Kind)
	assert.Contains(t, e.Error(), "expected")
	assert.Contains(t, e.Error(), "PAYLOAD[1]/BLOCK[3]")
}

func TestWithPath_Prepends(t *testing.T) {
	e := Format("unknown required tag", "PAYLOAD_HEADER")
	wrapped := e.WithPath("BUNDLE")

	assert.Equal(t, []string{"BUNDLE", "PAYLOAD_HEADER"}, wrapped.Path)
	assert.Equal(t, []string{"PAYLOAD_HEADER"}, e.Path, "original must be unmodified")
}

func TestReport_RendersNestedCauses(t *testing.T) {
	inner := Transport("short read", errors.New("EOF"), "PAYLOAD[0]")
	outer := Wrap(Integrity("file_hash mismatch",
		mustDigest(t, "x"), mustDigest(t, "y"), "BUNDLE"), inner)

	report := outer.Report()
	assert.Contains(t, report, "[integrity]")
	assert.Contains(t, report, "[transport]")
	assert.Contains(t, report, "  [transport]", "cause must be indented one level deeper")
}

func TestCancelled_HasCancelledKind(t *testing.T) {
	e := Cancelled("BUNDLE", "PAYLOAD[2]")
	assert.Equal(t, KindCancelled, e.Kind)
	assert.Equal(t, "cancelled", e.Message)
}

func mustDigest(t *testing.T, s string) hashalgo.Digest {
	t.Helper()
	d, err := hashalgo.Sum(hashalgo.SHA256, []byte(s))
	require.NoError(t, err)

	return d
}

package compress

import (
	"bytes"
	"io"

	"github.com/ulikunitz/xz"
)

// xzDefaultLevel is the preset used when a caller doesn't specify one,
// matching the xz command line tool's own default.
const xzDefaultLevel = 6

// XZCompressor is the primary algorithm: LZMA2 via github.com/ulikunitz/xz,
// favoring compression ratio over speed. Level selects one of xz's 0-9
// presets (0 fastest/largest, 9 slowest/smallest).
type XZCompressor struct {
	level int
}

var _ Codec = (*XZCompressor)(nil)

// NewXZCompressor creates an XZ compressor at the given preset level.
// level is clamped to [0, 9].
func NewXZCompressor(level int) XZCompressor {
	return XZCompressor{level: clampXZLevel(level)}
}

func clampXZLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > 9 {
		return 9
	}

	return level
}

// levelDictCaps mirrors the xz command line tool's per-preset dictionary
// sizes (levels 0-9), the main knob trading memory and ratio for speed.
var levelDictCaps = [10]int{
	1 << 16, // 0: 64KiB
	1 << 20, // 1: 1MiB
	1 << 21, // 2: 2MiB
	1 << 22, // 3: 4MiB
	1 << 22, // 4: 4MiB
	1 << 23, // 5: 8MiB
	1 << 23, // 6: 8MiB
	1 << 24, // 7: 16MiB
	1 << 25, // 8: 32MiB
	1 << 26, // 9: 64MiB
}

func (c XZCompressor) config() xz.WriterConfig {
	return xz.WriterConfig{
		DictCap: levelDictCaps[clampXZLevel(c.level)],
	}
}

func (c XZCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	cfg := c.config()
	if err := cfg.Verify(); err != nil {
		return nil, err
	}

	w, err := cfg.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (c XZCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	return io.ReadAll(r)
}

type xzStreamCodec struct {
	level int
}

var _ StreamCodec = xzStreamCodec{}

func (s xzStreamCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	cfg := XZCompressor{level: clampXZLevel(s.level)}.config()
	if err := cfg.Verify(); err != nil {
		return nil, err
	}

	return cfg.NewWriter(w)
}

func (s xzStreamCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, err
	}

	return io.NopCloser(xr), nil
}

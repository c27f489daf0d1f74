package chunk

import (
	"fmt"
	"math"
)

// Casync implements a ZPAQ-style order-1-context rolling hash chunker,
// compatible with the casync family of content-defined chunkers: a
// boundary falls where the rolling hash drops below a threshold derived
// from the target average block size, bounded by MinSize and MaxSize.
//
// The rolling hash depends on the last few dozen bytes mispredicted by a
// simple order-1 byte predictor, so small edits far from a boundary
// don't perturb it — two versions of mostly-similar data share most of
// their blocks.
type Casync struct {
	MinSize int
	AvgSize int
	MaxSize int

	h       uint32
	c1      byte
	o1      [256]byte
	maxHash uint32
	off     int // bytes of buf already folded into h by a prior Scan call
}

// NewCasync creates a chunker targeting avgSize-byte blocks on average,
// never smaller than minSize nor larger than maxSize. Panics if the
// bounds are not minSize <= avgSize <= maxSize with minSize > 0.
func NewCasync(minSize, avgSize, maxSize int) *Casync {
	if minSize <= 0 || avgSize < minSize || maxSize < avgSize {
		panic(fmt.Sprintf("chunk: invalid casync bounds min=%d avg=%d max=%d", minSize, avgSize, maxSize))
	}

	c := &Casync{MinSize: minSize, AvgSize: avgSize, MaxSize: maxSize}
	c.maxHash = deriveMaxHash(avgSize)

	return c
}

// deriveMaxHash computes the rolling-hash threshold below which a
// boundary fires: maxHash = 2^(22 - log2(avgSize/4096)), i.e.
// 2^34 / avgSize, expressed via log2/exp2 exactly as the reference ZPAQ
// splitter derives it.
func deriveMaxHash(avgSize int) uint32 {
	fragment := math.Log2(float64(avgSize) / (64 * 64))
	mh := math.Exp2(22 - fragment)

	return uint32(mh)
}

// Scan implements Chunker.
func (c *Casync) Scan(buf []byte, atEOF bool) (int, error) {
	// Resume hashing where the previous Scan call left off: only the
	// bytes appended since then need to run through the rolling hash,
	// not the whole accumulated buffer.
	start := c.off
	if start > len(buf) {
		start = 0
	}

	h := c.h
	c1 := c.c1
	for i := start; i < len(buf); i++ {
		b := buf[i]
		if b == c.o1[c1] {
			h = (h + uint32(b) + 1) * 314159265
		} else {
			h = (h + uint32(b) + 1) * 271828182
		}
		c.o1[c1] = b
		c1 = b

		off := i + 1
		if (off >= c.MinSize && h < c.maxHash) || off >= c.MaxSize {
			c.h, c.c1, c.off = 0, 0, 0

			return off, nil
		}
	}

	c.h, c.c1, c.off = h, c1, len(buf)

	if atEOF && len(buf) > 0 {
		c.h, c.c1, c.off = 0, 0, 0

		return len(buf), nil
	}

	return 0, nil
}

// Reset implements Chunker.
func (c *Casync) Reset() {
	c.h, c.c1, c.off = 0, 0, 0
	c.o1 = [256]byte{}
}

// Package wire defines the bundle's STLV-encoded structures —
// BundleHeader, PayloadEntry, PayloadHeader, BlockEncoding — as
// schema.Type implementations, each declaring its field layout once in
// a Fields method that drives both encode and decode.
package wire

import (
	"fmt"

	"github.com/edgeupdate/bundle/format"
	"github.com/edgeupdate/bundle/schema"
)

// BundleHeader is the BUNDLE_HEADER segment: the optional in-header
// manifest JSON, the hash algorithm every digest in the bundle uses,
// and the payload index.
type BundleHeader struct {
	Manifest      []byte
	HashAlgorithm string
	Payloads      []*PayloadEntry
}

var _ schema.Type = (*BundleHeader)(nil)

func (h *BundleHeader) Fields(c *schema.Codec) {
	schema.DefineBytes(c, format.BundleHeaderManifestTag, &h.Manifest)
	schema.DefineString(c, format.BundleHeaderHashAlgorithmTag, &h.HashAlgorithm)

	pidx := wrapPayloadIndex(&h.Payloads)
	schema.DefineSegment[*payloadIndex](c, format.BundleHeaderPayloadIndexTag, &pidx)
}

// payloadIndex exists only to give BUNDLE_HEADER_PAYLOAD_INDEX's
// repeated PAYLOAD_ENTRY children a segment to hang off of, since
// schema.DefineSegment declares exactly one nested object per tag.
type payloadIndex struct {
	entries *[]*PayloadEntry
}

func wrapPayloadIndex(entries *[]*PayloadEntry) *payloadIndex {
	return &payloadIndex{entries: entries}
}

func (p *payloadIndex) Fields(c *schema.Codec) {
	schema.DefineSliceOfSegments[*PayloadEntry](c, format.PayloadEntryTag, p.entries)
}

// DeliveryKind selects which variant of PayloadEntry's delivery field is set.
type DeliveryKind int

const (
	DeliveryUnset DeliveryKind = iota
	DeliverySlot
	DeliveryExecute
)

// PayloadEntry is one PAYLOAD_ENTRY segment in the payload index: the
// delivery target (slot name or execute handler, mutually exclusive)
// plus the entry's header and file hashes.
type PayloadEntry struct {
	Kind        DeliveryKind
	SlotName    string
	ExecHandler string
	HeaderHash  []byte
	FileHash    []byte
}

var _ schema.Type = (*PayloadEntry)(nil)

func (e *PayloadEntry) Fields(c *schema.Codec) {
	var slotSeg *slotNameSegment
	var execSeg *executeHandlerSegment

	if c.Encoding() {
		switch e.Kind {
		case DeliverySlot:
			slotSeg = &slotNameSegment{Name: e.SlotName}
		case DeliveryExecute:
			execSeg = &executeHandlerSegment{Handler: e.ExecHandler}
		default:
			c.Fail(fmt.Errorf("wire: payload entry has no delivery variant set"))

			return
		}
	}

	schema.DefineOneOfSegment[*slotNameSegment](c, format.PayloadEntryTypeSlotTag, &slotSeg)
	schema.DefineOneOfSegment[*executeHandlerSegment](c, format.PayloadEntryTypeExecTag, &execSeg)

	if !c.Encoding() {
		switch {
		case slotSeg != nil && execSeg == nil:
			e.Kind = DeliverySlot
			e.SlotName = slotSeg.Name
		case execSeg != nil && slotSeg == nil:
			e.Kind = DeliveryExecute
			e.ExecHandler = execSeg.Handler
		default:
			c.Fail(fmt.Errorf("wire: payload entry must set exactly one delivery variant"))

			return
		}
	}

	schema.DefineBytes(c, format.PayloadEntryHeaderHashTag, &e.HeaderHash)
	schema.DefineBytes(c, format.PayloadEntryFileHashTag, &e.FileHash)
}

type slotNameSegment struct {
	Name string
}

func (s *slotNameSegment) Fields(c *schema.Codec) {
	schema.DefineString(c, format.SlotNameTag, &s.Name)
}

type executeHandlerSegment struct {
	Handler string
}

func (e *executeHandlerSegment) Fields(c *schema.Codec) {
	schema.DefineString(c, format.ExecuteHandlerTag, &e.Handler)
}

// PayloadHeader is the PAYLOAD_HEADER segment: just the optional block
// encoding. Its absence means the payload body is a single raw, whole
// logical value.
type PayloadHeader struct {
	BlockEncoding *BlockEncoding
}

var _ schema.Type = (*PayloadHeader)(nil)

func (h *PayloadHeader) Fields(c *schema.Codec) {
	schema.DefineSegment[*BlockEncoding](c, format.PayloadHeaderBlockEncodingTag, &h.BlockEncoding)
}

// BlockEncoding is the PAYLOAD_HEADER_BLOCK_ENCODING segment: how a
// payload's body was chunked, hashed, deduplicated, and compressed.
type BlockEncoding struct {
	Chunker          string
	HashAlgorithm    string
	Deduplicated     bool
	Compression      string
	BlockHashes      []byte
	BlockSizes       []byte
	TotalLogicalSize uint64
}

var _ schema.Type = (*BlockEncoding)(nil)

func (b *BlockEncoding) Fields(c *schema.Codec) {
	schema.DefineString(c, format.BlockEncodingChunkerTag, &b.Chunker)
	schema.DefineString(c, format.BlockEncodingHashAlgorithmTag, &b.HashAlgorithm)

	var dedup byte
	if c.Encoding() {
		if b.Deduplicated {
			dedup = 1
		}
	}
	dedupBytes := []byte{dedup}
	schema.DefineBytes(c, format.BlockEncodingDeduplicatedTag, &dedupBytes)
	if !c.Encoding() && len(dedupBytes) == 1 {
		b.Deduplicated = dedupBytes[0] != 0
	}

	schema.DefineString(c, format.BlockEncodingCompressionTag, &b.Compression)
	schema.DefineBytes(c, format.BlockEncodingBlockHashesTag, &b.BlockHashes)
	schema.DefineBytes(c, format.BlockEncodingBlockSizesTag, &b.BlockSizes)
	schema.DefineUint64(c, format.BlockEncodingTotalLogicalSizeTag, &b.TotalLogicalSize)
}

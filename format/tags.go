package format

// Tag values for every field in the bundle wire format. Numbers below
// 0x10000 are reserved for the bundle schema itself; the top bit (set by
// OptionalTag) is not part of the numeric space and is stripped before
// uniqueness is checked by register.
//
// BundleTag reuses the exact value spec §6 assigns to the outermost
// BUNDLE segment; every other tag is an internally consistent
// assignment (the bit layout beyond the optional/required split is
// implementation-defined, per spec §6's note that "exact bit layout is
// implementation-defined, but must match across encoder and decoder").
var (
	BundleTag = register("BUNDLE", RequiredTag(0x6b50741c))

	BundleHeaderTag              = register("BUNDLE_HEADER", RequiredTag(0x00000001))
	BundleHeaderManifestTag      = register("BUNDLE_HEADER_MANIFEST", OptionalTag(0x00000002))
	BundleHeaderHashAlgorithmTag = register("BUNDLE_HEADER_HASH_ALGORITHM", RequiredTag(0x00000003))
	BundleHeaderPayloadIndexTag  = register("BUNDLE_HEADER_PAYLOAD_INDEX", RequiredTag(0x00000004))

	PayloadEntryTag           = register("PAYLOAD_ENTRY", RequiredTag(0x00000005))
	PayloadEntryTypeSlotTag   = register("PAYLOAD_ENTRY_TYPE_SLOT", RequiredTag(0x00000006))
	PayloadEntryTypeExecTag   = register("PAYLOAD_ENTRY_TYPE_EXEC", RequiredTag(0x00000007))
	PayloadEntryHeaderHashTag = register("PAYLOAD_ENTRY_HEADER_HASH", RequiredTag(0x00000008))
	PayloadEntryFileHashTag   = register("PAYLOAD_ENTRY_FILE_HASH", RequiredTag(0x00000009))

	// SlotNameTag and ExecuteHandlerTag are the leaf values inside the
	// PAYLOAD_ENTRY_TYPE_SLOT / PAYLOAD_ENTRY_TYPE_EXEC variant segments.
	SlotNameTag       = register("SLOT_NAME", RequiredTag(0x0000000a))
	ExecuteHandlerTag = register("EXECUTE_HANDLER", RequiredTag(0x0000000b))

	PayloadsTag = register("PAYLOADS", RequiredTag(0x0000000c))
	PayloadTag  = register("PAYLOAD", RequiredTag(0x0000000d))

	PayloadHeaderTag              = register("PAYLOAD_HEADER", RequiredTag(0x0000000e))
	PayloadHeaderBlockEncodingTag = register("PAYLOAD_HEADER_BLOCK_ENCODING", OptionalTag(0x0000000f))

	BlockEncodingChunkerTag          = register("BLOCK_ENCODING_CHUNKER", RequiredTag(0x00000010))
	BlockEncodingHashAlgorithmTag    = register("BLOCK_ENCODING_HASH_ALGORITHM", RequiredTag(0x00000011))
	BlockEncodingDeduplicatedTag     = register("BLOCK_ENCODING_DEDUPLICATED", RequiredTag(0x00000012))
	// BlockEncodingCompressionTag holds a single UTF-8 value, per spec §6's
	// wire-exact layout — not a nested segment. Its string form
	// ("xz:6", "zstd:3", "s2", "lz4", or absent for no compression) mirrors
	// BlockEncodingChunkerTag's "fixed:{size}" / "casync:{min},{avg},{max}"
	// convention, parsed and rendered by the manifest and wire packages.
	BlockEncodingCompressionTag      = register("BLOCK_ENCODING_COMPRESSION", OptionalTag(0x00000013))
	BlockEncodingBlockHashesTag      = register("BLOCK_ENCODING_BLOCK_HASHES", RequiredTag(0x00000014))
	BlockEncodingBlockSizesTag       = register("BLOCK_ENCODING_BLOCK_SIZES", OptionalTag(0x00000015))
	BlockEncodingTotalLogicalSizeTag = register("BLOCK_ENCODING_TOTAL_LOGICAL_SIZE", OptionalTag(0x00000016))

	PayloadDataTag = register("PAYLOAD_DATA", RequiredTag(0x0000001d))
)

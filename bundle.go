// Package bundle provides a space-efficient container format for
// delivering firmware and software updates: a single streamable file
// holding a manifest-described set of payloads, each optionally split
// into content-defined blocks so a device only has to transfer and
// store the bytes its previous install doesn't already have.
//
// # Core features
//
//   - Self-describing STLV (segment/tag/length/value) binary envelope,
//     readable and writable one atom at a time without buffering a
//     whole bundle in memory
//   - Content-defined chunking (fixed-size or casync-style rolling
//     hash) with optional within-payload block deduplication
//   - Per-block and bulk-vector compression (xz, zstd, s2, lz4)
//   - Slot-based A/B delivery alongside one-shot execute handlers for
//     payloads that aren't written straight to a device partition
//   - SHA-256/SHA-512-256 integrity verification at both the block and
//     whole-payload level, checked before any byte is committed
//
// # Basic usage
//
// Building a bundle from a manifest and a set of payload readers:
//
//	import "github.com/edgeupdate/bundle"
//
//	enc, err := bundle.NewEncoder()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = enc.Encode(ctx, m, map[string]io.ReaderAt{
//	    "root.img": rootImage,
//	}, out)
//
// Installing a bundle onto a device's slots:
//
//	in, err := bundle.NewInstaller()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = in.Install(ctx, src, slots, execs, provider)
//
// # Package structure
//
// This package is a thin convenience wrapper around package encoder and
// package installer. For manifest parsing use package manifest; for the
// wire structures themselves use package wire and package format; for
// slot/execute-handler contracts use package slot and package exec.
package bundle

import (
	"github.com/edgeupdate/bundle/encoder"
	"github.com/edgeupdate/bundle/installer"
	"github.com/edgeupdate/bundle/internal/options"
)

// NewEncoder creates a bundle Encoder with the given options. See
// package encoder's WithHashAlgorithm, WithTempDir, and WithCancel.
func NewEncoder(opts ...options.Option[*encoder.Encoder]) (*encoder.Encoder, error) {
	return encoder.New(opts...)
}

// NewInstaller creates a bundle Installer with the given options. See
// package installer's WithTempDir and WithCancel.
func NewInstaller(opts ...options.Option[*installer.Installer]) (*installer.Installer, error) {
	return installer.New(opts...)
}

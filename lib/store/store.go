// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists finished products on the local filesystem.
//
// A store is a directory of content-addressed product files. Each
// product lives under products/ in a two-character shard named by
// the leading bytes of its signature:
//
//	products/3f/3fa8...e2.gini          product bytes (as assembled)
//	products/3f/3fa8...e2.gini.zst      or compressed for storage
//	products/3f/3fa8...e2.info.cbor     catalog record (lib/codec CBOR)
//
// The signature is the product-domain BLAKE3 digest of the
// serialized image, so re-inserting a product the feed transmitted
// twice is detected before any bytes are written and treated as
// success. Whole-file compression is an attribute of each stored
// file, recorded in its extension; changing the configured algorithm
// leaves existing products readable.
//
// A store is owned by one process at a time, enforced with an
// advisory lock on the .lock file in the store root. Within the
// owning process a Store is safe for concurrent use by multiple
// sessions: inserts of distinct products touch distinct paths, and
// duplicate inserts of the same product are idempotent.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/downlink-project/downlink/lib/codec"
	"github.com/downlink-project/downlink/lib/product"
)

// Options configures a store.
type Options struct {
	// Compression is applied to product bytes on insert. Products
	// that do not shrink are stored uncompressed regardless.
	Compression Compression

	// Logger for store events. When nil, slog.Default() is used.
	Logger *slog.Logger
}

// Store is an open product store.
type Store struct {
	dir         string
	compression Compression
	logger      *slog.Logger
	lockFile    *os.File
}

// Open opens the store rooted at dir, creating the directory layout
// if needed, and takes the store's advisory lock. Fails when another
// process holds the store.
func Open(dir string, options Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "products"), 0755); err != nil {
		return nil, fmt.Errorf("creating store layout: %w", err)
	}

	lockPath := filepath.Join(dir, ".lock")
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening store lock: %w", err)
	}
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lockFile.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("store %s is locked by another process", dir)
		}
		return nil, fmt.Errorf("locking store: %w", err)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		dir:         dir,
		compression: options.Compression,
		logger:      logger,
		lockFile:    lockFile,
	}, nil
}

// Close releases the store's advisory lock. Idempotent.
func (s *Store) Close() error {
	if s.lockFile == nil {
		return nil
	}
	lockFile := s.lockFile
	s.lockFile = nil
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_UN); err != nil {
		lockFile.Close()
		return fmt.Errorf("unlocking store: %w", err)
	}
	return lockFile.Close()
}

// shardPath returns the extension-less product path for a signature.
func (s *Store) shardPath(sig product.Signature) string {
	hex := sig.String()
	return filepath.Join(s.dir, "products", hex[:2], hex)
}

// lookup finds the stored file for a signature under any
// compression. Returns the path and its compression, or ok=false.
func (s *Store) lookup(sig product.Signature) (path string, c Compression, ok bool) {
	base := s.shardPath(sig)
	for _, candidate := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		path := base + candidate.extension()
		if _, err := os.Stat(path); err == nil {
			return path, candidate, true
		}
	}
	return "", 0, false
}

// Insert stores a finished product. Returns false without touching
// the store when the product is already present: a feed retransmits
// products routinely, so a duplicate is success, not an error.
func (s *Store) Insert(data []byte, info product.Info) (bool, error) {
	sig, err := product.ParseSignature(info.Signature)
	if err != nil {
		return false, fmt.Errorf("insert: %w", err)
	}
	if info.Size != len(data) {
		return false, fmt.Errorf("insert %s: info declares %d bytes but product has %d",
			info.Identity, info.Size, len(data))
	}

	if _, _, ok := s.lookup(sig); ok {
		s.logger.Info("duplicate product",
			"ident", info.Identity, "signature", info.Signature)
		return false, nil
	}

	compression := s.compression
	blob, err := compress(data, compression)
	if errors.Is(err, errIncompressible) {
		compression = CompressionNone
		blob = data
	} else if err != nil {
		return false, fmt.Errorf("insert %s: %w", info.Identity, err)
	}

	base := s.shardPath(sig)
	if err := os.MkdirAll(filepath.Dir(base), 0755); err != nil {
		return false, fmt.Errorf("creating product shard: %w", err)
	}

	record, err := codec.Marshal(info)
	if err != nil {
		return false, fmt.Errorf("encoding product record: %w", err)
	}
	// Sidecar first. A crash between the two writes leaves an orphan
	// record, which lookup never surfaces; a product file with no
	// record would be unreadable.
	if err := writeFileAtomic(base+".info.cbor", record); err != nil {
		return false, fmt.Errorf("writing product record: %w", err)
	}
	if err := writeFileAtomic(base+compression.extension(), blob); err != nil {
		return false, fmt.Errorf("writing product: %w", err)
	}

	s.logger.Info("product stored",
		"ident", info.Identity,
		"signature", info.Signature,
		"bytes", len(data),
		"stored_bytes", len(blob),
		"compression", compression.String())
	return true, nil
}

// Has reports whether a product with the given signature is stored.
func (s *Store) Has(sig product.Signature) bool {
	_, _, ok := s.lookup(sig)
	return ok
}

// Get loads a stored product and its catalog record. The returned
// bytes are the product as assembled, decompressed and verified
// against the signature. The error matches os.ErrNotExist when the
// product is absent.
func (s *Store) Get(sig product.Signature) ([]byte, product.Info, error) {
	path, compression, ok := s.lookup(sig)
	if !ok {
		return nil, product.Info{}, fmt.Errorf("product %s: %w", sig, os.ErrNotExist)
	}

	data, info, err := readProductFile(path, compression, s.shardPath(sig)+".info.cbor")
	if err != nil {
		return nil, product.Info{}, fmt.Errorf("product %s: %w", sig, err)
	}
	if info.Signature != sig.String() {
		return nil, product.Info{}, fmt.Errorf("product %s: record declares signature %s",
			sig, info.Signature)
	}
	return data, info, nil
}

// ReadProduct loads one product file directly by path, without
// opening a store around it. The file's extension picks the
// decompression and the .info.cbor sidecar beside it supplies the
// catalog record and expected size; the bytes are verified against
// the record's signature. Inspection tooling reads shard files with
// it. A store in active use stays behind [Store.Get].
func ReadProduct(path string) ([]byte, product.Info, error) {
	name := filepath.Base(path)
	dot := strings.Index(name, ".")
	if dot < 0 {
		return nil, product.Info{}, fmt.Errorf("%s: not a product file", path)
	}
	compression, err := compressionForExtension(name[dot:])
	if err != nil {
		return nil, product.Info{}, fmt.Errorf("%s: %w", path, err)
	}

	data, info, err := readProductFile(path, compression, strings.TrimSuffix(path, name[dot:])+".info.cbor")
	if err != nil {
		return nil, product.Info{}, fmt.Errorf("%s: %w", path, err)
	}
	return data, info, nil
}

// readProductFile loads a product file and its catalog record,
// decompresses the bytes, and verifies them against the record's
// signature.
func readProductFile(path string, compression Compression, recordPath string) ([]byte, product.Info, error) {
	record, err := os.ReadFile(recordPath)
	if err != nil {
		return nil, product.Info{}, fmt.Errorf("reading product record: %w", err)
	}
	var info product.Info
	if err := codec.Unmarshal(record, &info); err != nil {
		return nil, product.Info{}, fmt.Errorf("decoding product record: %w", err)
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, product.Info{}, fmt.Errorf("reading product: %w", err)
	}
	data, err := decompress(blob, compression, info.Size)
	if err != nil {
		return nil, product.Info{}, err
	}

	sig, err := product.ParseSignature(info.Signature)
	if err != nil {
		return nil, product.Info{}, fmt.Errorf("product record: %w", err)
	}
	if product.Sign(data) != sig {
		return nil, product.Info{}, errors.New("stored bytes do not match their signature")
	}
	return data, info, nil
}

// Signatures lists the signatures of every stored product, in no
// particular order.
func (s *Store) Signatures() ([]product.Signature, error) {
	var signatures []product.Signature

	root := filepath.Join(s.dir, "products")
	shards, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("listing store: %w", err)
	}
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(root, shard.Name()))
		if err != nil {
			return nil, fmt.Errorf("listing shard %s: %w", shard.Name(), err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if strings.HasSuffix(name, ".info.cbor") {
				continue
			}
			hex, _, found := strings.Cut(name, ".")
			if !found {
				continue
			}
			sig, err := product.ParseSignature(hex)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}
	return signatures, nil
}

// writeFileAtomic writes data to path via a temporary file in the
// same directory, fsyncing before the rename so readers never see a
// partial file.
func writeFileAtomic(path string, data []byte) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", temporaryPath, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing %s: %w", temporaryPath, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing %s: %w", temporaryPath, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing %s: %w", temporaryPath, err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming %s into place: %w", path, err)
	}
	return nil
}

// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest drives product assembly from transport-layer events.
//
// A [Session] owns one assembler and walks it through the product
// cycle as feed events arrive: [Session.StartProduct] begins a
// product from its header-bearing first block, [Session.Block]
// appends data blocks by index (synthesizing blank blocks across
// gaps, dropping late retransmissions), and [Session.EndProduct]
// pads the image to its declared size, derives its identity, and
// hands it to the session's handler.
//
// Sessions tolerate feed damage rather than failing the stream: a
// lost end event is recovered when the next product starts, a block
// that cannot be decoded is dropped and its scan lines blank-filled,
// and orphan blocks with no product in progress are counted and
// ignored. Only resource exhaustion and handler failures surface as
// errors.
//
// A session serves one feed goroutine; it is not safe for concurrent
// use. Multiple sessions may share one [gini.Registry] so blank-fill
// caches are built once per geometry across the process.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/downlink-project/downlink/lib/clock"
	"github.com/downlink-project/downlink/lib/dynabuf"
	"github.com/downlink-project/downlink/lib/gini"
	"github.com/downlink-project/downlink/lib/product"
)

// defaultBufferBytes is the product buffer's starting capacity when
// Params does not set one.
const defaultBufferBytes = 1 << 20

// Handler receives each finished product. The image's serialized
// bytes are only valid until the handler returns; implementations
// that retain the product must copy.
type Handler func(ctx context.Context, img *gini.Image, info product.Info) error

// Start describes a product's first block as reported by the
// transport layer. The scan-line geometry rides in the feed's
// product-specific header, outside the block payload.
type Start struct {
	// RecordLength is the size of one scan line in bytes.
	RecordLength int

	// RecordsPerBlock is the scan lines carried per data block.
	RecordsPerBlock int

	// Compressed reports whether the first block is a zlib stream.
	Compressed bool

	// ProductType is the feed channel (1 GOES-East, 2 GOES-West,
	// 3 non-GOES).
	ProductType int

	// SizeEstimate is the transport's guess at the serialized
	// product size, used to presize the buffer. Zero skips the
	// presize.
	SizeEstimate int
}

// Params configures a Session.
type Params struct {
	// Registry provides shared blank-block caches. Required.
	Registry *gini.Registry

	// Handler receives each finished product. Required.
	Handler Handler

	// Logger for session events. When nil, slog.Default() is used.
	Logger *slog.Logger

	// Clock supplies product arrival timestamps. When nil, the real
	// clock is used.
	Clock clock.Clock

	// InitialBufferBytes is the product buffer's starting capacity.
	// Zero uses a 1 MiB default.
	InitialBufferBytes int

	// MaxProductBytes caps how large one product may grow. A product
	// that would exceed the cap is aborted with a memory-class
	// error. Zero means no cap.
	MaxProductBytes int
}

// Stats counts session activity since the session was created.
type Stats struct {
	// ProductsStarted counts successful StartProduct calls.
	ProductsStarted int

	// ProductsCompleted counts products handed to the handler
	// successfully.
	ProductsCompleted int

	// ProductsAborted counts products discarded before hand-off:
	// assembly failures and products cut short by the next start.
	ProductsAborted int

	// HandlerErrors counts products that finished assembly but whose
	// hand-off failed.
	HandlerErrors int

	// BlocksReceived counts blocks appended to an image, the start
	// block included.
	BlocksReceived int

	// BlocksFilled counts blank blocks synthesized across gaps.
	BlocksFilled int

	// BlocksLate counts blocks dropped because assembly had already
	// moved past their index.
	BlocksLate int

	// BlocksOrphaned counts blocks dropped because no product was in
	// progress.
	BlocksOrphaned int

	// BlocksRejected counts blocks dropped because their payload
	// could not be decoded.
	BlocksRejected int

	// RecordsFilled counts blank scan lines appended, gap fills and
	// end-of-product padding together.
	RecordsFilled int

	// BytesReceived sums the payload bytes of appended blocks.
	BytesReceived int64

	// BytesDelivered sums the serialized bytes of completed products.
	BytesDelivered int64
}

// Session assembles products from feed events and hands each
// finished product to a handler.
type Session struct {
	img     *gini.Image
	buf     *dynabuf.Buffer
	handler Handler
	logger  *slog.Logger
	clk     clock.Clock
	active  bool
	stats   Stats
}

// NewSession creates a session. The caller must Close it to release
// its hold on the registry's blank-fill caches.
func NewSession(params Params) (*Session, error) {
	if params.Registry == nil {
		return nil, fmt.Errorf("ingest session requires a registry")
	}
	if params.Handler == nil {
		return nil, fmt.Errorf("ingest session requires a handler")
	}

	initial := params.InitialBufferBytes
	if initial <= 0 {
		initial = defaultBufferBytes
	}
	var buf *dynabuf.Buffer
	if params.MaxProductBytes > 0 {
		buf = dynabuf.NewWithLimit(initial, params.MaxProductBytes)
	} else {
		buf = dynabuf.New(initial)
	}

	img, err := gini.NewImage(buf, params.Registry)
	if err != nil {
		return nil, fmt.Errorf("creating assembler: %w", err)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.Real()
	}

	return &Session{
		img:     img,
		buf:     buf,
		handler: params.Handler,
		logger:  logger,
		clk:     clk,
	}, nil
}

// StartProduct begins assembly of a new product from its first
// block. A product already in progress is discarded first: the feed
// losing an end event is routine damage, and the new start is the
// only signal it happened.
func (s *Session) StartProduct(data []byte, start Start) error {
	if s.active {
		s.logger.Warn("new product started mid-assembly, discarding partial product",
			"wmo_header", s.img.WMOHeader(),
			"blocks", s.img.BlockCount())
		s.img.Abort()
		s.active = false
		s.stats.ProductsAborted++
	}

	if start.SizeEstimate > 0 {
		// Grow capacity up front so a typical product never
		// reallocates mid-assembly. The region is not committed;
		// Start clears the buffer before appending. The estimate is
		// a hint: when it exceeds the product cap, assembly proceeds
		// and fails only if the product actually grows past the cap.
		if _, err := s.buf.Reserve(start.SizeEstimate); err != nil {
			s.logger.Debug("product buffer presize skipped",
				"estimate", start.SizeEstimate, "error", err)
		}
	}

	err := s.img.Start(data, start.RecordLength, start.RecordsPerBlock,
		start.Compressed, start.ProductType)
	if err != nil {
		return fmt.Errorf("start product: %w", err)
	}

	s.active = true
	s.stats.ProductsStarted++
	s.stats.BlocksReceived++
	s.stats.BytesReceived += int64(len(data))

	s.logger.Debug("product started",
		"wmo_header", s.img.WMOHeader(),
		"records", s.img.DeclaredRecords(),
		"blocks_expected", s.img.ExpectedBlocks(),
		"compressed", s.img.Compressed())
	return nil
}

// Block appends the data block carrying the given index. Blocks
// whose index is behind assembly are late retransmissions and are
// dropped. Blocks ahead of assembly have the gap blank-filled first.
// Blocks whose payload cannot be decoded are dropped; the hole they
// leave is filled when a later block or EndProduct pads past it.
//
// An error means the product could not continue and was discarded.
func (s *Session) Block(index int, data []byte, compressed bool) error {
	if !s.active {
		s.logger.Warn("data block with no product in progress, dropping",
			"index", index, "bytes", len(data))
		s.stats.BlocksOrphaned++
		return nil
	}

	current := s.img.BlockCount()
	if index < current {
		s.logger.Info("late data block dropped",
			"index", index, "blocks", current)
		s.stats.BlocksLate++
		return nil
	}

	if index > current {
		gap := index - current
		if err := s.img.AddMissingBlocks(index); err != nil {
			s.abortProduct("blank-filling block gap", err)
			return fmt.Errorf("fill %d-block gap before block %d: %w", gap, index, err)
		}
		s.stats.BlocksFilled += gap
		s.stats.RecordsFilled += gap * s.img.RecordsPerBlock()
		s.logger.Debug("blank-filled block gap",
			"blocks", gap, "next_index", index)
	}

	if err := s.img.AddBlock(data, compressed); err != nil {
		switch gini.StatusOf(err) {
		case gini.StatusInval, gini.StatusSystem:
			// Damaged payload. The block is dropped; its scan
			// lines are blank-filled when assembly moves past its
			// index.
			s.logger.Warn("undecodable data block dropped",
				"index", index, "bytes", len(data), "error", err)
			s.stats.BlocksRejected++
			return nil
		}
		s.abortProduct("appending data block", err)
		return fmt.Errorf("append block %d: %w", index, err)
	}

	s.stats.BlocksReceived++
	s.stats.BytesReceived += int64(len(data))
	return nil
}

// EndProduct completes the product in progress: the image is padded
// to its declared scan-line count, identified, and handed to the
// handler. No-op when no product is in progress, so a feed layer may
// signal end-of-product unconditionally.
func (s *Session) EndProduct(ctx context.Context) error {
	if !s.active {
		return nil
	}

	// Scan lines Finish is about to blank-fill.
	delivered := s.img.RecordsPerBlock() * (s.img.BlockCount() - 1)
	tail := s.img.DeclaredRecords() - delivered

	if err := s.img.Finish(); err != nil {
		s.abortProduct("finishing product", err)
		return fmt.Errorf("finish product: %w", err)
	}
	s.active = false
	if tail > 0 {
		s.stats.RecordsFilled += tail
	}

	info := product.InfoFromImage(s.img, s.clk.Now())
	if err := s.handler(ctx, s.img, info); err != nil {
		s.stats.HandlerErrors++
		return fmt.Errorf("handle product %s: %w", info.Identity, err)
	}

	s.stats.ProductsCompleted++
	s.stats.BytesDelivered += int64(s.img.Len())
	s.logger.Info("product completed",
		"ident", info.Identity,
		"bytes", s.img.Len(),
		"blocks", s.img.BlockCount(),
		"records_filled", tail)
	return nil
}

// abortProduct discards the product in progress after an
// unrecoverable assembly failure.
func (s *Session) abortProduct(operation string, err error) {
	s.logger.Error("product assembly aborted",
		"operation", operation,
		"wmo_header", s.img.WMOHeader(),
		"error", err)
	s.img.Abort()
	s.active = false
	s.stats.ProductsAborted++
}

// Stats returns a snapshot of the session's counters.
func (s *Session) Stats() Stats {
	return s.stats
}

// Close discards any product in progress and releases the session's
// hold on the registry's blank-fill caches. Idempotent.
func (s *Session) Close() {
	if s.active {
		s.stats.ProductsAborted++
		s.active = false
	}
	s.img.Close()
}

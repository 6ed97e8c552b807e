// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

// downlink-inspect decodes a serialized product file and prints its
// metadata, and optionally its block layout or raw catalog record. It
// reads raw assembler output as well as store shard files, including
// store-compressed ones, which are decompressed through their catalog
// sidecar.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/downlink-project/downlink/lib/codec"
	"github.com/downlink-project/downlink/lib/dynabuf"
	"github.com/downlink-project/downlink/lib/gini"
	"github.com/downlink-project/downlink/lib/product"
	"github.com/downlink-project/downlink/lib/store"
	"github.com/downlink-project/downlink/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	emitJSON := pflag.Bool("json", false, "print metadata as JSON")
	showBlocks := pflag.Bool("blocks", false, "print the block layout after the metadata")
	showRecord := pflag.Bool("record", false, "print the catalog record in CBOR diagnostic notation")
	showVersion := pflag.BoolP("version", "V", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("downlink-inspect %s\n", version.Info())
		return nil
	}

	args := pflag.Args()
	if len(args) != 1 {
		return fmt.Errorf("usage: downlink-inspect [flags] <product-file>")
	}
	path := args[0]

	data, info, haveRecord, err := loadProduct(path)
	if err != nil {
		return err
	}

	img, err := gini.NewImage(dynabuf.New(max(len(data), 1)), gini.NewRegistry())
	if err != nil {
		return err
	}
	defer img.Close()

	if err := img.Deserialize(data); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	if !haveRecord {
		stat, err := os.Stat(path)
		if err != nil {
			return err
		}
		// No catalog record to report arrival from; the file's
		// modification time is the closest thing.
		info = product.InfoFromImage(img, stat.ModTime())
	}

	if *emitJSON {
		encoded, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
	} else {
		printInfo(info)
	}

	if *showBlocks {
		if !*emitJSON {
			fmt.Println()
		}
		if err := printBlocks(img); err != nil {
			return fmt.Errorf("walking blocks of %s: %w", path, err)
		}
	}

	if *showRecord {
		if !*emitJSON || *showBlocks {
			fmt.Println()
		}
		if err := printRecord(path); err != nil {
			return fmt.Errorf("reading catalog record of %s: %w", path, err)
		}
	}
	return nil
}

// loadProduct reads a product file. Store-compressed shard files
// cannot be decoded without their sidecar, so they load through the
// store and carry its catalog record; plain files load as-is.
func loadProduct(path string) (data []byte, info product.Info, haveRecord bool, err error) {
	if strings.HasSuffix(path, ".gini.lz4") || strings.HasSuffix(path, ".gini.zst") {
		data, info, err = store.ReadProduct(path)
		return data, info, err == nil, err
	}
	data, err = os.ReadFile(path)
	return data, product.Info{}, false, err
}

func printInfo(info product.Info) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "identity\t%s\n", info.Identity)
	fmt.Fprintf(writer, "signature\t%s\n", info.Signature)
	fmt.Fprintf(writer, "wmo header\t%s\n", info.WMOHeader)
	if info.Originator != "" {
		fmt.Fprintf(writer, "originator\t%s\n", info.Originator)
	}
	fmt.Fprintf(writer, "platform\t%s\n", info.Platform)
	fmt.Fprintf(writer, "channel\t%s\n", info.Channel)
	fmt.Fprintf(writer, "sector\t%s\n", info.Sector)
	if info.ProductType != 0 {
		fmt.Fprintf(writer, "feed channel\t%d\n", info.ProductType)
	}
	fmt.Fprintf(writer, "compressed\t%t\n", info.Compressed)
	fmt.Fprintf(writer, "resolution\t%d km\n", info.ResolutionKM)
	fmt.Fprintf(writer, "image\t%d x %d\n", info.Width, info.Height)
	fmt.Fprintf(writer, "records\t%d x %d bytes\n", info.Records, info.RecordLength)
	fmt.Fprintf(writer, "valid time\t%s\n", info.ValidTime.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(writer, "arrived\t%s\n", info.ArrivedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(writer, "size\t%d bytes\n", info.Size)
	writer.Flush()
}

// printRecord prints the catalog record beside a product file in CBOR
// diagnostic notation, the exact bytes the store wrote rather than
// their decoded Go form.
func printRecord(path string) error {
	name := filepath.Base(path)
	dot := strings.Index(name, ".")
	if dot < 0 {
		return fmt.Errorf("%s has no extension to derive the record path from", name)
	}
	record, err := os.ReadFile(strings.TrimSuffix(path, name[dot:]) + ".info.cbor")
	if err != nil {
		return err
	}
	diag, err := codec.Diagnose(record)
	if err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}
	fmt.Println(diag)
	return nil
}

func printBlocks(img *gini.Image) error {
	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(writer, "BLOCK\tOFFSET\tBYTES\tKIND\n")

	offset := 0
	it := img.Blocks()
	for it.Next() {
		kind := "data"
		if it.Index() == 0 {
			kind = "header"
		}
		fmt.Fprintf(writer, "%d\t%d\t%d\t%s\n", it.Index(), offset, len(it.Block()), kind)
		offset += len(it.Block())
	}
	if err := it.Err(); err != nil {
		return err
	}
	return writer.Flush()
}

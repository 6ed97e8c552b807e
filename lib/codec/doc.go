// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Downlink's standard CBOR encoding
// configuration.
//
// Downlink serializes product metadata (store sidecars, inspection
// output) as CBOR through this package so that every writer encodes
// identically without duplicating configuration. The encoder uses
// Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items. The same
// logical metadata always produces identical bytes, which keeps
// sidecar files stable across rewrites and comparable by hash.
//
// For buffer-oriented operations (sidecar files):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
package codec

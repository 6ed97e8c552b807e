// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package wmo parses WMO abbreviated heading lines, the textual
// identifiers that prefix broadcast products ("TIGE05 KNES 211230" or
// with a trailing indicator "TIGE05 KNES 211230 PAA"). The assembly
// engine treats the heading as an opaque string; this package gives
// product identification and storage the individual fields.
package wmo

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is wrapped by every parse failure in this package.
var ErrMalformed = errors.New("malformed WMO heading")

// Header is a parsed abbreviated heading, TTAAii CCCC DDHHMM [BBB].
type Header struct {
	// TT is the data type designator (T1T2), e.g. "TI" for satellite
	// imagery.
	TT string

	// AA is the geographic area designator (A1A2).
	AA string

	// II is the two-digit numeric discriminator (ii).
	II int

	// CCCC is the originating center, e.g. "KNES".
	CCCC string

	// Day, Hour and Minute are the DDHHMM group as encoded, not
	// range-checked: the heading is identification, not a clock.
	Day, Hour, Minute int

	// BBB is the optional amendment/correction/retransmission
	// indicator, empty when absent.
	BBB string
}

// digits converts a run of ASCII digits. Unlike strconv.Atoi it
// rejects signs and spaces, which have no place in a heading group.
func digits(s string) (int, bool) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, len(s) > 0
}

func letters(s string) bool {
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// Parse splits an abbreviated heading line into its fields. The line
// is what the assembly engine reports as the image's textual header:
// already line-terminator free, with carriage returns stripped.
func Parse(line string) (Header, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 && len(fields) != 4 {
		return Header{}, fmt.Errorf("%w: %d fields in %q", ErrMalformed, len(fields), line)
	}

	ttaaii := fields[0]
	if len(ttaaii) != 6 || !letters(ttaaii[:4]) {
		return Header{}, fmt.Errorf("%w: designator %q", ErrMalformed, ttaaii)
	}
	ii, ok := digits(ttaaii[4:])
	if !ok {
		return Header{}, fmt.Errorf("%w: discriminator in %q", ErrMalformed, ttaaii)
	}

	cccc := fields[1]
	if len(cccc) != 4 {
		return Header{}, fmt.Errorf("%w: originator %q is not 4 characters", ErrMalformed, cccc)
	}
	for _, c := range cccc {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return Header{}, fmt.Errorf("%w: originator %q", ErrMalformed, cccc)
		}
	}

	ddhhmm := fields[2]
	if len(ddhhmm) != 6 {
		return Header{}, fmt.Errorf("%w: time group %q is not 6 digits", ErrMalformed, ddhhmm)
	}
	day, dayOK := digits(ddhhmm[:2])
	hour, hourOK := digits(ddhhmm[2:4])
	minute, minuteOK := digits(ddhhmm[4:])
	if !dayOK || !hourOK || !minuteOK {
		return Header{}, fmt.Errorf("%w: time group %q", ErrMalformed, ddhhmm)
	}

	header := Header{
		TT:     ttaaii[:2],
		AA:     ttaaii[2:4],
		II:     ii,
		CCCC:   cccc,
		Day:    day,
		Hour:   hour,
		Minute: minute,
	}

	if len(fields) == 4 {
		bbb := fields[3]
		if len(bbb) != 3 || !letters(bbb) {
			return Header{}, fmt.Errorf("%w: indicator %q", ErrMalformed, bbb)
		}
		header.BBB = bbb
	}

	return header, nil
}

// String reassembles the canonical heading line.
func (h Header) String() string {
	s := fmt.Sprintf("%s%s%02d %s %02d%02d%02d", h.TT, h.AA, h.II, h.CCCC, h.Day, h.Hour, h.Minute)
	if h.BBB != "" {
		s += " " + h.BBB
	}
	return s
}

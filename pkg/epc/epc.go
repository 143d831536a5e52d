// Package epc canonicalises raw RFID reads into the identifier space used for
// tag storage and lookup.
//
// Two reader families are in use: UHF handhelds report the 12-byte EPC bank
// as 24 hex characters, while the WD01 desktop encoder only exposes a 16-byte
// TID-style read (32 hex characters, byte-reversed, ending in the 0030 marker).
package epc

import (
	"encoding/hex"
	"regexp"
	"strings"
)

const (
	// PrefixBox marks container tags; the remainder is the box ID.
	PrefixBox = "BOX-"

	// UHFLength is the hex length of a UHF EPC bank read.
	UHFLength = 24
	// WD01Length is the hex length of a WD01 desktop reader read.
	WD01Length = 32
	// WD01Suffix is the fixed marker written by the desktop encoding station.
	WD01Suffix = "0030"

	wd01HeaderBytes  = 2
	wd01PayloadBytes = 12
)

// GraduatePattern matches EPCs that are themselves a convocation number,
// e.g. 120AEC1001 or 98wec22.
var GraduatePattern = regexp.MustCompile(`(?i)^\d+(AEC|WEC)\d+$`)

// Kind is the tag variant detectable from an EPC alone.
type Kind string

const (
	KindUnknown  Kind = ""
	KindGraduate Kind = "graduate"
	KindBox      Kind = "box"
)

// Match methods reported by the lookup fallback chain.
const (
	MatchExact     = "exact"
	MatchTruncated = "truncated"
	MatchWD01      = "wd01"
)

// Candidate is one lookup key produced by the fallback chain.
type Candidate struct {
	EPC    string
	Method string
}

// Normalize trims whitespace and uppercases a raw read. Box EPCs keep their prefix.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// IsHex reports whether s is a non-empty string of hex digits.
func IsHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// IsWD01Format reports whether s is a 32 hex character WD01 read ending in 0030.
func IsWD01Format(s string) bool {
	return len(s) == WD01Length && IsHex(s) && strings.EqualFold(s[WD01Length-len(WD01Suffix):], WD01Suffix)
}

// ConvertWD01ToUHF translates a WD01 read into the EPC a UHF scanner reports for
// the same tag. The read is split into 16 bytes, the byte order reversed, the
// 2-byte header word dropped and the next 12 bytes returned as uppercase hex.
func ConvertWD01ToUHF(wd01 string) (string, bool) {
	if !IsWD01Format(wd01) {
		return "", false
	}
	raw, err := hex.DecodeString(wd01)
	if err != nil {
		return "", false
	}
	reverseBytes(raw)
	payload := raw[wd01HeaderBytes : wd01HeaderBytes+wd01PayloadBytes]
	return strings.ToUpper(hex.EncodeToString(payload)), true
}

// UHFToReversedHex byte-swaps a UHF EPC. It is used to match diagnostic dumps
// from the desktop encoder; odd-length or non-hex input is returned normalised
// but otherwise untouched.
func UHFToReversedHex(uhf string) string {
	uhf = Normalize(uhf)
	if len(uhf)%2 != 0 || !IsHex(uhf) {
		return uhf
	}
	raw, _ := hex.DecodeString(uhf)
	reverseBytes(raw)
	return strings.ToUpper(hex.EncodeToString(raw))
}

// IsBoxEPC reports whether the EPC carries the box prefix.
func IsBoxEPC(epc string) bool {
	return len(epc) > len(PrefixBox) && strings.EqualFold(epc[:len(PrefixBox)], PrefixBox)
}

// BoxID returns the identifier after the box prefix.
func BoxID(epc string) string {
	if !IsBoxEPC(epc) {
		return ""
	}
	return strings.TrimSpace(epc[len(PrefixBox):])
}

// BoxEPC builds the canonical EPC for a box ID.
func BoxEPC(boxID string) string {
	return PrefixBox + Normalize(boxID)
}

// IsGraduateEPC reports whether the EPC is a convocation number.
func IsGraduateEPC(epc string) bool {
	return GraduatePattern.MatchString(strings.TrimSpace(epc))
}

// DetectKind classifies an EPC by shape. Anything unrecognised is KindUnknown.
func DetectKind(epc string) Kind {
	switch {
	case IsBoxEPC(epc):
		return KindBox
	case IsGraduateEPC(epc):
		return KindGraduate
	default:
		return KindUnknown
	}
}

// Candidates returns the ordered lookup keys for a scanned string: the exact
// read, the first 24 characters of an over-long hex read (EPC followed by TID
// bytes) and the UHF translation of a WD01 read. Duplicates are skipped.
func Candidates(raw string) []Candidate {
	value := Normalize(raw)
	if value == "" {
		return nil
	}
	out := []Candidate{{EPC: value, Method: MatchExact}}
	seen := map[string]struct{}{value: {}}
	add := func(epc, method string) {
		if _, ok := seen[epc]; ok {
			return
		}
		seen[epc] = struct{}{}
		out = append(out, Candidate{EPC: epc, Method: method})
	}
	if len(value) > UHFLength && IsHex(value) {
		add(value[:UHFLength], MatchTruncated)
	}
	if uhf, ok := ConvertWD01ToUHF(value); ok {
		add(uhf, MatchWD01)
	}
	return out
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

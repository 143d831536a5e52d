package epc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWD01 lays out a desktop-reader read for the given UHF EPC: two filler
// bytes, the EPC bytes reversed, then the 0030 marker.
func buildWD01(uhf string) string {
	return "ABCD" + UHFToReversedHex(uhf) + WD01Suffix
}

func TestConvertWD01RoundTrip(t *testing.T) {
	epcs := []string{
		"E28011700000020F1A2B3C4D",
		"300833B2DDD9014000000000",
		"000000000000000000000001",
		"abcdef0123456789abcdef01",
	}
	for _, uhf := range epcs {
		wd01 := buildWD01(uhf)
		require.True(t, IsWD01Format(wd01), wd01)

		got, ok := ConvertWD01ToUHF(wd01)
		require.True(t, ok)
		assert.Equal(t, strings.ToUpper(uhf), got)
	}
}

func TestIsWD01Format(t *testing.T) {
	assert.True(t, IsWD01Format("0123456789ABCDEF0123456789AB0030"))
	assert.True(t, IsWD01Format("0123456789abcdef0123456789ab0030"))
	assert.False(t, IsWD01Format("0123456789ABCDEF0123456789AB0031"), "wrong suffix")
	assert.False(t, IsWD01Format("0123456789ABCDEF0123456789A0030"), "31 chars")
	assert.False(t, IsWD01Format("0123456789ABCDEF0123456789XY0030"), "non-hex")
	assert.False(t, IsWD01Format("0123456789ABCDEF01230030"), "24 chars with suffix")
	assert.False(t, IsWD01Format(""))
}

func TestConvertWD01RejectsMalformed(t *testing.T) {
	_, ok := ConvertWD01ToUHF("E28011700000020F1A2B3C4D")
	assert.False(t, ok)
}

func TestUHFToReversedHex(t *testing.T) {
	assert.Equal(t, "0403020100", UHFToReversedHex("0001020304"))
	assert.Equal(t, "ABC", UHFToReversedHex("abc"))
	assert.Equal(t, "BOX-7", UHFToReversedHex("box-7"))
}

func TestCandidates(t *testing.T) {
	uhf := "E28011700000020F1A2B3C4D"

	exact := Candidates(" 120aec1001 ")
	require.Len(t, exact, 1)
	assert.Equal(t, Candidate{EPC: "120AEC1001", Method: MatchExact}, exact[0])

	withTID := Candidates(uhf + "E2801170")
	require.Len(t, withTID, 2)
	assert.Equal(t, MatchTruncated, withTID[1].Method)
	assert.Equal(t, uhf, withTID[1].EPC)

	wd01 := buildWD01(uhf)
	chain := Candidates(wd01)
	require.Len(t, chain, 3)
	assert.Equal(t, MatchExact, chain[0].Method)
	assert.Equal(t, MatchTruncated, chain[1].Method)
	assert.Equal(t, wd01[:UHFLength], chain[1].EPC)
	assert.Equal(t, Candidate{EPC: uhf, Method: MatchWD01}, chain[2])

	assert.Nil(t, Candidates("   "))
}

func TestDetectKind(t *testing.T) {
	assert.Equal(t, KindGraduate, DetectKind("120AEC1001"))
	assert.Equal(t, KindGraduate, DetectKind("7wec12"))
	assert.Equal(t, KindBox, DetectKind("BOX-07"))
	assert.Equal(t, KindBox, DetectKind("box-A1"))
	assert.Equal(t, KindUnknown, DetectKind("BOX-"))
	assert.Equal(t, KindUnknown, DetectKind("E28011700000020F1A2B3C4D"))
	assert.Equal(t, KindUnknown, DetectKind("AEC1001"))

	assert.Equal(t, "07", BoxID("BOX-07"))
	assert.Equal(t, "", BoxID("120AEC1001"))
	assert.Equal(t, "BOX-A1", BoxEPC(" a1"))
}

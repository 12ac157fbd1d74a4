// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package portability

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Flags
	}{
		{"plain", "main.go", 0},
		{"control char", "a\x01b", FlagInvalidChar},
		{"restricted", "what?.txt", FlagRestrictedChar},
		{"colon and pipe", "a:b|c", FlagRestrictedChar},
		{"percent", "100%.txt", FlagPercent},
		{"trailing dot", "foo.", FlagTrailingDotSpace},
		{"trailing space", "foo ", FlagTrailingDotSpace},
		{"reserved bare", "CON", FlagReservedName},
		{"reserved lower with extension", "com1.log", FlagReservedName},
		{"reserved lookalike", "CONSOLE", 0},
		{"non bmp", "smile\U0001F600", FlagNonBMP},
		{"ignorable", "zero\u200bwidth", FlagDefaultIgnorable},
		{"decomposed", "cafe\u0301", FlagNonCanonical},
		{"precomposed", "caf\u00e9", 0},
		{"sfm private use", "a\uf001b", FlagSFMPrivateUse},
		{"short name", "PROGRA~1.TXT", FlagShortName},
		{"too long", strings.Repeat("x", 256), FlagNameTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckName(tt.in), "flags %s", CheckName(tt.in))
		})
	}
}

func TestCheckNameRaisesSeveralFlags(t *testing.T) {
	f := CheckName("nul.a?.")
	assert.True(t, f.Has(FlagReservedName))
	assert.True(t, f.Has(FlagRestrictedChar))
	assert.True(t, f.Has(FlagTrailingDotSpace))
}

func TestCheckPath(t *testing.T) {
	assert.Equal(t, Flags(0), CheckPath("a/b/c"))
	assert.Equal(t, FlagPathTooLong, CheckPath(strings.Repeat("d/", 129)))
}

func findResult(t *testing.T, rs []Result, name string) Result {
	t.Helper()
	for _, r := range rs {
		if r.Name == name {
			return r
		}
	}
	require.Failf(t, "missing result", "no result for %q in %v", name, rs)
	return Result{}
}

func TestCaseCollisionIsSymmetric(t *testing.T) {
	c := NewChecker()
	c.Add("README", true)
	c.Add("ReadMe", true)

	rs := c.Results(0)
	require.Len(t, rs, 2)

	a := findResult(t, rs, "README")
	b := findResult(t, rs, "ReadMe")
	require.Len(t, a.Collisions, 1)
	require.Len(t, b.Collisions, 1)
	assert.Equal(t, "ReadMe", a.Collisions[0].With)
	assert.Equal(t, "README", b.Collisions[0].With)
	assert.True(t, a.Collisions[0].Reasons.Has(FlagCollisionCase))
	assert.True(t, b.Collisions[0].Reasons.Has(FlagCollisionCase))
}

func TestTrailingDotCollisionIsSymmetric(t *testing.T) {
	c := NewChecker()
	c.Add("foo.", true)
	c.Add("foo", true)

	rs := c.Results(0)
	a := findResult(t, rs, "foo.")
	b := findResult(t, rs, "foo")
	require.Len(t, a.Collisions, 1)
	require.Len(t, b.Collisions, 1)
	assert.Equal(t, FlagCollisionTrailing, a.Collisions[0].Reasons)
	assert.Equal(t, FlagCollisionTrailing, b.Collisions[0].Reasons)
	assert.True(t, a.Flags.Has(FlagTrailingDotSpace))
}

func TestUnicodeCollisions(t *testing.T) {
	tests := []struct {
		name   string
		a, b   string
		reason Flags
	}{
		{"decomposition", "caf\u00e9", "cafe\u0301", FlagCollisionNormalization},
		{"ignorable", "ab", "a\u200bb", FlagCollisionIgnorable},
		{"sfm", "a?", "a\uf025", FlagCollisionSFM},
		{"percent", "a b", "a%20b", FlagCollisionPercent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			c.Add(tt.a, true)
			c.Add(tt.b, true)
			r := findResult(t, c.Results(0), tt.b)
			require.Len(t, r.Collisions, 1)
			assert.Equal(t, tt.a, r.Collisions[0].With)
			assert.True(t, r.Collisions[0].Reasons.Has(tt.reason), "reasons %s", r.Collisions[0].Reasons)
		})
	}
}

func TestUninterestedNamesAreNotReported(t *testing.T) {
	c := NewChecker()
	c.Add("CON", false)
	c.Add("Makefile", false)
	c.Add("makefile", true)

	rs := c.Results(0)
	require.Len(t, rs, 1)
	assert.Equal(t, "makefile", rs[0].Name)
	assert.Equal(t, "Makefile", rs[0].Collisions[0].With)
}

func TestResultsHonourIgnoreMask(t *testing.T) {
	c := NewChecker()
	c.Add("README", true)
	c.Add("readme", true)

	assert.Empty(t, c.Results(FlagCollisionCase))
	assert.Len(t, c.Results(0), 2)
}

func TestAnalyzerCheckDir(t *testing.T) {
	a := Analyzer{}
	ws := a.CheckDir("docs", []string{"Guide.md"}, []string{"guide.md", "ok.txt"})
	require.Len(t, ws, 1)
	assert.Equal(t, "docs/guide.md", ws[0].Path())
	assert.True(t, ws[0].Flags.Has(FlagCollisionCase))

	ws = a.CheckDir("", nil, []string{strings.Repeat("n", 200) + "/" + strings.Repeat("m", 60)})
	require.Len(t, ws, 1)
	assert.True(t, ws[0].Flags.Has(FlagPathTooLong))
}

func TestParseFlags(t *testing.T) {
	f, err := ParseFlags([]string{"percent", " Collision-Case "})
	require.NoError(t, err)
	assert.Equal(t, FlagPercent|FlagCollisionCase, f)

	_, err = ParseFlags([]string{"bogus"})
	assert.Error(t, err)
	assert.Equal(t, "percent,collision-case", f.String())
}

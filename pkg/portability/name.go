// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package portability

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxNameBytes is the longest single entry name accepted everywhere.
	MaxNameBytes = 255
	// MaxPathChars is the longest repo-relative path accepted everywhere.
	MaxPathChars = 256
)

const restrictedChars = `"*:<>?|\/`

// Services for Macintosh stores otherwise-invalid characters in this
// private-use range.
const (
	sfmLow  = 0xF001
	sfmHigh = 0xF029
)

var sfmReverse = map[rune]rune{
	0xF020: '"',
	0xF021: '*',
	0xF022: '/',
	0xF023: '<',
	0xF024: '>',
	0xF025: '?',
	0xF026: '\\',
	0xF027: '|',
	0xF028: ' ',
	0xF029: '.',
}

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true, "CLOCK$": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

var shortNamePattern = regexp.MustCompile(`^[^~.]{1,6}~[0-9]{1,6}(\.[^.]{0,3})?$`)

var folder = cases.Fold()

// CheckName runs every per-name check against a single entry name.
func CheckName(name string) Flags {
	var f Flags

	if !utf8.ValidString(name) {
		f |= FlagInvalidChar
	}
	if len(name) > MaxNameBytes {
		f |= FlagNameTooLong
	}

	asciiOnly := true
	for _, r := range name {
		switch {
		case r == utf8.RuneError:
			f |= FlagInvalidChar
		case r < 0x20:
			f |= FlagInvalidChar
		case strings.ContainsRune(restrictedChars, r):
			f |= FlagRestrictedChar
		case r == '%':
			f |= FlagPercent
		}
		if r >= utf8.RuneSelf {
			asciiOnly = false
		}
		if r > 0xFFFF {
			f |= FlagNonBMP
		}
		if r >= sfmLow && r <= sfmHigh {
			f |= FlagSFMPrivateUse
		}
		if isDefaultIgnorable(r) {
			f |= FlagDefaultIgnorable
		}
	}

	if name != "" && (strings.HasSuffix(name, ".") || strings.HasSuffix(name, " ")) {
		f |= FlagTrailingDotSpace
	}
	if isReservedName(name) {
		f |= FlagReservedName
	}
	if !asciiOnly && !norm.NFC.IsNormalString(name) {
		f |= FlagNonCanonical
	}
	if shortNamePattern.MatchString(name) {
		f |= FlagShortName
	}
	return f
}

// CheckPath checks limits that apply to a whole repo-relative path.
func CheckPath(relPath string) Flags {
	if utf8.RuneCountInString(relPath) > MaxPathChars {
		return FlagPathTooLong
	}
	return 0
}

func isReservedName(name string) bool {
	base := name
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimRight(base, " ")
	return reservedNames[strings.ToUpper(base)]
}

// isDefaultIgnorable follows the Default_Ignorable_Code_Point derivation:
// Other_Default_Ignorable_Code_Point + Cf + Variation_Selector, minus
// white space, the interlinear annotation and Egyptian format controls and
// the prepended concatenation marks.
func isDefaultIgnorable(r rune) bool {
	if r < 0x80 {
		return false
	}
	switch {
	case r >= 0x0600 && r <= 0x0605, r == 0x06DD, r == 0x070F,
		r == 0x0890, r == 0x0891, r == 0x08E2, r == 0x110BD, r == 0x110CD:
		return false
	case r >= 0xFFF9 && r <= 0xFFFB:
		return false
	case r >= 0x13430 && r <= 0x1343F:
		return false
	case unicode.IsSpace(r):
		return false
	}
	return unicode.Is(unicode.Other_Default_Ignorable_Code_Point, r) ||
		unicode.Is(unicode.Cf, r) ||
		unicode.Is(unicode.Variation_Selector, r)
}

// keyLevel identifies which normalized key a collision was found under.
type keyLevel int

const (
	levelExact keyLevel = iota
	levelFolded
	levelUnicode
	levelCount
)

// reduce computes the normalized keys of name together with the reasons
// each transformation contributed. Level-2 keys are only produced for
// names containing non-ASCII runes.
func reduce(name string) (keys [levelCount]string, reasons [levelCount]Flags, ok [levelCount]bool) {
	keys[levelExact] = name
	ok[levelExact] = true

	s := name
	var r Flags
	if u := percentUnescape(s); u != s {
		s = u
		r |= FlagCollisionPercent
	}
	if t := stripTrailing(s); t != s {
		s = t
		r |= FlagCollisionTrailing
	}
	if c := folder.String(s); c != s {
		s = c
		r |= FlagCollisionCase
	}
	keys[levelFolded] = s
	reasons[levelFolded] = r
	ok[levelFolded] = true

	if isASCII(name) && isASCII(s) {
		keys[levelUnicode] = s
		reasons[levelUnicode] = r
		ok[levelUnicode] = true
		return keys, reasons, ok
	}

	if u := sfmUnmap(s); u != s {
		s = u
		r |= FlagCollisionSFM
	}
	if d := norm.NFD.String(s); d != s {
		s = d
		r |= FlagCollisionNormalization
	}
	if g := stripIgnorable(s); g != s {
		s = g
		r |= FlagCollisionIgnorable
	}
	if t := stripTrailing(s); t != s {
		s = t
		r |= FlagCollisionTrailing
	}
	if c := folder.String(s); c != s {
		s = c
		r |= FlagCollisionCase
	}
	keys[levelUnicode] = s
	reasons[levelUnicode] = r
	ok[levelUnicode] = true
	return keys, reasons, ok
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func stripTrailing(s string) string {
	return strings.TrimRight(s, ". ")
}

func percentUnescape(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func sfmUnmap(s string) string {
	return strings.Map(func(r rune) rune {
		if orig, ok := sfmReverse[r]; ok {
			return orig
		}
		if r >= sfmLow && r < 0xF020 {
			return r - 0xF000
		}
		return r
	}, s)
}

func stripIgnorable(s string) string {
	return strings.Map(func(r rune) rune {
		if isDefaultIgnorable(r) {
			return -1
		}
		return r
	}, s)
}

// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package portability

import (
	"fmt"
	"sort"
	"strings"
)

// Flags is a set of independent portability findings for one name.
type Flags uint32

// Per-name findings.
const (
	FlagInvalidChar Flags = 1 << iota
	FlagRestrictedChar
	FlagPercent
	FlagNameTooLong
	FlagPathTooLong
	FlagTrailingDotSpace
	FlagReservedName
	FlagNonBMP
	FlagDefaultIgnorable
	FlagNonCanonical
	FlagSFMPrivateUse
	FlagShortName
	FlagSymlink

	// Collision reasons.
	FlagCollisionExact
	FlagCollisionCase
	FlagCollisionTrailing
	FlagCollisionPercent
	FlagCollisionNormalization
	FlagCollisionIgnorable
	FlagCollisionSFM
)

// CollisionMask selects every collision reason.
const CollisionMask = FlagCollisionExact | FlagCollisionCase | FlagCollisionTrailing |
	FlagCollisionPercent | FlagCollisionNormalization | FlagCollisionIgnorable | FlagCollisionSFM

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagInvalidChar, "invalid-char"},
	{FlagRestrictedChar, "restricted-char"},
	{FlagPercent, "percent"},
	{FlagNameTooLong, "name-too-long"},
	{FlagPathTooLong, "path-too-long"},
	{FlagTrailingDotSpace, "trailing-dot-space"},
	{FlagReservedName, "reserved-name"},
	{FlagNonBMP, "non-bmp"},
	{FlagDefaultIgnorable, "default-ignorable"},
	{FlagNonCanonical, "non-canonical"},
	{FlagSFMPrivateUse, "sfm-private-use"},
	{FlagShortName, "short-name"},
	{FlagSymlink, "symlink"},
	{FlagCollisionExact, "collision"},
	{FlagCollisionCase, "collision-case"},
	{FlagCollisionTrailing, "collision-trailing-dot-space"},
	{FlagCollisionPercent, "collision-percent"},
	{FlagCollisionNormalization, "collision-normalization"},
	{FlagCollisionIgnorable, "collision-ignorable"},
	{FlagCollisionSFM, "collision-sfm"},
}

// Has reports whether every bit of other is set in f.
func (f Flags) Has(other Flags) bool {
	return f&other == other
}

// Names lists the configuration names of the set bits, in declaration order.
func (f Flags) Names() []string {
	var out []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			out = append(out, fn.name)
		}
	}
	return out
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	return strings.Join(f.Names(), ",")
}

// ParseFlags converts configuration names into a flag set.
func ParseFlags(names []string) (Flags, error) {
	var out Flags
	var unknown []string
	for _, n := range names {
		n = strings.TrimSpace(strings.ToLower(n))
		if n == "" {
			continue
		}
		found := false
		for _, fn := range flagNames {
			if fn.name == n {
				out |= fn.flag
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return out, fmt.Errorf("unknown portability flags: %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

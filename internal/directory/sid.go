package directory

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SID is a Windows security identifier, S-1-<authority>(-<subauthority>)+.
type SID struct {
	Revision       uint8
	Authority      uint64
	SubAuthorities []uint32
}

var (
	sidPattern     = regexp.MustCompile(`^[sS]-(\d+)-(\d+)((?:-\d+)+)$`)
	sidLikePattern = regexp.MustCompile(`^[sS](-\d+)+$`)
)

const (
	maxAuthority      = 1<<48 - 1
	maxSubAuthorities = 15
)

// ParseSID decodes the string form of a security identifier.
func ParseSID(s string) (SID, error) {
	m := sidPattern.FindStringSubmatch(s)
	if m == nil {
		return SID{}, fmt.Errorf("%q is not a security identifier", s)
	}
	rev, err := strconv.ParseUint(m[1], 10, 8)
	if err != nil || rev != 1 {
		return SID{}, fmt.Errorf("%q has unsupported revision %s", s, m[1])
	}
	auth, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil || auth > maxAuthority {
		return SID{}, fmt.Errorf("%q has an invalid identifier authority", s)
	}
	parts := strings.Split(m[3][1:], "-")
	if len(parts) > maxSubAuthorities {
		return SID{}, fmt.Errorf("%q has more than %d sub-authorities", s, maxSubAuthorities)
	}
	sid := SID{Revision: uint8(rev), Authority: auth, SubAuthorities: make([]uint32, len(parts))}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return SID{}, fmt.Errorf("%q has an invalid sub-authority %s", s, p)
		}
		sid.SubAuthorities[i] = uint32(n)
	}
	return sid, nil
}

// String returns the canonical S-1-... form.
func (s SID) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "S-%d-%d", s.Revision, s.Authority)
	for _, sub := range s.SubAuthorities {
		fmt.Fprintf(&b, "-%d", sub)
	}
	return b.String()
}

// IsSIDLike reports whether name has the shape of a SID. Fragment names
// must not, so they can never collide with a principal's policy.
func IsSIDLike(name string) bool {
	return sidLikePattern.MatchString(name)
}

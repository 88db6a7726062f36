// Package firmware handles firmware version strings and the vendor's
// published version catalog.
package firmware

import (
	"fmt"
	"strings"

	"github.com/fuslink/fuslink/internal/fus"
)

// alnum is the alphabet the revision character indexes into.
const alnum = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Normalize canonicalizes a firmware version string to its 4-component
// form (bootloader/CSC/AP/CP). A 3-component input gains a 4th component
// equal to the 1st; a blank 3rd component is filled with the 1st. Any
// other component count is a hard error.
func Normalize(version string) (string, error) {
	if version == "" {
		return "", fmt.Errorf("%w: empty firmware version", fus.ErrCatalogUnparseable)
	}
	parts := strings.Split(version, "/")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch len(parts) {
	case 3:
		parts = append(parts, parts[0])
	case 4:
	default:
		return "", fmt.Errorf("%w: firmware version %q has %d components, want 3 or 4",
			fus.ErrCatalogUnparseable, version, len(parts))
	}
	if parts[2] == "" {
		parts[2] = parts[0]
	}
	return strings.Join(parts, "/"), nil
}

// BuildInfo is the metadata embedded in the last six characters of a
// firmware version's first component: bootloader class, build index, and
// the build date/revision encoding.
type BuildInfo struct {
	Class    string // 2-letter class code; empty for suffix-form codes
	Index    int    // offset of char 3 from 'A'; -1 for suffix-form codes
	Year     int    // char - 'R' + 2018
	Month    int    // 0-based month index, char - 'A'
	Revision int    // position of the revision char in 0-9A-Z
}

// Date renders the decoded build date as "year.month".
func (b BuildInfo) Date() string {
	return fmt.Sprintf("%d.%d", b.Year, b.Month)
}

// Iteration renders the decoded index and revision as "index.revision".
func (b BuildInfo) Iteration() string {
	return fmt.Sprintf("%d.%d", b.Index, b.Revision)
}

// DecodeBuildInfo decodes the build metadata from a normalized
// 4-component firmware version. Codes whose first character is 'U' or 'S'
// carry the class and index in prefix positions; all other codes encode
// date and revision in their last three characters only.
func DecodeBuildInfo(version string) (BuildInfo, error) {
	if strings.Count(version, "/") != 3 {
		return BuildInfo{}, fmt.Errorf("%w: firmware version %q is not 4-component",
			fus.ErrCatalogUnparseable, version)
	}
	first := strings.SplitN(version, "/", 2)[0]
	if len(first) < 6 {
		return BuildInfo{}, fmt.Errorf("%w: component %q too short for build code",
			fus.ErrCatalogUnparseable, first)
	}
	pda := first[len(first)-6:]

	info := BuildInfo{Index: -1}
	if pda[0] == 'U' || pda[0] == 'S' {
		info.Class = pda[0:2]
		info.Index = int(pda[2]) - 'A'
		info.Year = int(pda[3]) - 'R' + 2018
		info.Month = int(pda[4]) - 'A'
		info.Revision = strings.IndexByte(alnum, pda[5])
	} else {
		info.Year = int(pda[3]) - 'R' + 2018
		info.Month = int(pda[4]) - 'A'
		info.Revision = strings.IndexByte(alnum, pda[5])
	}
	if info.Revision < 0 {
		return BuildInfo{}, fmt.Errorf("%w: revision character %q outside 0-9A-Z",
			fus.ErrCatalogUnparseable, pda[5])
	}
	return info, nil
}

package firmware

import (
	"errors"
	"testing"

	"github.com/fuslink/fuslink/internal/fus"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"A/B/C/D", "A/B/C/D"},
		{"A/B/C", "A/B/C/A"},
		{"A/B/", "A/B/A/A"},
		{"A/B/ ", "A/B/A/A"},
		{"G960FXXU2CRLI/G960FOXM2CRLI/G960FXXU2CRLI", "G960FXXU2CRLI/G960FOXM2CRLI/G960FXXU2CRLI/G960FXXU2CRLI"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if err != nil {
			t.Errorf("Normalize(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "A", "A/B", "A/B/C/D/E"} {
		_, err := Normalize(in)
		if !errors.Is(err, fus.ErrCatalogUnparseable) {
			t.Errorf("Normalize(%q) err = %v, want ErrCatalogUnparseable", in, err)
		}
	}
}

func TestDecodeBuildInfoPrefixForm(t *testing.T) {
	// Last six chars of the first component: S9FVG4. The 'S' prefix
	// carries class and index before the date encoding.
	info, err := DecodeBuildInfo("G960FXXS9FVG4/G960FOXM9FVG4/G960FXXS9FVG4/G960FXXS9FVG4")
	if err != nil {
		t.Fatalf("DecodeBuildInfo: %v", err)
	}
	if info.Class != "S9" {
		t.Errorf("class = %q, want S9", info.Class)
	}
	if info.Index != 'F'-'A' {
		t.Errorf("index = %d, want %d", info.Index, 'F'-'A')
	}
	if info.Year != 2022 { // 'V' - 'R' + 2018
		t.Errorf("year = %d, want 2022", info.Year)
	}
	if info.Month != 6 { // 'G' - 'A'
		t.Errorf("month = %d, want 6", info.Month)
	}
	if info.Revision != 4 {
		t.Errorf("revision = %d, want 4", info.Revision)
	}
	if info.Date() != "2022.6" {
		t.Errorf("Date() = %q", info.Date())
	}
	if info.Iteration() != "5.4" {
		t.Errorf("Iteration() = %q", info.Iteration())
	}
}

func TestDecodeBuildInfoSuffixForm(t *testing.T) {
	// Build code ABCRAE: no U/S prefix, so only the date triple decodes.
	info, err := DecodeBuildInfo("G960FXABCRAE/X/X/X")
	if err != nil {
		t.Fatalf("DecodeBuildInfo: %v", err)
	}
	if info.Class != "" || info.Index != -1 {
		t.Errorf("suffix form decoded class/index = %q/%d, want empty/-1", info.Class, info.Index)
	}
	if info.Year != 2018 { // 'R' is the epoch year
		t.Errorf("year = %d, want 2018", info.Year)
	}
	if info.Month != 0 {
		t.Errorf("month = %d, want 0", info.Month)
	}
	if info.Revision != 14 { // 'E' in 0-9A-Z
		t.Errorf("revision = %d, want 14", info.Revision)
	}
}

func TestDecodeBuildInfoRejects(t *testing.T) {
	cases := []string{
		"A/B/C",          // not 4-component
		"AB/X/X/X",       // first component too short
		"G960FXABCRAe/X/X/X", // revision outside 0-9A-Z
	}
	for _, in := range cases {
		if _, err := DecodeBuildInfo(in); !errors.Is(err, fus.ErrCatalogUnparseable) {
			t.Errorf("DecodeBuildInfo(%q) err = %v, want ErrCatalogUnparseable", in, err)
		}
	}
}

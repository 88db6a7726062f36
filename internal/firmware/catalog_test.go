package firmware

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/fuslink/fuslink/internal/fus"
	"github.com/fuslink/fuslink/internal/logging"
)

func testLogger() *logging.Logger {
	l := logging.NewLogger("server")
	l.SetOutput(io.Discard)
	return l
}

func catalogServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if want := "/firmware/BTU/SM-G960F/version.xml"; r.URL.Path != want {
			t.Errorf("manifest path = %q, want %q", r.URL.Path, want)
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
}

const multiVersionManifest = `<?xml version="1.0" encoding="UTF-8"?>
<versioninfo>
  <firmware>
    <version>
      <latest o="10">G960FXXUCFUA1/G960FOXMCFUA1/G960FXXUCFUA1</latest>
      <upgrade>
        <value rcount="1" fwsize="3944623436">G960FXXU9ETF5/G960FOXM9ETF5/G960FXXU9ETF5/G960FXXU9ETF5</value>
        <value>PLACEHOLDER</value>
        <value>G960FXXU8DTC5/G960FOXM8DTC5/</value>
      </upgrade>
    </version>
  </firmware>
</versioninfo>`

func TestListVersions(t *testing.T) {
	srv := catalogServer(t, nethttp.StatusOK, multiVersionManifest)
	defer srv.Close()
	c := NewCatalog(srv.Client(), testLogger(), WithCatalogURL(srv.URL))

	entries, err := c.ListVersions(context.Background(), "BTU", "SM-G960F")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3 (placeholder filtered)", len(entries))
	}

	if !entries[0].IsLatest {
		t.Error("first entry not marked latest")
	}
	if want := "G960FXXUCFUA1/G960FOXMCFUA1/G960FXXUCFUA1/G960FXXUCFUA1"; entries[0].Version != want {
		t.Errorf("latest = %q, want normalized %q", entries[0].Version, want)
	}
	if entries[1].IsLatest {
		t.Error("alternate entry marked latest")
	}
	if entries[1].Size != 3944623436 {
		t.Errorf("alternate size = %d", entries[1].Size)
	}
	// A trailing-blank alternate normalizes like any 3-component version.
	if want := "G960FXXU8DTC5/G960FOXM8DTC5/G960FXXU8DTC5/G960FXXU8DTC5"; entries[2].Version != want {
		t.Errorf("blank-CSC alternate = %q, want %q", entries[2].Version, want)
	}
}

func TestListVersionsSingleAlternate(t *testing.T) {
	manifest := `<versioninfo><firmware><version>
		<latest>A/B/C</latest>
		<upgrade><value>D/E/F</value></upgrade>
	</version></firmware></versioninfo>`
	srv := catalogServer(t, nethttp.StatusOK, manifest)
	defer srv.Close()
	c := NewCatalog(srv.Client(), testLogger(), WithCatalogURL(srv.URL))

	entries, err := c.ListVersions(context.Background(), "BTU", "SM-G960F")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[1].Version != "D/E/F/D" {
		t.Errorf("alternate = %q, want D/E/F/D", entries[1].Version)
	}
}

func TestListVersionsUnknownDevice(t *testing.T) {
	// The CDN answers 403 for unknown region/model pairs.
	srv := catalogServer(t, nethttp.StatusForbidden, "")
	defer srv.Close()
	c := NewCatalog(srv.Client(), testLogger(), WithCatalogURL(srv.URL))

	_, err := c.ListVersions(context.Background(), "BTU", "SM-G960F")
	if !errors.Is(err, fus.ErrCatalogEmpty) {
		t.Errorf("err = %v, want ErrCatalogEmpty", err)
	}
}

func TestListVersionsMissingVersionSection(t *testing.T) {
	srv := catalogServer(t, nethttp.StatusOK, `<versioninfo><firmware></firmware></versioninfo>`)
	defer srv.Close()
	c := NewCatalog(srv.Client(), testLogger(), WithCatalogURL(srv.URL))

	_, err := c.ListVersions(context.Background(), "BTU", "SM-G960F")
	if !errors.Is(err, fus.ErrCatalogEmpty) {
		t.Errorf("err = %v, want ErrCatalogEmpty", err)
	}
}

func TestListVersionsBlankLatest(t *testing.T) {
	srv := catalogServer(t, nethttp.StatusOK,
		`<versioninfo><firmware><version><latest></latest></version></firmware></versioninfo>`)
	defer srv.Close()
	c := NewCatalog(srv.Client(), testLogger(), WithCatalogURL(srv.URL))

	_, err := c.ListVersions(context.Background(), "BTU", "SM-G960F")
	if !errors.Is(err, fus.ErrCatalogUnparseable) {
		t.Errorf("err = %v, want ErrCatalogUnparseable", err)
	}
}

func TestListVersionsMalformedXML(t *testing.T) {
	srv := catalogServer(t, nethttp.StatusOK, `<versioninfo><unclosed`)
	defer srv.Close()
	c := NewCatalog(srv.Client(), testLogger(), WithCatalogURL(srv.URL))

	_, err := c.ListVersions(context.Background(), "BTU", "SM-G960F")
	if !errors.Is(err, fus.ErrCatalogUnparseable) {
		t.Errorf("err = %v, want ErrCatalogUnparseable", err)
	}
}

func TestLatest(t *testing.T) {
	srv := catalogServer(t, nethttp.StatusOK, multiVersionManifest)
	defer srv.Close()
	c := NewCatalog(srv.Client(), testLogger(), WithCatalogURL(srv.URL))

	latest, err := c.Latest(context.Background(), "BTU", "SM-G960F")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if want := "G960FXXUCFUA1/G960FOXMCFUA1/G960FXXUCFUA1/G960FXXUCFUA1"; latest != want {
		t.Errorf("Latest = %q, want %q", latest, want)
	}
}

func TestListVersionsSkipsUnparseableAlternates(t *testing.T) {
	manifest := fmt.Sprintf(`<versioninfo><firmware><version>
		<latest>A/B/C</latest>
		<upgrade><value>%s</value></upgrade>
	</version></firmware></versioninfo>`, "A/B/C/D/E")
	srv := catalogServer(t, nethttp.StatusOK, manifest)
	defer srv.Close()
	c := NewCatalog(srv.Client(), testLogger(), WithCatalogURL(srv.URL))

	entries, err := c.ListVersions(context.Background(), "BTU", "SM-G960F")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1: 5-component alternate must be skipped", len(entries))
	}
}

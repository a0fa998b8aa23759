package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fixture = `{
  "categories": ["social", "coding"],
  "sites": [
    {"name": "Alpha", "uri_check": "https://alpha.test/{account}", "e_code": 200, "e_string": "Profile", "m_code": 404, "m_string": ["Not here", "Gone"], "cat": "social"},
    {"name": "Beta", "uri_check": "https://beta.test/u/{account}", "uri_pretty": "https://beta.test/{account}", "e_code": 200, "cat": "coding", "known": ["bob"]},
    {"name": "Alpha", "uri_check": "https://alpha2.test/{account}", "cat": "social"},
    {"name": "NoPlaceholder", "uri_check": "https://none.test/", "cat": "social"},
    {"name": "Twice", "uri_check": "https://twice.test/{account}/{account}", "cat": "social"},
    {"name": "Disabled", "uri_check": "https://off.test/{account}", "cat": "social", "valid": false},
    {"name": "Gamer", "uri_check": "https://game.test/{account}", "cat": "gaming"}
  ]
}`

func TestLoadNormalizesMarkers(t *testing.T) {
	reg, err := Load(strings.NewReader(fixture))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	alpha, ok := reg.Lookup("Alpha")
	if !ok {
		t.Fatal("expected Alpha")
	}
	if len(alpha.ExistsMarkers) != 1 || alpha.ExistsMarkers[0] != "Profile" {
		t.Fatalf("exists markers = %#v", alpha.ExistsMarkers)
	}
	if len(alpha.AbsentMarkers) != 2 || alpha.AbsentMarkers[1] != "Gone" {
		t.Fatalf("absent markers = %#v", alpha.AbsentMarkers)
	}
	if alpha.URLTemplate != "https://alpha.test/{account}" {
		t.Fatalf("expected first Alpha entry to win, got %s", alpha.URLTemplate)
	}

	beta, _ := reg.Lookup("Beta")
	if beta.ExistsMarkers == nil || len(beta.ExistsMarkers) != 0 {
		t.Fatalf("expected empty non-nil markers, got %#v", beta.ExistsMarkers)
	}
	if beta.PrettyURL != "https://beta.test/{account}" {
		t.Fatalf("pretty url = %q", beta.PrettyURL)
	}
}

func TestLoadDropsInvalidEntries(t *testing.T) {
	reg, err := Load(strings.NewReader(fixture))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if reg.Len() != 3 {
		t.Fatalf("expected 3 sites, got %d", reg.Len())
	}
	for _, name := range []string{"NoPlaceholder", "Twice", "Disabled"} {
		if _, ok := reg.Lookup(name); ok {
			t.Fatalf("expected %s to be dropped", name)
		}
	}
}

func TestLoadReportsSkippedEntries(t *testing.T) {
	reg, err := Load(strings.NewReader(fixture))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	skipped := reg.Skipped()
	want := []string{"Alpha", "NoPlaceholder", "Twice"}
	if len(skipped) != len(want) {
		t.Fatalf("expected %d skipped entries, got %v", len(want), skipped)
	}
	for i, name := range want {
		if skipped[i].Name != name || skipped[i].Reason == "" {
			t.Fatalf("skipped[%d] = %+v, want %s with a reason", i, skipped[i], name)
		}
	}
	if skipped[0].Reason != "duplicate site" {
		t.Fatalf("unexpected reason for duplicate: %q", skipped[0].Reason)
	}
}

func TestFilter(t *testing.T) {
	reg, err := Load(strings.NewReader(fixture))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := len(reg.Filter("")); got != 3 {
		t.Fatalf("empty filter = %d", got)
	}
	if got := len(reg.Filter("all")); got != 3 {
		t.Fatalf("all filter = %d", got)
	}
	social := reg.Filter("Social")
	if len(social) != 1 || social[0].Name != "Alpha" {
		t.Fatalf("social filter = %#v", social)
	}
	if got := len(reg.Filter("dating")); got != 0 {
		t.Fatalf("dating filter = %d", got)
	}
}

func TestCategoriesIncludeSiteCategories(t *testing.T) {
	reg, err := Load(strings.NewReader(fixture))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := strings.Join(reg.Categories(), ",")
	if got != "social,coding,gaming" {
		t.Fatalf("categories = %s", got)
	}
}

func TestLoadErrorOnBadDocument(t *testing.T) {
	_, err := Load(strings.NewReader(`{"sites": [`))
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected LoadError, got %v", err)
	}
}

func TestLoadErrorOnBadMarkers(t *testing.T) {
	_, err := Load(strings.NewReader(`{"sites": [{"name": "X", "uri_check": "https://x/{account}", "e_string": 7}]}`))
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected LoadError, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.json")
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	reg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if reg.Len() != 3 {
		t.Fatalf("expected 3 sites, got %d", reg.Len())
	}

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	var loadErr *LoadError
	if !errors.As(err, &loadErr) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped not-exist LoadError, got %v", err)
	}
}

func TestEmbeddedRegistry(t *testing.T) {
	reg, err := Embedded()
	if err != nil {
		t.Fatalf("embedded: %v", err)
	}
	if reg.Len() == 0 {
		t.Fatal("expected bundled sites")
	}
	if _, ok := reg.Lookup("GitHub"); !ok {
		t.Fatal("expected GitHub in bundled registry")
	}
	if _, ok := reg.Lookup("Myspace"); ok {
		t.Fatal("expected invalid Myspace entry to be excluded")
	}
}

func TestNilRegistryIsEmpty(t *testing.T) {
	var reg *Registry
	if reg.Len() != 0 || len(reg.Filter("")) != 0 || len(reg.Filter("social")) != 0 {
		t.Fatal("expected nil registry to behave as empty")
	}
}

func TestLookupIgnoresCase(t *testing.T) {
	reg, err := Load(strings.NewReader(fixture))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, ok := reg.Lookup("alpha")
	if !ok || got.Name != "Alpha" {
		t.Fatalf("lookup alpha = %+v, %v", got, ok)
	}
}

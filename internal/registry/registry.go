// Package registry loads the site rules a search probes. The document format
// is the WhatsMyName one: a top-level categories list and a sites list whose
// marker fields may be a single string or an array of strings.
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"handleprobe/internal/model"
)

//go:embed sites.json
var sitesData []byte

// LoadError means the backing document could not be read or parsed.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load registry %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type Registry struct {
	sites      []model.SiteRule
	byName     map[string]int
	categories []string
	skipped    []Skipped
}

// Skipped is a document entry that was left out of the registry. Disabled
// entries (valid: false) are not reported.
type Skipped struct {
	Name   string
	Reason string
}

func (s Skipped) String() string {
	return s.Name + ": " + s.Reason
}

// markers accepts either "text" or ["a", "b"].
type markers []string

func (m *markers) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*m = markers{}
		} else {
			*m = markers{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("markers must be a string or a list of strings: %w", err)
	}
	out := make(markers, 0, len(many))
	for _, s := range many {
		if s != "" {
			out = append(out, s)
		}
	}
	*m = out
	return nil
}

type document struct {
	Categories []string `json:"categories"`
	Sites      []struct {
		Name      string   `json:"name"`
		URICheck  string   `json:"uri_check"`
		URIPretty string   `json:"uri_pretty"`
		ECode     int      `json:"e_code"`
		EString   markers  `json:"e_string"`
		MCode     int      `json:"m_code"`
		MString   markers  `json:"m_string"`
		Known     []string `json:"known"`
		Cat       string   `json:"cat"`
		Valid     *bool    `json:"valid"`
	} `json:"sites"`
}

// Embedded returns the registry bundled with the binary.
func Embedded() (*Registry, error) {
	return parse("embedded", sitesData)
}

func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	return parse(path, data)
}

func Load(r io.Reader) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &LoadError{Source: "reader", Err: err}
	}
	return parse("reader", data)
}

func parse(source string, data []byte) (*Registry, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}

	reg := &Registry{byName: make(map[string]int, len(doc.Sites))}
	seenCategory := make(map[string]bool)
	for _, c := range doc.Categories {
		c = strings.TrimSpace(c)
		if c != "" && !seenCategory[c] {
			seenCategory[c] = true
			reg.categories = append(reg.categories, c)
		}
	}

	for _, s := range doc.Sites {
		name := strings.TrimSpace(s.Name)
		switch {
		case name == "":
			reg.skipped = append(reg.skipped, Skipped{Name: s.URICheck, Reason: "site has no name"})
			continue
		case s.Valid != nil && !*s.Valid:
			continue
		case strings.Count(s.URICheck, model.Placeholder) != 1:
			reg.skipped = append(reg.skipped, Skipped{Name: name, Reason: "url template needs exactly one " + model.Placeholder})
			continue
		}
		if _, dup := reg.byName[name]; dup {
			reg.skipped = append(reg.skipped, Skipped{Name: name, Reason: "duplicate site"})
			continue
		}
		pretty := s.URIPretty
		if strings.Count(pretty, model.Placeholder) != 1 {
			pretty = ""
		}
		rule := model.SiteRule{
			Name:          name,
			URLTemplate:   s.URICheck,
			PrettyURL:     pretty,
			ExistsCode:    s.ECode,
			AbsentCode:    s.MCode,
			ExistsMarkers: normalize(s.EString),
			AbsentMarkers: normalize(s.MString),
			Category:      s.Cat,
			Known:         s.Known,
		}
		reg.byName[name] = len(reg.sites)
		reg.sites = append(reg.sites, rule)
		if rule.Category != "" && !seenCategory[rule.Category] {
			seenCategory[rule.Category] = true
			reg.categories = append(reg.categories, rule.Category)
		}
	}
	return reg, nil
}

func normalize(m markers) []string {
	if len(m) == 0 {
		return []string{}
	}
	return append([]string(nil), m...)
}

// Sites returns every rule in registry order.
func (r *Registry) Sites() []model.SiteRule {
	if r == nil {
		return nil
	}
	return append([]model.SiteRule(nil), r.sites...)
}

// Filter returns the rules in a category; "" and "all" select everything.
func (r *Registry) Filter(category string) []model.SiteRule {
	category = strings.TrimSpace(category)
	if category == "" || strings.EqualFold(category, "all") {
		return r.Sites()
	}
	if r == nil {
		return nil
	}
	out := make([]model.SiteRule, 0)
	for _, s := range r.sites {
		if strings.EqualFold(s.Category, category) {
			out = append(out, s)
		}
	}
	return out
}

// Lookup finds a rule by name, falling back to a case-insensitive match.
func (r *Registry) Lookup(name string) (model.SiteRule, bool) {
	if r == nil {
		return model.SiteRule{}, false
	}
	if i, ok := r.byName[name]; ok {
		return r.sites[i], true
	}
	for _, s := range r.sites {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return model.SiteRule{}, false
}

func (r *Registry) Categories() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.categories...)
}

// Skipped lists the entries parse dropped, in document order, so the caller
// can report them through its own logger.
func (r *Registry) Skipped() []Skipped {
	if r == nil {
		return nil
	}
	return append([]Skipped(nil), r.skipped...)
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.sites)
}

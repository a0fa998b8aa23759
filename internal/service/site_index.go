package service

import (
	"fmt"
	"strings"

	"handleprobe/internal/model"
	"handleprobe/internal/registry"
	"handleprobe/internal/search"
)

// SiteIndex answers which sites a search should cover: the registry plus a
// text index over site names and categories.
type SiteIndex struct {
	Registry *registry.Registry
	Index    *search.Index
}

func NewSiteIndex(reg *registry.Registry) *SiteIndex {
	idx := search.NewIndex()
	sites := reg.Sites()
	docs := make([]search.Document, 0, len(sites))
	for _, s := range sites {
		docs = append(docs, search.Document{
			ID:   s.Name,
			Text: s.Name + " " + s.Category,
		})
	}
	idx.BuildFromDocuments(docs)
	return &SiteIndex{Registry: reg, Index: idx}
}

// Selection narrows the registry. Empty fields select everything.
type Selection struct {
	Category string   `json:"category"`
	Sites    []string `json:"sites"`
	Query    string   `json:"query"`
}

// Select applies category, then explicit names, then the text query.
// Query matches keep registry order so priority planning is unaffected.
func (s *SiteIndex) Select(sel Selection) ([]model.SiteRule, error) {
	sites := s.Registry.Filter(sel.Category)

	if len(sel.Sites) > 0 {
		want := make(map[string]bool, len(sel.Sites))
		for _, name := range sel.Sites {
			rule, ok := s.Registry.Lookup(strings.TrimSpace(name))
			if !ok {
				return nil, fmt.Errorf("unknown site %q", name)
			}
			want[rule.Name] = true
		}
		sites = keep(sites, want)
	}

	if q := strings.TrimSpace(sel.Query); q != "" {
		want := make(map[string]bool)
		for _, hit := range s.Index.Search(q) {
			want[hit.DocumentID] = true
		}
		sites = keep(sites, want)
	}
	return sites, nil
}

// Search returns the sites matching query, best match first.
func (s *SiteIndex) Search(query string) []model.SiteRule {
	hits := s.Index.Search(query)
	out := make([]model.SiteRule, 0, len(hits))
	for _, hit := range hits {
		if rule, ok := s.Registry.Lookup(hit.DocumentID); ok {
			out = append(out, rule)
		}
	}
	return out
}

func (s *SiteIndex) Lookup(name string) (model.SiteRule, bool) {
	return s.Registry.Lookup(strings.TrimSpace(name))
}

func (s *SiteIndex) Categories() []string {
	return s.Registry.Categories()
}

func keep(sites []model.SiteRule, want map[string]bool) []model.SiteRule {
	out := make([]model.SiteRule, 0, len(want))
	for _, site := range sites {
		if want[site.Name] {
			out = append(out, site)
		}
	}
	return out
}

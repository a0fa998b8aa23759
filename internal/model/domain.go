package model

import (
	"net/url"
	"strings"
	"time"
)

// Placeholder marks where the handle goes in a site's URL template.
const Placeholder = "{account}"

type State string

const (
	StatePending  State = "pending"
	StateChecking State = "checking"
	StateFound    State = "found"
	StateNotFound State = "not_found"
	StateError    State = "error"
)

// Terminal reports whether no further primary transition is expected.
func (s State) Terminal() bool {
	return s == StateFound || s == StateNotFound || s == StateError
}

// CanTransition encodes the result lifecycle. The only way back out of a
// terminal state is error -> checking, and only for a backup retry.
func CanTransition(from, to State, backup bool) bool {
	switch from {
	case StatePending:
		return to == StateChecking
	case StateChecking:
		return to.Terminal()
	case StateError:
		return backup && to == StateChecking
	default:
		return false
	}
}

// SiteRule describes how to probe one site and read its response.
type SiteRule struct {
	Name          string   `json:"name"`
	URLTemplate   string   `json:"url_template"`
	PrettyURL     string   `json:"pretty_url,omitempty"`
	ExistsCode    int      `json:"exists_code,omitempty"`
	AbsentCode    int      `json:"absent_code,omitempty"`
	ExistsMarkers []string `json:"exists_markers"`
	AbsentMarkers []string `json:"absent_markers"`
	Category      string   `json:"category"`
	Known         []string `json:"known,omitempty"`
}

// HasMarkers reports whether the rule carries any body evidence at all.
func (r SiteRule) HasMarkers() bool {
	return len(r.ExistsMarkers) > 0 || len(r.AbsentMarkers) > 0
}

type CheckTask struct {
	Site   SiteRule `json:"site"`
	Handle string   `json:"handle"`
}

func (t CheckTask) TargetURL() string {
	return expand(t.Site.URLTemplate, t.Handle)
}

// DisplayURL is the profile address a person would open in a browser.
func (t CheckTask) DisplayURL() string {
	if t.Site.PrettyURL == "" {
		return t.TargetURL()
	}
	return expand(t.Site.PrettyURL, t.Handle)
}

func expand(template, handle string) string {
	return strings.Replace(template, Placeholder, url.PathEscape(handle), 1)
}

type CheckResult struct {
	Task        CheckTask `json:"task"`
	Order       int       `json:"order"`
	State       State     `json:"state"`
	HTTPStatus  int       `json:"http_status,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
	LatencyMS   *int64    `json:"latency_ms,omitempty"`
	ViaBackup   bool      `json:"via_backup,omitempty"`
	Title       string    `json:"title,omitempty"`
}

// SiteName is the key results are stored and matched under.
func (r CheckResult) SiteName() string {
	return r.Task.Site.Name
}

type RunStats struct {
	Total         int     `json:"total"`
	Completed     int     `json:"completed"`
	Pending       int     `json:"pending"`
	Checking      int     `json:"checking"`
	Found         int     `json:"found"`
	NotFound      int     `json:"not_found"`
	Errors        int     `json:"errors"`
	MeanLatencyMS float64 `json:"mean_latency_ms"`
}

// Snapshot is one observation of a search: the full result collection plus
// the stats derived from exactly that collection.
type Snapshot struct {
	SearchID string        `json:"search_id"`
	Handle   string        `json:"handle"`
	Results  []CheckResult `json:"results"`
	Stats    RunStats      `json:"stats"`
	Done     bool          `json:"done"`
}

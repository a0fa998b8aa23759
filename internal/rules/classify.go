// Package rules decides whether an HTTP response means a handle exists on a
// site. Everything here is pure: same inputs, same verdict.
package rules

import (
	"net/http"
	"strings"

	"handleprobe/internal/model"
)

type Verdict int

const (
	Indeterminate Verdict = iota
	Found
	NotFound
)

func (v Verdict) String() string {
	switch v {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "indeterminate"
	}
}

// State maps a decided verdict onto a result state.
func (v Verdict) State() (model.State, bool) {
	switch v {
	case Found:
		return model.StateFound, true
	case NotFound:
		return model.StateNotFound, true
	default:
		return "", false
	}
}

// Phrases that commonly appear on pages served with 200 for a missing
// profile, and phrases that only show up on real ones. Matched lowercase.
var (
	negativePhrases = []string{
		"user not found",
		"profile not found",
		"account not found",
		"page not found",
		"does not exist",
		"not available",
		"suspended",
		"deactivated",
		"deleted",
		"removed",
	}
	positivePhrases = []string{
		"profile",
		"posts",
		"followers",
		"following",
		"about",
		"bio",
		"joined",
		"member since",
	}
)

// Classify applies a site's rule to a response. The result is always Found
// or NotFound; ambiguity resolves toward NotFound.
func Classify(rule model.SiteRule, status int, body string) Verdict {
	var v Verdict
	switch {
	case rule.ExistsCode != 0 && status == rule.ExistsCode:
		if len(rule.ExistsMarkers) == 0 || containsAny(body, rule.ExistsMarkers) {
			v = Found
		} else {
			v = NotFound
		}
	case rule.AbsentCode != 0 && status == rule.AbsentCode:
		v = NotFound
	case containsAny(body, rule.ExistsMarkers):
		v = Found
	case containsAny(body, rule.AbsentMarkers):
		v = NotFound
	default:
		v = statusTable(status)
		if v == Indeterminate {
			v = NotFound
		}
	}

	if v == NotFound && status == http.StatusOK && !rule.HasMarkers() {
		if phraseVerdict(body) == Found {
			v = Found
		}
	}
	return v
}

// Heuristic classifies without a site rule. Backup egress uses it because the
// relay cannot consult registry markers, so it trades precision for
// availability and may answer Indeterminate.
func Heuristic(status int, body string) Verdict {
	if status == http.StatusOK {
		if v := phraseVerdict(body); v != Indeterminate {
			return v
		}
	}
	return statusTable(status)
}

func phraseVerdict(body string) Verdict {
	lower := strings.ToLower(body)
	if containsAny(lower, negativePhrases) {
		return NotFound
	}
	if containsAny(lower, positivePhrases) {
		return Found
	}
	return Indeterminate
}

func statusTable(status int) Verdict {
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return Found
	case http.StatusNotFound, http.StatusForbidden, http.StatusGone:
		return NotFound
	default:
		return Indeterminate
	}
}

func containsAny(body string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(body, n) {
			return true
		}
	}
	return false
}

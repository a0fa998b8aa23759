package rules

import (
	"testing"

	"handleprobe/internal/model"
)

func rule(existsCode, absentCode int, exists, absent []string) model.SiteRule {
	if exists == nil {
		exists = []string{}
	}
	if absent == nil {
		absent = []string{}
	}
	return model.SiteRule{
		Name:          "Example",
		URLTemplate:   "https://example.test/{account}",
		ExistsCode:    existsCode,
		AbsentCode:    absentCode,
		ExistsMarkers: exists,
		AbsentMarkers: absent,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		rule   model.SiteRule
		status int
		body   string
		want   Verdict
	}{
		{"exists code with marker present", rule(200, 0, []string{"Profile"}, nil), 200, "<html>Profile of bob</html>", Found},
		{"exists code with marker missing", rule(200, 0, []string{"Profile"}, nil), 200, "<html>nothing</html>", NotFound},
		{"exists code without markers", rule(200, 0, nil, nil), 200, "anything", Found},
		{"exists code without markers ignores negative phrase", rule(200, 0, nil, nil), 200, "user not found", Found},
		{"markers are case sensitive", rule(200, 0, []string{"Profile"}, nil), 200, "profile of bob", NotFound},
		{"absent code empty body", rule(0, 404, nil, nil), 404, "", NotFound},
		{"absent code with absent marker", rule(200, 404, nil, []string{"Gone"}), 404, "Gone away", NotFound},
		{"absent code without absent marker", rule(200, 404, nil, []string{"Gone"}), 404, "still here", NotFound},
		{"absent code with exists marker", rule(200, 404, []string{"Profile"}, []string{"Gone"}), 404, "Profile", NotFound},
		{"unexpected status exists marker", rule(200, 404, []string{"Profile"}, []string{"Gone"}), 302, "Profile", Found},
		{"unexpected status absent marker", rule(200, 404, []string{"Profile"}, []string{"Gone"}), 302, "Gone", NotFound},
		{"unexpected status both markers prefers exists", rule(200, 404, []string{"Profile"}, []string{"Gone"}), 500, "Profile Gone", Found},
		{"no rule 500", rule(0, 0, nil, nil), 500, "", NotFound},
		{"no rule 201", rule(0, 0, nil, nil), 201, "", Found},
		{"no rule 202", rule(0, 0, nil, nil), 202, "", Found},
		{"no rule 403", rule(0, 0, nil, nil), 403, "", NotFound},
		{"no rule 410", rule(0, 0, nil, nil), 410, "", NotFound},
		{"no rule 429", rule(0, 0, nil, nil), 429, "", NotFound},
		{"no rule 200", rule(0, 0, nil, nil), 200, "", Found},
		{"bare 200 absent code upgraded by positive phrase", rule(0, 200, nil, nil), 200, "42 Followers", Found},
		{"bare 200 absent code kept by negative phrase", rule(0, 200, nil, nil), 200, "Followers. This account is suspended", NotFound},
		{"bare 200 absent code without phrases", rule(0, 200, nil, nil), 200, "<html></html>", NotFound},
		{"200 with markers skips phrase pass", rule(0, 200, nil, []string{"Gone"}), 200, "followers", NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.rule, tt.status, tt.body); got != tt.want {
				t.Fatalf("Classify(%d, %q) = %s, want %s", tt.status, tt.body, got, tt.want)
			}
		})
	}
}

func TestClassifyExistsCodeWithoutMarkersAlwaysFound(t *testing.T) {
	r := rule(200, 404, nil, []string{"missing"})
	for _, body := range []string{"", "missing", "user not found", "<html>x</html>"} {
		if got := Classify(r, 200, body); got != Found {
			t.Fatalf("body %q: got %s", body, got)
		}
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	r := rule(200, 404, []string{"Profile"}, []string{"Gone"})
	inputs := []struct {
		status int
		body   string
	}{{200, "Profile"}, {404, "Gone"}, {500, ""}, {200, "followers"}}
	for _, in := range inputs {
		first := Classify(r, in.status, in.body)
		for i := 0; i < 5; i++ {
			if got := Classify(r, in.status, in.body); got != first {
				t.Fatalf("classify(%d, %q) changed from %s to %s", in.status, in.body, first, got)
			}
		}
	}
}

func TestClassifyNeverIndeterminate(t *testing.T) {
	r := rule(0, 0, nil, nil)
	for _, status := range []int{0, 100, 200, 301, 404, 429, 500, 503} {
		if got := Classify(r, status, ""); got == Indeterminate {
			t.Fatalf("status %d produced indeterminate", status)
		}
	}
}

func TestHeuristic(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   Verdict
	}{
		{200, "Member since 2019", Found},
		{200, "Sorry, this page does not exist. Followers", NotFound},
		{200, "<html></html>", Found},
		{404, "followers", NotFound},
		{410, "", NotFound},
		{429, "", Indeterminate},
		{503, "profile", Indeterminate},
	}
	for _, tt := range tests {
		if got := Heuristic(tt.status, tt.body); got != tt.want {
			t.Fatalf("Heuristic(%d, %q) = %s, want %s", tt.status, tt.body, got, tt.want)
		}
	}
}

func TestVerdictState(t *testing.T) {
	if s, ok := Found.State(); !ok || s != model.StateFound {
		t.Fatalf("found -> %s %v", s, ok)
	}
	if s, ok := NotFound.State(); !ok || s != model.StateNotFound {
		t.Fatalf("not found -> %s %v", s, ok)
	}
	if _, ok := Indeterminate.State(); ok {
		t.Fatal("indeterminate must not map to a state")
	}
}

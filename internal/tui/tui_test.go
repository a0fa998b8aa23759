package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"handleprobe/internal/model"
)

func snapshot() model.Snapshot {
	ms := int64(40)
	site := func(name, cat string) model.CheckTask {
		return model.CheckTask{
			Site:   model.SiteRule{Name: name, URLTemplate: "https://" + name + ".test/{account}", Category: cat},
			Handle: "alice",
		}
	}
	return model.Snapshot{
		SearchID: "s1",
		Handle:   "alice",
		Results: []model.CheckResult{
			{Task: site("github", "coding"), State: model.StateFound, LatencyMS: &ms},
			{Task: site("reddit", "social"), State: model.StateNotFound},
			{Task: site("steam", "gaming"), State: model.StateError, ErrorDetail: "request timeout", ViaBackup: true},
			{Task: site("twitch", "gaming"), State: model.StateChecking},
		},
		Stats: model.RunStats{Total: 4, Completed: 3, Found: 1, NotFound: 1, Errors: 1, Checking: 1, MeanLatencyMS: 40},
	}
}

func TestProgressFollowsSnapshots(t *testing.T) {
	updates := make(chan model.Snapshot)
	m := NewProgress("alice", updates, nil)

	next, cmd := m.Update(snapshotMsg(snapshot()))
	if cmd == nil {
		t.Fatal("expected a follow-up command")
	}
	m = next.(Progress)
	if m.Last().SearchID != "s1" {
		t.Fatalf("last = %+v", m.Last())
	}
	view := m.View()
	if !strings.Contains(view, "3/4") || !strings.Contains(view, "alice") {
		t.Fatalf("view = %q", view)
	}
	if !strings.Contains(view, "found 1  not found 1  errors 1") {
		t.Fatalf("view missing tally: %q", view)
	}
}

func TestProgressInterrupt(t *testing.T) {
	canceled := false
	m := NewProgress("alice", make(chan model.Snapshot), func() { canceled = true })

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !canceled || !next.(Progress).Aborted {
		t.Fatal("ctrl+c should cancel the search")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
}

func TestWaitForClosedChannel(t *testing.T) {
	updates := make(chan model.Snapshot)
	close(updates)
	if _, ok := waitFor(updates)().(closedMsg); !ok {
		t.Fatal("closed channel should yield closedMsg")
	}
}

func TestRenderResults(t *testing.T) {
	out := RenderResults(snapshot(), false)
	for _, want := range []string{"Results for alice", "github", "https://reddit.test/alice", "error (backup)", "40ms", "Found: 1  Not found: 1  Errors: 1", "steam (request timeout)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}

	found := RenderResults(snapshot(), true)
	if strings.Contains(found, "https://reddit.test/alice") || !strings.Contains(found, "https://github.test/alice") {
		t.Fatalf("found-only table wrong:\n%s", found)
	}
	if RenderResults(model.Snapshot{}, false) != "No results." {
		t.Fatal("empty snapshot should say so")
	}
}

func TestRenderSites(t *testing.T) {
	out := RenderSites([]model.SiteRule{{Name: "GitHub", Category: "coding", URLTemplate: "https://github.com/{account}"}})
	if !strings.Contains(out, "GitHub") || !strings.Contains(out, "1 sites") {
		t.Fatalf("sites = %q", out)
	}
}

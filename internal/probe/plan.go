package probe

import (
	"strings"

	"handleprobe/internal/model"
)

// DefaultPriority lists mainstream platforms whose verdicts are dispatched
// first, in this order.
var DefaultPriority = []string{
	"GitHub",
	"Twitter",
	"X",
	"Instagram",
	"Facebook",
	"YouTube",
	"TikTok",
	"Reddit",
	"LinkedIn",
	"Twitch",
	"Pinterest",
	"Telegram",
	"Discord",
	"Snapchat",
	"Medium",
	"GitLab",
	"Steam",
	"Spotify",
	"SoundCloud",
}

// Wave is one bounded-concurrency batch. Priority and regular sites never
// share a wave.
type Wave struct {
	Index    int
	Priority bool
	Tasks    []model.CheckTask
}

// Plan orders sites (allow-listed first, in allow-list order, the rest in
// registry order), caps the working set and cuts it into waves.
func Plan(handle string, sites []model.SiteRule, opts Options) []Wave {
	opts = opts.normalized()

	rank := make(map[string]int, len(opts.Priority))
	for i, name := range opts.Priority {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := rank[key]; !dup && key != "" {
			rank[key] = i
		}
	}

	slots := make([]*model.SiteRule, len(opts.Priority))
	rest := make([]model.SiteRule, 0, len(sites))
	for i := range sites {
		r, ok := rank[strings.ToLower(sites[i].Name)]
		if ok && slots[r] == nil {
			slots[r] = &sites[i]
			continue
		}
		rest = append(rest, sites[i])
	}

	priority := make([]model.SiteRule, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			priority = append(priority, *s)
		}
	}

	if opts.MaxSites > 0 {
		if len(priority) > opts.MaxSites {
			priority = priority[:opts.MaxSites]
		}
		if room := opts.MaxSites - len(priority); len(rest) > room {
			rest = rest[:room]
		}
	}

	waves := make([]Wave, 0)
	waves = appendWaves(waves, handle, priority, opts.PriorityBatchSize, true)
	waves = appendWaves(waves, handle, rest, opts.BatchSize, false)
	return waves
}

func appendWaves(waves []Wave, handle string, sites []model.SiteRule, size int, priority bool) []Wave {
	for start := 0; start < len(sites); start += size {
		end := min(start+size, len(sites))
		tasks := make([]model.CheckTask, 0, end-start)
		for _, s := range sites[start:end] {
			tasks = append(tasks, model.CheckTask{Site: s, Handle: handle})
		}
		waves = append(waves, Wave{Index: len(waves), Priority: priority, Tasks: tasks})
	}
	return waves
}

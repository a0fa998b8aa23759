// Package stats derives run counters from a result collection. Nothing here
// keeps state; counts are always recomputed from the results they describe.
package stats

import (
	"sort"
	"strings"

	"handleprobe/internal/model"
)

func Compute(results []model.CheckResult) model.RunStats {
	s := model.RunStats{Total: len(results)}
	var latencySum int64
	var latencyCount int
	for _, r := range results {
		switch r.State {
		case model.StatePending:
			s.Pending++
		case model.StateChecking:
			s.Checking++
		case model.StateFound:
			s.Found++
		case model.StateNotFound:
			s.NotFound++
		case model.StateError:
			s.Errors++
		}
		if r.LatencyMS != nil {
			latencySum += *r.LatencyMS
			latencyCount++
		}
	}
	s.Completed = s.Found + s.NotFound + s.Errors
	if latencyCount > 0 {
		s.MeanLatencyMS = float64(latencySum) / float64(latencyCount)
	}
	return s
}

type Order string

const (
	OrderDispatch   Order = "dispatch"
	OrderFoundFirst Order = "found"
	OrderName       Order = "name"
	OrderLatency    Order = "latency"
)

// ParseOrder maps a user-supplied name onto an Order, defaulting to dispatch.
func ParseOrder(s string) Order {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case OrderFoundFirst:
		return OrderFoundFirst
	case OrderName:
		return OrderName
	case OrderLatency:
		return OrderLatency
	default:
		return OrderDispatch
	}
}

// Sort returns a re-ordered copy of results.
func Sort(results []model.CheckResult, order Order) []model.CheckResult {
	out := append([]model.CheckResult(nil), results...)
	var less func(a, b model.CheckResult) bool
	switch order {
	case OrderFoundFirst:
		// Found results lead, then the most recently observed.
		less = func(a, b model.CheckResult) bool {
			af, bf := a.State == model.StateFound, b.State == model.StateFound
			if af != bf {
				return af
			}
			if !a.ObservedAt.Equal(b.ObservedAt) {
				return a.ObservedAt.After(b.ObservedAt)
			}
			return a.Order < b.Order
		}
	case OrderName:
		less = func(a, b model.CheckResult) bool {
			an, bn := strings.ToLower(a.SiteName()), strings.ToLower(b.SiteName())
			if an != bn {
				return an < bn
			}
			return a.Order < b.Order
		}
	case OrderLatency:
		// Results without latency sort last.
		less = func(a, b model.CheckResult) bool {
			switch {
			case a.LatencyMS == nil && b.LatencyMS == nil:
				return a.Order < b.Order
			case a.LatencyMS == nil:
				return false
			case b.LatencyMS == nil:
				return true
			case *a.LatencyMS != *b.LatencyMS:
				return *a.LatencyMS < *b.LatencyMS
			}
			return a.Order < b.Order
		}
	default:
		less = func(a, b model.CheckResult) bool { return a.Order < b.Order }
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

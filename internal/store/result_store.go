package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"handleprobe/internal/model"
	"handleprobe/internal/stats"
)

var (
	ErrStale             = errors.New("update belongs to a superseded search")
	ErrUnknownTask       = errors.New("no task for site in current search")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Update is one task-keyed change. Zero-valued optional fields are left as
// they were, except on terminal transitions where error detail is replaced.
type Update struct {
	Site        string
	State       model.State
	HTTPStatus  int
	ErrorDetail string
	LatencyMS   *int64
	Title       string
	Backup      bool
	At          time.Time
}

// ResultStore is the single writer for a session's results. Every write is
// checked against the search generation it was issued for, so work from a
// superseded search can never land in a newer one.
type ResultStore struct {
	mu         sync.Mutex
	generation uint64
	searchID   string
	handle     string
	results    []model.CheckResult
	index      map[string]int
	done       bool
	closed     bool
	subs       map[int]chan model.Snapshot
	nextSub    int
}

func NewResultStore() *ResultStore {
	return &ResultStore{
		index: make(map[string]int),
		subs:  make(map[int]chan model.Snapshot),
	}
}

// Reset starts a new generation with every task pending and returns the
// generation writers must quote.
func (s *ResultStore) Reset(searchID, handle string, tasks []model.CheckTask, at time.Time) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.searchID = searchID
	s.handle = handle
	s.done = false
	s.results = make([]model.CheckResult, len(tasks))
	s.index = make(map[string]int, len(tasks))
	for i, task := range tasks {
		s.results[i] = model.CheckResult{
			Task:       task,
			Order:      i,
			State:      model.StatePending,
			ObservedAt: at,
		}
		s.index[task.Site.Name] = i
	}
	s.publishLocked()
	return s.generation
}

// Apply performs one transition for the task keyed by u.Site.
func (s *ResultStore) Apply(generation uint64, u Update) (model.CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		return model.CheckResult{}, ErrStale
	}
	i, ok := s.index[u.Site]
	if !ok {
		return model.CheckResult{}, fmt.Errorf("%w: %s", ErrUnknownTask, u.Site)
	}
	current := s.results[i]
	if !model.CanTransition(current.State, u.State, u.Backup) {
		return current, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, u.Site, current.State, u.State)
	}

	next := current
	next.State = u.State
	next.ObservedAt = u.At
	if u.Backup {
		next.ViaBackup = true
	}
	if u.State.Terminal() {
		next.HTTPStatus = u.HTTPStatus
		next.ErrorDetail = u.ErrorDetail
		next.LatencyMS = u.LatencyMS
		next.Title = u.Title
	}
	s.results[i] = next
	s.publishLocked()
	return next, nil
}

// Restore puts prior back in place of a task that is being checked, for an
// attempt that was abandoned without an outcome.
func (s *ResultStore) Restore(generation uint64, prior model.CheckResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		return ErrStale
	}
	i, ok := s.index[prior.Task.Site.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, prior.Task.Site.Name)
	}
	if current := s.results[i]; current.State != model.StateChecking {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, prior.Task.Site.Name, current.State, prior.State)
	}
	s.results[i] = prior
	s.publishLocked()
	return nil
}

// Finish marks the generation complete and publishes the final snapshot.
func (s *ResultStore) Finish(generation uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		return ErrStale
	}
	s.done = true
	s.publishLocked()
	return nil
}

func (s *ResultStore) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *ResultStore) Get(site string) (model.CheckResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[site]
	if !ok {
		return model.CheckResult{}, false
	}
	return s.results[i], true
}

func (s *ResultStore) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel of snapshots. A slow reader only ever misses
// intermediate snapshots; the newest one is always waiting for it. The
// channel is closed by the returned func or by Close, whichever comes first.
func (s *ResultStore) Subscribe() (<-chan model.Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan model.Snapshot, 1)
	ch <- s.snapshotLocked()
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

// Close ends every subscription. The last snapshot each subscriber had not
// read yet stays readable before its channel reports closed.
func (s *ResultStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// A finished generation only reads as done while no task is in flight, so a
// retry started after Finish clears Done until it settles.
func (s *ResultStore) snapshotLocked() model.Snapshot {
	results := append([]model.CheckResult(nil), s.results...)
	st := stats.Compute(results)
	return model.Snapshot{
		SearchID: s.searchID,
		Handle:   s.handle,
		Results:  results,
		Stats:    st,
		Done:     s.done && st.Pending == 0 && st.Checking == 0,
	}
}

func (s *ResultStore) publishLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Replace the unread snapshot with the newer one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

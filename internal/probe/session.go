// Package probe runs handle searches: it plans waves over a site list,
// fetches and classifies each site and keeps the live result collection.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"handleprobe/internal/egress"
	"handleprobe/internal/fetch"
	"handleprobe/internal/model"
	"handleprobe/internal/store"
)

var (
	ErrEmptyHandle    = errors.New("handle is required")
	ErrNoSites        = errors.New("no sites available")
	ErrClosed         = errors.New("session is closed")
	ErrNoSearch       = errors.New("no search has been started")
	ErrNoBackup       = errors.New("backup egress is not configured")
	ErrNotRetryable   = errors.New("only errored checks can be retried")
	ErrAlreadyRetried = errors.New("check was already retried via backup")
)

// Fetcher is the primary request path.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (fetch.Response, error)
}

// Backup is the alternate egress used to retry errored checks.
type Backup interface {
	Len() int
	ShouldRetry() bool
	FetchViaBackup(ctx context.Context, url string, timeout time.Duration) (egress.Result, error)
}

type Deps struct {
	Fetcher Fetcher
	// Backup may be nil, which disables retries.
	Backup Backup
	Logger *log.Logger
	Now    func() time.Time
}

// Session owns one caller's result collection. Create it, run searches on
// it, and Close it when the caller goes away. A session runs at most one
// search at a time; starting another supersedes the first.
type Session struct {
	deps    Deps
	opts    Options
	results *store.ResultStore

	mu      sync.Mutex
	current *Search
	closed  bool
}

func NewSession(deps Deps, opts Options) (*Session, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("probe: fetcher is required")
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Session{
		deps:    deps,
		opts:    opts.normalized(),
		results: store.NewResultStore(),
	}, nil
}

// Search is one running or finished search.
type Search struct {
	ID     string
	Handle string
	Waves  []Wave

	generation  uint64
	updates     <-chan model.Snapshot
	unsubscribe func()
	cancel      context.CancelFunc
	done        chan struct{}
	ledger      *RetryLedger
}

// Updates streams snapshots of the whole result collection. The channel is
// closed when the search ends; a completed search's last snapshot has Done set.
func (s *Search) Updates() <-chan model.Snapshot {
	return s.updates
}

// Cancel abandons the search. Safe to call more than once.
func (s *Search) Cancel() {
	s.cancel()
}

// Wait blocks until the search has stopped.
func (s *Search) Wait() {
	<-s.done
}

func (s *Search) Done() <-chan struct{} {
	return s.done
}

// Start cancels any search still running on the session, waits for it to
// stop, then launches a search for handle over sites.
func (s *Session) Start(ctx context.Context, handle string, sites []model.SiteRule) (*Search, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, ErrEmptyHandle
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if prev := s.current; prev != nil {
		prev.Cancel()
		prev.Wait()
	}

	waves := Plan(handle, sites, s.opts)
	if len(waves) == 0 {
		return nil, ErrNoSites
	}
	tasks := make([]model.CheckTask, 0)
	for _, w := range waves {
		tasks = append(tasks, w.Tasks...)
	}

	searchID := uuid.NewString()
	generation := s.results.Reset(searchID, handle, tasks, s.deps.Now())
	updates, unsubscribe := s.results.Subscribe()

	runCtx, cancel := context.WithCancel(ctx)
	search := &Search{
		ID:          searchID,
		Handle:      handle,
		Waves:       waves,
		generation:  generation,
		updates:     updates,
		unsubscribe: unsubscribe,
		cancel:      cancel,
		done:        make(chan struct{}),
		ledger:      NewRetryLedger(),
	}
	s.current = search
	s.deps.Logger.Printf("[probe] search %s: %s over %d sites in %d waves", searchID, handle, len(tasks), len(waves))

	go s.run(runCtx, search)
	return search, nil
}

// Current returns the most recently started search, or nil.
func (s *Session) Current() *Search {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) Snapshot() model.Snapshot {
	return s.results.Snapshot()
}

// Subscribe watches the session across searches; see store.ResultStore.Subscribe.
func (s *Session) Subscribe() (<-chan model.Snapshot, func()) {
	return s.results.Subscribe()
}

// RetryViaBackup is the manual retry action for an errored check of the
// current search. Each check gets at most one backup attempt.
func (s *Session) RetryViaBackup(ctx context.Context, site string) (model.CheckResult, error) {
	s.mu.Lock()
	search := s.current
	closed := s.closed
	s.mu.Unlock()

	switch {
	case closed:
		return model.CheckResult{}, ErrClosed
	case search == nil:
		return model.CheckResult{}, ErrNoSearch
	case s.deps.Backup == nil || s.deps.Backup.Len() == 0:
		return model.CheckResult{}, ErrNoBackup
	}

	current, ok := s.results.Get(site)
	if !ok {
		return model.CheckResult{}, fmt.Errorf("%w: %s", store.ErrUnknownTask, site)
	}
	if current.State != model.StateError {
		return current, ErrNotRetryable
	}
	if !search.ledger.MarkIfNotRetried(site) {
		return current, ErrAlreadyRetried
	}

	err := s.retryViaBackup(ctx, search.generation, current)
	if fetch.IsCanceled(err) {
		search.ledger.Release(site)
		result, _ := s.results.Get(site)
		return result, err
	}
	result, _ := s.results.Get(site)
	return result, nil
}

// Close cancels the running search, ends every subscription and rejects
// further work.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.current != nil {
		s.current.Cancel()
		s.current.Wait()
	}
	s.results.Close()
}

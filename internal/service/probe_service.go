package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"handleprobe/internal/export"
	"handleprobe/internal/model"
	"handleprobe/internal/probe"
	"handleprobe/internal/stats"
	"handleprobe/internal/store"
)

var ErrUnknownSite = errors.New("unknown site")

// SessionRepository holds live probe sessions by id.
type SessionRepository interface {
	Create(id string, session *probe.Session) *store.SessionEntry[*probe.Session]
	Get(id string) (*probe.Session, error)
	Touch(id string) error
	Delete(id string) (*probe.Session, error)
	Expired(cutoff time.Time) []string
	Len() int
}

type SearchInput struct {
	Handle string `json:"handle"`
	Selection
}

// ProbeService orchestrates sessions for the HTTP server and the CLI.
type ProbeService struct {
	sessions SessionRepository
	sites    *SiteIndex
	deps     probe.Deps
	opts     probe.Options
}

func NewProbeService(sessions SessionRepository, sites *SiteIndex, deps probe.Deps, opts probe.Options) *ProbeService {
	return &ProbeService{
		sessions: sessions,
		sites:    sites,
		deps:     deps,
		opts:     opts,
	}
}

func (s *ProbeService) Sites() *SiteIndex {
	return s.sites
}

func (s *ProbeService) CreateSession() (string, error) {
	session, err := probe.NewSession(s.deps, s.opts)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	s.sessions.Create(id, session)
	return id, nil
}

func (s *ProbeService) session(id string) (*probe.Session, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	s.sessions.Touch(id)
	return session, nil
}

// Search starts a search on session id. The search outlives ctx's
// cancellation so a request can return while it runs; it stops when
// superseded or when the session closes.
func (s *ProbeService) Search(ctx context.Context, id string, input SearchInput) (*probe.Search, error) {
	session, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sites, err := s.sites.Select(input.Selection)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownSite, err)
	}
	return session.Start(context.WithoutCancel(ctx), input.Handle, sites)
}

func (s *ProbeService) Snapshot(id string, order stats.Order) (model.Snapshot, error) {
	session, err := s.session(id)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap := session.Snapshot()
	snap.Results = stats.Sort(snap.Results, order)
	return snap, nil
}

func (s *ProbeService) Subscribe(id string) (<-chan model.Snapshot, func(), error) {
	session, err := s.session(id)
	if err != nil {
		return nil, nil, err
	}
	updates, unsubscribe := session.Subscribe()
	return updates, unsubscribe, nil
}

func (s *ProbeService) Retry(ctx context.Context, id, site string) (model.CheckResult, error) {
	session, err := s.session(id)
	if err != nil {
		return model.CheckResult{}, err
	}
	return session.RetryViaBackup(ctx, site)
}

func (s *ProbeService) Export(id string, now time.Time) (export.Document, error) {
	session, err := s.session(id)
	if err != nil {
		return export.Document{}, err
	}
	snap := session.Snapshot()
	if snap.SearchID == "" {
		return export.Document{}, probe.ErrNoSearch
	}
	return export.FoundResults(snap.Handle, snap.Results, now), nil
}

func (s *ProbeService) CloseSession(id string) error {
	session, err := s.sessions.Delete(id)
	if err != nil {
		return err
	}
	session.Close()
	return nil
}

// ReapIdle closes sessions untouched since cutoff and reports how many.
func (s *ProbeService) ReapIdle(cutoff time.Time) int {
	n := 0
	for _, id := range s.sessions.Expired(cutoff) {
		if s.CloseSession(id) == nil {
			n++
		}
	}
	return n
}

// Check runs a one-off search of a single site and returns its result.
func (s *ProbeService) Check(ctx context.Context, site, handle string) (model.CheckResult, error) {
	rule, ok := s.sites.Lookup(site)
	if !ok {
		return model.CheckResult{}, fmt.Errorf("%w: %s", ErrUnknownSite, site)
	}
	session, err := probe.NewSession(s.deps, s.opts)
	if err != nil {
		return model.CheckResult{}, err
	}
	defer session.Close()

	search, err := session.Start(ctx, handle, []model.SiteRule{rule})
	if err != nil {
		return model.CheckResult{}, err
	}
	search.Wait()
	if err := ctx.Err(); err != nil {
		return model.CheckResult{}, err
	}
	snap := session.Snapshot()
	if len(snap.Results) != 1 {
		return model.CheckResult{}, fmt.Errorf("check %s: no result", rule.Name)
	}
	return snap.Results[0], nil
}

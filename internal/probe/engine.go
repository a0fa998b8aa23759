package probe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"handleprobe/internal/fetch"
	"handleprobe/internal/model"
	"handleprobe/internal/rules"
	"handleprobe/internal/store"
)

var tracer = otel.Tracer("handleprobe/probe")

func (s *Session) run(ctx context.Context, search *Search) {
	defer close(search.done)
	defer search.unsubscribe()
	defer search.cancel()

	ctx, span := tracer.Start(ctx, "probe.search")
	span.SetAttributes(
		attribute.String("handleprobe.search_id", search.ID),
		attribute.Int("handleprobe.waves", len(search.Waves)),
	)
	defer span.End()

	for i, wave := range search.Waves {
		if ctx.Err() != nil {
			s.deps.Logger.Printf("[probe] search %s canceled before wave %d", search.ID, wave.Index)
			return
		}
		s.runWave(ctx, search.generation, wave)
		s.retryErrored(ctx, search, wave)

		if i == len(search.Waves)-1 {
			break
		}
		delay := s.opts.Delay
		if wave.Priority {
			delay = s.opts.PriorityDelay
		}
		if !sleep(ctx, delay) {
			s.deps.Logger.Printf("[probe] search %s canceled after wave %d", search.ID, wave.Index)
			return
		}
	}

	if ctx.Err() != nil {
		s.deps.Logger.Printf("[probe] search %s canceled", search.ID)
		return
	}
	if err := s.results.Finish(search.generation); err != nil {
		return
	}
	snap := s.results.Snapshot()
	s.deps.Logger.Printf("[probe] search %s done: %d found, %d not found, %d errors",
		search.ID, snap.Stats.Found, snap.Stats.NotFound, snap.Stats.Errors)
}

// runWave marks every task checking, fetches them all concurrently and
// waits for the whole wave.
func (s *Session) runWave(ctx context.Context, generation uint64, wave Wave) {
	now := s.deps.Now()
	for _, task := range wave.Tasks {
		s.apply(generation, store.Update{Site: task.Site.Name, State: model.StateChecking, At: now})
	}

	var wg sync.WaitGroup
	for _, task := range wave.Tasks {
		wg.Add(1)
		go func(task model.CheckTask) {
			defer wg.Done()
			s.check(ctx, generation, task)
		}(task)
	}
	wg.Wait()
}

func (s *Session) check(ctx context.Context, generation uint64, task model.CheckTask) {
	start := s.deps.Now()
	resp, err := s.deps.Fetcher.Fetch(ctx, task.TargetURL(), s.opts.Timeout)
	if fetch.IsCanceled(err) {
		return
	}
	if err != nil {
		elapsed := s.deps.Now().Sub(start).Milliseconds()
		s.deps.Logger.Printf("[probe] %s: %v", task.Site.Name, err)
		s.apply(generation, store.Update{
			Site:        task.Site.Name,
			State:       model.StateError,
			ErrorDetail: err.Error(),
			LatencyMS:   &elapsed,
			At:          s.deps.Now(),
		})
		return
	}

	state, _ := rules.Classify(task.Site, resp.Status, resp.Body).State()
	u := store.Update{
		Site:       task.Site.Name,
		State:      state,
		HTTPStatus: resp.Status,
		LatencyMS:  &resp.LatencyMS,
		At:         s.deps.Now(),
	}
	if state == model.StateFound {
		u.Title = fetch.ParseTitle(resp.Body)
	}
	s.apply(generation, u)
}

// retryErrored gives each errored task of the wave one chance, drawn at
// random, to be retried through backup egress.
func (s *Session) retryErrored(ctx context.Context, search *Search, wave Wave) {
	if s.deps.Backup == nil || ctx.Err() != nil {
		return
	}
	var wg sync.WaitGroup
	for _, task := range wave.Tasks {
		current, ok := s.results.Get(task.Site.Name)
		if !ok || current.State != model.StateError {
			continue
		}
		if !s.deps.Backup.ShouldRetry() || !search.ledger.MarkIfNotRetried(task.Site.Name) {
			continue
		}
		wg.Add(1)
		go func(prior model.CheckResult) {
			defer wg.Done()
			s.retryViaBackup(ctx, search.generation, prior)
		}(current)
	}
	wg.Wait()
}

// retryViaBackup leaves the task terminal: a usable backup verdict
// replaces the error, a failed attempt keeps it with the backup failure
// appended. When ctx is abandoned mid-attempt the task is put back exactly as
// prior was and the fetch error is returned.
func (s *Session) retryViaBackup(ctx context.Context, generation uint64, prior model.CheckResult) error {
	task := prior.Task
	if _, err := s.apply(generation, store.Update{
		Site:   task.Site.Name,
		State:  model.StateChecking,
		Backup: true,
		At:     s.deps.Now(),
	}); err != nil {
		return err
	}

	start := s.deps.Now()
	res, err := s.deps.Backup.FetchViaBackup(ctx, task.TargetURL(), s.opts.BackupTimeout)
	elapsed := s.deps.Now().Sub(start).Milliseconds()

	if fetch.IsCanceled(err) {
		if rerr := s.results.Restore(generation, prior); rerr != nil && !errors.Is(rerr, store.ErrStale) {
			s.deps.Logger.Printf("[probe] %s: %v", task.Site.Name, rerr)
		}
		return err
	}

	u := store.Update{Site: task.Site.Name, Backup: true, LatencyMS: &elapsed, At: s.deps.Now()}
	state, decided := res.Verdict.State()
	switch {
	case err != nil:
		u.State = model.StateError
		u.ErrorDetail = fmt.Sprintf("%s; backup: %v", prior.ErrorDetail, err)
	case !decided:
		u.State = model.StateError
		u.HTTPStatus = res.Status
		u.ErrorDetail = fmt.Sprintf("%s; backup: inconclusive response (status %d)", prior.ErrorDetail, res.Status)
	default:
		u.State = state
		u.HTTPStatus = res.Status
		u.LatencyMS = &res.LatencyMS
		if state == model.StateFound {
			u.Title = fetch.ParseTitle(res.Body)
		}
	}
	if err != nil {
		s.deps.Logger.Printf("[probe] %s: backup via %s: %v", task.Site.Name, res.Endpoint, err)
	}
	_, aerr := s.apply(generation, u)
	return aerr
}

func (s *Session) apply(generation uint64, u store.Update) (model.CheckResult, error) {
	r, err := s.results.Apply(generation, u)
	if err != nil && !errors.Is(err, store.ErrStale) {
		s.deps.Logger.Printf("[probe] %s: %v", u.Site, err)
	}
	return r, err
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

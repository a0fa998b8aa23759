package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"handleprobe/internal/export"
	"handleprobe/internal/model"
	"handleprobe/internal/probe"
	"handleprobe/internal/service"
	"handleprobe/internal/stats"
	"handleprobe/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrSessionNotFound), errors.Is(err, store.ErrUnknownTask):
		return http.StatusNotFound
	case errors.Is(err, probe.ErrEmptyHandle), errors.Is(err, probe.ErrNoSites), errors.Is(err, service.ErrUnknownSite):
		return http.StatusBadRequest
	case errors.Is(err, probe.ErrNoSearch), errors.Is(err, probe.ErrNotRetryable),
		errors.Is(err, probe.ErrAlreadyRetried), errors.Is(err, probe.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, probe.ErrNoBackup):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Printf("[http] %v", err)
	}
	http.Error(w, err.Error(), code)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.service.CreateSession()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, err := s.service.Snapshot(id, stats.ParseOrder(r.URL.Query().Get("sort")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CloseSession(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var input service.SearchInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	search, err := s.service.Search(r.Context(), r.PathValue("id"), input)
	if err != nil {
		s.writeError(w, err)
		return
	}

	tasks := 0
	for _, wave := range search.Waves {
		tasks += len(wave.Tasks)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"search_id": search.ID,
		"handle":    search.Handle,
		"sites":     tasks,
		"waves":     len(search.Waves),
	})
}

// handleEvents streams session snapshots as Server-Sent Events until the
// running search finishes or the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	updates, unsubscribe, err := s.service.Subscribe(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, snap); err != nil {
				return
			}
			flusher.Flush()
			if snap.Done {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	event := "snapshot"
	if snap.Done {
		event = "done"
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Retry(r.Context(), r.PathValue("id"), r.PathValue("site"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	doc, err := s.service.Export(r.PathValue("id"), s.now())
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename(doc)))
	if err := export.Write(w, format, doc); err != nil {
		s.logger.Printf("[http] export %s: %v", format, err)
	}
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sites, err := s.service.Sites().Select(service.Selection{
		Category: q.Get("category"),
		Query:    q.Get("q"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sites)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Sites().Categories())
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	site, handle := strings.TrimSpace(q.Get("site")), strings.TrimSpace(q.Get("handle"))
	if site == "" || handle == "" {
		http.Error(w, "site and handle are required", http.StatusBadRequest)
		return
	}
	result, err := s.service.Check(r.Context(), site, handle)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

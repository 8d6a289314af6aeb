package refresh

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[refresh] encode response: %v", err)
	}
}

// Refresh runs one update synchronously and reports its result.
func (s *Service) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if r.Body != nil {
		err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	cfg := s.cfg
	if req.Year != "" {
		cfg.Year = req.Year
	}
	if len(req.Fields) > 0 {
		cfg.Fields = req.Fields
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !s.begin() {
		http.Error(w, "A refresh is already running", http.StatusConflict)
		return
	}
	if !s.limiter.Allow() {
		s.abort()
		w.Header().Set("Retry-After", strconv.Itoa(int(MinInterval.Seconds())))
		http.Error(w, "Refresh rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	res := RunResult{StartedAt: time.Now().UTC(), Year: cfg.Year, Fields: cfg.Fields}
	stats, err := s.run(r.Context(), cfg)
	res.FinishedAt = time.Now().UTC()
	res.SourceRows = stats.SourceRows
	res.Updated = stats.Updated
	res.DuplicateKeys = stats.DuplicateKeys
	if err != nil {
		res.Error = err.Error()
	}
	s.finish(res)

	if err != nil {
		log.Printf("[refresh] run failed: %v", err)
		writeJSON(w, http.StatusBadGateway, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Status reports the last run, if any.
func (s *Service) Status(w http.ResponseWriter, r *http.Request) {
	res, ok, running := s.lastResult()
	w.Header().Set("X-Refresh-Running", strconv.FormatBool(running))
	if !ok {
		http.Error(w, "No refresh has run yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

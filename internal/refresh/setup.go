package refresh

import (
	"sync"
	"time"

	"github.com/EmpoweredVote/tract-census/internal/config"
	"golang.org/x/time/rate"
)

// Service serialises refresh runs and remembers the last outcome.
type Service struct {
	cfg     config.Config
	run     Runner
	limiter *rate.Limiter

	mu      sync.Mutex
	running bool
	last    *RunResult
}

// MinInterval is how often a refresh may start.
const MinInterval = time.Minute

// NewService creates a refresh service around run.
func NewService(cfg config.Config, run Runner) *Service {
	return &Service{
		cfg:     cfg,
		run:     run,
		limiter: rate.NewLimiter(rate.Every(MinInterval), 1),
	}
}

// begin marks a run as started. It fails if one is already running.
func (s *Service) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Service) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

func (s *Service) finish(res RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.last = &res
}

func (s *Service) lastResult() (RunResult, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return RunResult{}, false, s.running
	}
	return *s.last, true, s.running
}

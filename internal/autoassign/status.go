package autoassign

import (
	"context"
	"errors"
	"sync"
	"time"

	"leadcrm_backend/platform/cache"
)

const (
	maxRecordedErrors = 20
	statusKey         = "autoassign:status"
)

// RunError is a recorded pass failure.
type RunError struct {
	At      time.Time `json:"at"`
	Source  string    `json:"source,omitempty"`
	Message string    `json:"message"`
}

// SystemStatus tracks distributor runs across the process (memory) or the
// fleet (Redis).
type SystemStatus struct {
	IsRunning          bool       `json:"is_running"`
	Mode               string     `json:"mode"`
	TotalRuns          int        `json:"total_runs"`
	FailedRuns         int        `json:"failed_runs"`
	TotalLeadsAssigned int        `json:"total_leads_assigned"`
	LastRun            *time.Time `json:"last_run"`
	NextRun            *time.Time `json:"next_run"`
	StartedAt          *time.Time `json:"started_at"`
	Errors             []RunError `json:"errors"`
}

// StatusStore persists SystemStatus.
type StatusStore interface {
	Load(ctx context.Context) (SystemStatus, error)
	Update(ctx context.Context, fn func(*SystemStatus) error) (SystemStatus, error)
}

// MemoryStatusStore keeps the status in process memory.
type MemoryStatusStore struct {
	mu     sync.Mutex
	status SystemStatus
}

// NewMemoryStatusStore returns an empty store.
func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{}
}

func (s *MemoryStatusStore) Load(_ context.Context) (SystemStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyStatus(s.status), nil
}

func (s *MemoryStatusStore) Update(_ context.Context, fn func(*SystemStatus) error) (SystemStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := copyStatus(s.status)
	if err := fn(&next); err != nil {
		return copyStatus(s.status), err
	}
	s.status = next
	return copyStatus(next), nil
}

func copyStatus(s SystemStatus) SystemStatus {
	s.Errors = append([]RunError(nil), s.Errors...)
	return s
}

// RedisStatusStore shares the status between the API and the scheduler
// processes.
type RedisStatusStore struct {
	client *cache.Client
	key    string
}

// NewRedisStatusStore stores the status under a fixed key.
func NewRedisStatusStore(client *cache.Client) *RedisStatusStore {
	return &RedisStatusStore{client: client, key: statusKey}
}

func (s *RedisStatusStore) Load(ctx context.Context) (SystemStatus, error) {
	var status SystemStatus
	err := s.client.GetJSON(ctx, s.key, &status)
	if errors.Is(err, cache.ErrMiss) {
		return SystemStatus{}, nil
	}
	return status, err
}

func (s *RedisStatusStore) Update(ctx context.Context, fn func(*SystemStatus) error) (SystemStatus, error) {
	return cache.UpdateJSON(ctx, s.client, s.key, fn)
}

// Tracker records pass outcomes in a StatusStore.
type Tracker struct {
	store    StatusStore
	interval time.Duration
	now      func() time.Time
}

// NewTracker builds a tracker. interval is the expected gap between passes
// and feeds next_run and the health score.
func NewTracker(store StatusStore, interval time.Duration) *Tracker {
	return &Tracker{store: store, interval: interval, now: time.Now}
}

// MarkStarted flags the distributor as running under mode.
func (t *Tracker) MarkStarted(ctx context.Context, mode string) error {
	now := t.now().UTC()
	_, err := t.store.Update(ctx, func(s *SystemStatus) error {
		s.IsRunning = true
		s.Mode = mode
		s.StartedAt = &now
		next := now.Add(t.interval)
		s.NextRun = &next
		return nil
	})
	return err
}

// MarkStopped clears the running flag.
func (t *Tracker) MarkStopped(ctx context.Context) error {
	_, err := t.store.Update(ctx, func(s *SystemStatus) error {
		s.IsRunning = false
		s.NextRun = nil
		return nil
	})
	return err
}

// RecordPass folds a pass result into the status.
func (t *Tracker) RecordPass(ctx context.Context, res PassResult) error {
	_, err := t.store.Update(ctx, func(s *SystemStatus) error {
		at := res.Timestamp.UTC()
		s.TotalRuns++
		s.TotalLeadsAssigned += res.TotalAssigned
		s.LastRun = &at
		next := at.Add(t.interval)
		s.NextRun = &next
		if !res.Success {
			s.FailedRuns++
		}
		for _, r := range res.Results {
			if r.Status == StatusError {
				s.Errors = append(s.Errors, RunError{At: at, Source: r.Source, Message: r.Error})
			}
		}
		if n := len(s.Errors); n > maxRecordedErrors {
			s.Errors = s.Errors[n-maxRecordedErrors:]
		}
		return nil
	})
	return err
}

// RecordFailure stores a pass-level failure that produced no result.
func (t *Tracker) RecordFailure(ctx context.Context, err error) error {
	_, uerr := t.store.Update(ctx, func(s *SystemStatus) error {
		at := t.now().UTC()
		s.TotalRuns++
		s.FailedRuns++
		s.LastRun = &at
		s.Errors = append(s.Errors, RunError{At: at, Message: err.Error()})
		if n := len(s.Errors); n > maxRecordedErrors {
			s.Errors = s.Errors[n-maxRecordedErrors:]
		}
		return nil
	})
	return uerr
}

// ClearErrors drops the recorded errors.
func (t *Tracker) ClearErrors(ctx context.Context) error {
	_, err := t.store.Update(ctx, func(s *SystemStatus) error {
		s.Errors = nil
		return nil
	})
	return err
}

// Status returns the current status.
func (t *Tracker) Status(ctx context.Context) (SystemStatus, error) {
	return t.store.Load(ctx)
}

// Health bands.
const (
	HealthHealthy  = "Healthy"
	HealthWarning  = "Warning"
	HealthCritical = "Critical"
)

// Health is the scored view of SystemStatus.
type Health struct {
	Score  int      `json:"health_score"`
	Status string   `json:"health_status"`
	Issues []string `json:"issues"`
}

// Health scores status: 100 minus 30 when stopped, 20 when the last pass is
// missing or older than two intervals, 10 when errors are recorded.
func (t *Tracker) Health(status SystemStatus) Health {
	h := Health{Score: 100, Issues: make([]string, 0)}
	if !status.IsRunning {
		h.Score -= 30
		h.Issues = append(h.Issues, "distributor is not running")
	}
	if status.LastRun == nil || t.now().Sub(*status.LastRun) > 2*t.interval {
		h.Score -= 20
		h.Issues = append(h.Issues, "no recent run")
	}
	if len(status.Errors) > 0 {
		h.Score -= 10
		h.Issues = append(h.Issues, "errors recorded")
	}

	switch {
	case h.Score >= 80:
		h.Status = HealthHealthy
	case h.Score >= 50:
		h.Status = HealthWarning
	default:
		h.Status = HealthCritical
	}
	return h
}

// Statistics is returned by the system statistics endpoint.
type Statistics struct {
	Totals
	TotalRuns          int            `json:"total_runs"`
	TotalLeadsAssigned int            `json:"total_leads_assigned"`
	AvgLeadsPerRun     float64        `json:"avg_leads_per_run"`
	SuccessRate        float64        `json:"success_rate"`
	UptimeSeconds      int64          `json:"uptime_seconds"`
	SourceDistribution map[string]int `json:"source_distribution"`
}

// Statistics derives run statistics from status. Totals and distribution
// come from the database.
func (t *Tracker) Statistics(status SystemStatus, totals Totals, dist map[string]int) Statistics {
	st := Statistics{
		Totals:             totals,
		TotalRuns:          status.TotalRuns,
		TotalLeadsAssigned: status.TotalLeadsAssigned,
		SuccessRate:        100,
		SourceDistribution: dist,
	}
	if status.TotalRuns > 0 {
		st.AvgLeadsPerRun = float64(status.TotalLeadsAssigned) / float64(status.TotalRuns)
		st.SuccessRate = 100 - float64(status.FailedRuns)/float64(status.TotalRuns)*100
	}
	if status.StartedAt != nil {
		st.UptimeSeconds = int64(t.now().Sub(*status.StartedAt).Seconds())
	}
	return st
}

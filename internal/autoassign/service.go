package autoassign

import (
	"context"
	"strings"
	"time"

	"leadcrm_backend/internal/events"
	"leadcrm_backend/platform/apperr"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"
)

var errDuplicateAgent = apperr.Conflict("agent listed more than once for source")

// Store is the persistence surface the service needs.
type Store interface {
	AssignNextLead(ctx context.Context, source string) (Assignment, Outcome, error)
	ListConfiguredSources(ctx context.Context) ([]string, error)
	ListAgentLoads(ctx context.Context) ([]AgentLoad, error)
	ListSourceStats(ctx context.Context) ([]SourceStats, error)
	Summary(ctx context.Context, todayStart, weekStart time.Time) (Summary, error)
	ListConfigs(ctx context.Context) ([]Config, error)
	ReplaceSourceConfig(ctx context.Context, source string, entries []ConfigEntry, resetCounts bool) error
	ResetCounts(ctx context.Context, ids []int64) (int64, error)
	ListHistory(ctx context.Context, source string, limit, offset int) ([]HistoryRecord, error)
	Totals(ctx context.Context) (Totals, error)
	SourceDistribution(ctx context.Context, since time.Time) (map[string]int, error)
	PurgeHistory(ctx context.Context, retentionDays int) (int, error)
}

// Options tune the service.
type Options struct {
	BatchSize     int
	RetentionDays int
	Location      *time.Location
}

// Service runs distributor passes and serves assignment statistics.
type Service struct {
	store   Store
	tracker *Tracker
	bus     events.Bus
	metrics *metrics.Metrics
	log     *logger.Logger
	opts    Options
	now     func() time.Time
}

// NewService wires the distributor. bus and m may be nil.
func NewService(store Store, tracker *Tracker, bus events.Bus, m *metrics.Metrics, log *logger.Logger, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 90
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{store: store, tracker: tracker, bus: bus, metrics: m, log: log, opts: opts, now: time.Now}
}

// Tracker exposes the run tracker for the scheduler and status routes.
func (s *Service) Tracker() *Tracker { return s.tracker }

// RunPass assigns unassigned leads for every configured source, or only
// for source when it is non-empty. A failure to list sources is returned
// as an error; per-source failures are reported in the result and clear
// Success.
func (s *Service) RunPass(ctx context.Context, trigger, source string) (PassResult, error) {
	start := s.now()
	log := s.log.WithContext(ctx)

	sources := []string{strings.TrimSpace(source)}
	if sources[0] == "" {
		var err error
		sources, err = s.store.ListConfiguredSources(ctx)
		if err != nil {
			if s.tracker != nil {
				_ = s.tracker.RecordFailure(ctx, err)
			}
			s.observePass(trigger, start, false)
			log.AssignmentPass(trigger, 0, 0, time.Since(start), err)
			return PassResult{}, apperr.Unavailable("auto-assign unavailable", err)
		}
	}

	res := PassResult{Success: true, Trigger: trigger, Results: make([]SourceResult, 0, len(sources))}
	for _, src := range sources {
		sr := s.assignSource(ctx, trigger, src)
		if sr.Status == StatusError {
			res.Success = false
		}
		res.TotalAssigned += sr.Assigned
		res.Results = append(res.Results, sr)
	}
	res.Timestamp = s.now().UTC()

	if s.tracker != nil {
		if err := s.tracker.RecordPass(ctx, res); err != nil {
			log.Warn("failed to record auto-assign pass", "error", err)
		}
	}
	s.observePass(trigger, start, res.Success)

	var passErr error
	if !res.Success {
		passErr = apperr.Internal("one or more sources failed", nil)
	}
	log.AssignmentPass(trigger, res.TotalAssigned, len(sources), time.Since(start), passErr)
	return res, nil
}

func (s *Service) assignSource(ctx context.Context, trigger, source string) SourceResult {
	sr := SourceResult{Source: source, Status: StatusNoUnassigned, Assignments: make([]Assignment, 0)}

	for attempts := 0; attempts < s.opts.BatchSize; attempts++ {
		a, outcome, err := s.store.AssignNextLead(ctx, source)
		if err != nil {
			sr.Status = StatusError
			sr.Error = err.Error()
			s.log.WithContext(ctx).Error("auto-assign failed", "source", source, "error", err)
			return sr
		}

		switch outcome {
		case OutcomeAssigned:
			sr.Assigned++
			sr.Assignments = append(sr.Assignments, a)
			sr.Status = StatusAssigned
			s.publishAssigned(ctx, trigger, a)
			if s.metrics != nil {
				s.metrics.LeadsAssigned.WithLabelValues(source).Inc()
			}
		case OutcomeRaced:
			continue
		case OutcomeNoAgent:
			if sr.Assigned == 0 {
				sr.Status = StatusNoEligibleAgent
			}
			if s.metrics != nil {
				s.metrics.NoEligibleAgent.WithLabelValues(source).Inc()
			}
			return sr
		default:
			return sr
		}
	}
	return sr
}

func (s *Service) publishAssigned(ctx context.Context, trigger string, a Assignment) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.LeadAutoAssigned{
		BaseEvent:   events.NewBaseEvent(),
		LeadUID:     a.LeadUID,
		Source:      a.Source,
		AgentID:     a.Agent.ID,
		AgentName:   a.Agent.Name,
		AgentEmail:  a.Agent.Email,
		CountBefore: a.CountBefore,
		CountAfter:  a.CountAfter,
		Trigger:     trigger,
	})
}

func (s *Service) observePass(trigger string, start time.Time, ok bool) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	s.metrics.AssignmentPasses.WithLabelValues(trigger, outcome).Inc()
	s.metrics.PassDuration.Observe(time.Since(start).Seconds())
}

// AgentLoads returns per-agent load and trailing-window counts.
func (s *Service) AgentLoads(ctx context.Context) ([]AgentLoad, error) {
	return s.store.ListAgentLoads(ctx)
}

// SourceStats returns per-source trailing-window counts.
func (s *Service) SourceStats(ctx context.Context) ([]SourceStats, error) {
	return s.store.ListSourceStats(ctx)
}

// Summary counts assignments for today and the current ISO week in the
// configured timezone.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	today, week := periodStarts(s.now(), s.opts.Location)
	return s.store.Summary(ctx, today, week)
}

// periodStarts returns local midnight today and on the Monday of this week.
func periodStarts(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	offset := (int(today.Weekday()) + 6) % 7
	return today, today.AddDate(0, 0, -offset)
}

// Configs lists every source/agent binding.
func (s *Service) Configs(ctx context.Context) ([]Config, error) {
	return s.store.ListConfigs(ctx)
}

// ReplaceConfig replaces the agents configured for source.
func (s *Service) ReplaceConfig(ctx context.Context, source string, entries []ConfigEntry, resetCounts bool) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return apperr.Validation("source is required")
	}
	seen := make(map[int64]bool, len(entries))
	for _, e := range entries {
		if seen[e.CreID] {
			return errDuplicateAgent
		}
		seen[e.CreID] = true
	}
	return s.store.ReplaceSourceConfig(ctx, source, entries, resetCounts)
}

// ResetCounts zeroes agent counters.
func (s *Service) ResetCounts(ctx context.Context, ids []int64) (int64, error) {
	return s.store.ResetCounts(ctx, ids)
}

// History pages assignment history.
func (s *Service) History(ctx context.Context, source string, limit, offset int) ([]HistoryRecord, error) {
	limit, offset = clampPage(limit, offset)
	return s.store.ListHistory(ctx, strings.TrimSpace(source), limit, offset)
}

// clampPage bounds history paging: limit outside 1..500 becomes 100 and a
// negative offset becomes 0.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Statistics combines run status with database totals and the 30-day
// source distribution.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	status, err := s.tracker.Status(ctx)
	if err != nil {
		return Statistics{}, err
	}
	totals, err := s.store.Totals(ctx)
	if err != nil {
		return Statistics{}, err
	}
	dist, err := s.store.SourceDistribution(ctx, s.now().AddDate(0, 0, -30))
	if err != nil {
		return Statistics{}, err
	}
	return s.tracker.Statistics(status, totals, dist), nil
}

// Health scores the current run status.
func (s *Service) Health(ctx context.Context) (Health, error) {
	status, err := s.tracker.Status(ctx)
	if err != nil {
		return Health{}, err
	}
	return s.tracker.Health(status), nil
}

// PurgeHistory applies the retention window.
func (s *Service) PurgeHistory(ctx context.Context) (int, error) {
	removed, err := s.store.PurgeHistory(ctx, s.opts.RetentionDays)
	if err != nil {
		return 0, err
	}
	s.log.WithContext(ctx).Info("auto-assign history purged", "removed", removed, "retentionDays", s.opts.RetentionDays)
	return removed, nil
}

var _ Store = (*Repository)(nil)

// Package exports renders distributor reports as CSV or XLSX downloads and
// produces the daily report that is archived to object storage and mailed.
package exports

import (
	"context"
	"sort"
	"strconv"
	"time"

	"leadcrm_backend/internal/autoassign"
	"leadcrm_backend/platform/apperr"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Report names accepted by Build.
const (
	ReportHistory        = "history"
	ReportConfigs        = "configs"
	ReportCREPerformance = "cre_performance"
	ReportSystem         = "system_report"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	historyPageSize = 500
	maxHistoryRows  = 50000
)

// Table is a rendered report before encoding.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// Source is the distributor surface reports read from.
type Source interface {
	History(ctx context.Context, source string, limit, offset int) ([]autoassign.HistoryRecord, error)
	Configs(ctx context.Context) ([]autoassign.Config, error)
	AgentLoads(ctx context.Context) ([]autoassign.AgentLoad, error)
	Summary(ctx context.Context) (autoassign.Summary, error)
	Statistics(ctx context.Context) (autoassign.Statistics, error)
	Health(ctx context.Context) (autoassign.Health, error)
}

// Builder turns distributor data into tables.
type Builder struct {
	src Source
	loc *time.Location
	now func() time.Time
}

// NewBuilder creates a report builder that formats times in loc.
func NewBuilder(src Source, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{src: src, loc: loc, now: time.Now}
}

// Build renders the named report.
func (b *Builder) Build(ctx context.Context, report string) (Table, error) {
	switch report {
	case ReportHistory:
		return b.history(ctx)
	case ReportConfigs:
		return b.configs(ctx)
	case ReportCREPerformance:
		return b.crePerformance(ctx)
	case ReportSystem:
		return b.system(ctx)
	default:
		return Table{}, apperr.NotFound("unknown report " + strconv.Quote(report))
	}
}

func (b *Builder) history(ctx context.Context) (Table, error) {
	t := Table{
		Name:    ReportHistory,
		Headers: []string{"ID", "Lead UID", "Source", "CRE ID", "CRE Name", "Leads Before", "Leads After", "Method", "Assigned At"},
	}
	for offset := 0; offset < maxHistoryRows; offset += historyPageSize {
		page, err := b.src.History(ctx, "", historyPageSize, offset)
		if err != nil {
			return Table{}, eris.Wrap(err, "load assignment history")
		}
		for _, h := range page {
			t.Rows = append(t.Rows, []string{
				strconv.FormatInt(h.ID, 10),
				h.LeadUID,
				h.Source,
				strconv.FormatInt(h.CreID, 10),
				h.CreName,
				strconv.Itoa(h.CountBefore),
				strconv.Itoa(h.CountAfter),
				h.Method,
				b.formatTime(h.CreatedAt),
			})
		}
		if len(page) < historyPageSize {
			break
		}
	}
	return t, nil
}

func (b *Builder) configs(ctx context.Context) (Table, error) {
	cfgs, err := b.src.Configs(ctx)
	if err != nil {
		return Table{}, eris.Wrap(err, "load configs")
	}
	t := Table{
		Name:    ReportConfigs,
		Headers: []string{"ID", "Source", "CRE ID", "CRE Name", "Active", "Priority", "Created At", "Updated At"},
	}
	for _, c := range cfgs {
		t.Rows = append(t.Rows, []string{
			strconv.FormatInt(c.ID, 10),
			c.Source,
			strconv.FormatInt(c.CreID, 10),
			c.CreName,
			yesNo(c.IsActive),
			strconv.Itoa(c.Priority),
			b.formatTime(c.CreatedAt),
			b.formatTime(c.UpdatedAt),
		})
	}
	return t, nil
}

func (b *Builder) crePerformance(ctx context.Context) (Table, error) {
	loads, err := b.src.AgentLoads(ctx)
	if err != nil {
		return Table{}, eris.Wrap(err, "load agent stats")
	}
	t := Table{
		Name:    ReportCREPerformance,
		Headers: []string{"CRE ID", "CRE Name", "Active", "Total Auto Assigned", "Last 24h", "Last 7d", "Last 30d", "Last Assigned At"},
	}
	for _, l := range loads {
		last := ""
		if l.LastAssignedAt != nil {
			last = b.formatTime(*l.LastAssignedAt)
		}
		t.Rows = append(t.Rows, []string{
			strconv.FormatInt(l.CreID, 10),
			l.CreName,
			yesNo(l.IsActive),
			strconv.Itoa(l.AutoAssignCount),
			strconv.Itoa(l.Assigned24h),
			strconv.Itoa(l.Assigned7d),
			strconv.Itoa(l.Assigned30d),
			last,
		})
	}
	return t, nil
}

// system is a two-column metric/value sheet. Its three inputs load
// concurrently.
func (b *Builder) system(ctx context.Context) (Table, error) {
	var (
		summary autoassign.Summary
		stats   autoassign.Statistics
		health  autoassign.Health
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		summary, err = b.src.Summary(gctx)
		return eris.Wrap(err, "load summary")
	})
	g.Go(func() (err error) {
		stats, err = b.src.Statistics(gctx)
		return eris.Wrap(err, "load statistics")
	})
	g.Go(func() (err error) {
		health, err = b.src.Health(gctx)
		return eris.Wrap(err, "load health")
	})
	if err := g.Wait(); err != nil {
		return Table{}, err
	}

	t := Table{Name: ReportSystem, Headers: []string{"Metric", "Value"}}
	add := func(k, v string) { t.Rows = append(t.Rows, []string{k, v}) }
	add("Generated At", b.formatTime(b.now()))
	add("Health Status", health.Status)
	add("Health Score", strconv.Itoa(health.Score))
	add("Total Runs", strconv.Itoa(stats.TotalRuns))
	add("Success Rate", strconv.FormatFloat(stats.SuccessRate, 'f', 2, 64))
	add("Total Leads Assigned", strconv.Itoa(stats.TotalLeadsAssigned))
	add("Average Leads Per Run", strconv.FormatFloat(stats.AvgLeadsPerRun, 'f', 2, 64))
	add("Assigned Today", strconv.Itoa(summary.AssignedToday))
	add("Assigned This Week", strconv.Itoa(summary.AssignedThisWeek))
	add("Unassigned Leads", strconv.Itoa(summary.UnassignedLeads))
	add("Active Sources", strconv.Itoa(summary.ActiveSources))
	add("Active CREs", strconv.Itoa(summary.ActiveAgents))
	add("Total Configs", strconv.Itoa(stats.TotalConfigs))

	sources := make([]string, 0, len(stats.SourceDistribution))
	for s := range stats.SourceDistribution {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		add("Assigned 30d: "+s, strconv.Itoa(stats.SourceDistribution[s]))
	}
	for _, issue := range health.Issues {
		add("Issue", issue)
	}
	return t, nil
}

func (b *Builder) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(b.loc).Format(timestampLayout)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

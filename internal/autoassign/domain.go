// Package autoassign distributes unassigned leads to CRE agents. Each lead
// goes to the least-loaded active agent configured for its source.
package autoassign

import "time"

// MethodFairDistribution is recorded on every history row written by the
// distributor.
const MethodFairDistribution = "fair_distribution"

// Pass triggers.
const (
	TriggerHTTP  = "http"
	TriggerCron  = "cron"
	TriggerAsynq = "asynq"
)

// Agent is a CRE eligible to receive leads.
type Agent struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email,omitempty"`
	AutoAssignCount int    `json:"auto_assign_count"`
}

// Config binds an agent to a lead source.
type Config struct {
	ID        int64     `json:"id"`
	Source    string    `json:"source"`
	CreID     int64     `json:"cre_id"`
	CreName   string    `json:"cre_name"`
	IsActive  bool      `json:"is_active"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConfigEntry is one agent in a replacement config set.
type ConfigEntry struct {
	CreID    int64 `json:"cre_id" validate:"required,gt=0"`
	Priority int   `json:"priority" validate:"gte=1"`
	IsActive *bool `json:"is_active,omitempty"`
}

// HistoryRecord is one append-only assignment audit row.
type HistoryRecord struct {
	ID          int64     `json:"id"`
	LeadUID     string    `json:"lead_uid"`
	Source      string    `json:"source"`
	CreID       int64     `json:"assigned_cre_id"`
	CreName     string    `json:"assigned_cre_name"`
	CountBefore int       `json:"cre_total_leads_before"`
	CountAfter  int       `json:"cre_total_leads_after"`
	Method      string    `json:"assignment_method"`
	CreatedAt   time.Time `json:"created_at"`
}

// Assignment describes one lead bound to an agent in a pass.
type Assignment struct {
	LeadUID     string `json:"lead_uid"`
	Source      string `json:"source"`
	Agent       Agent  `json:"agent"`
	CountBefore int    `json:"count_before"`
	CountAfter  int    `json:"count_after"`
}

// Outcome is the result of one attempt to assign a single lead.
type Outcome int

const (
	OutcomeAssigned Outcome = iota
	OutcomeNoLeads
	OutcomeNoAgent
	// OutcomeRaced means another pass claimed the lead first.
	OutcomeRaced
)

// SourceStatus summarises what a pass did for one source.
type SourceStatus string

const (
	StatusAssigned        SourceStatus = "assigned"
	StatusNoUnassigned    SourceStatus = "no_unassigned_leads"
	StatusNoEligibleAgent SourceStatus = "no_eligible_agent"
	StatusError           SourceStatus = "error"
)

// SourceResult is the per-source part of a pass result.
type SourceResult struct {
	Source      string       `json:"source"`
	Status      SourceStatus `json:"status"`
	Assigned    int          `json:"assigned"`
	Assignments []Assignment `json:"assignments,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// PassResult is returned by one distributor pass.
type PassResult struct {
	Success       bool           `json:"success"`
	Trigger       string         `json:"trigger"`
	TotalAssigned int            `json:"total_assigned"`
	Results       []SourceResult `json:"results"`
	Timestamp     time.Time      `json:"timestamp"`
}

// AgentLoad is a row of the auto_assign_cre_stats view.
type AgentLoad struct {
	CreID           int64      `json:"cre_id"`
	CreName         string     `json:"cre_name"`
	IsActive        bool       `json:"is_active"`
	AutoAssignCount int        `json:"auto_assign_count"`
	Assigned24h     int        `json:"assigned_24h"`
	Assigned7d      int        `json:"assigned_7d"`
	Assigned30d     int        `json:"assigned_30d"`
	LastAssignedAt  *time.Time `json:"last_assigned_at"`
}

// SourceStats is a row of the auto_assign_source_stats view.
type SourceStats struct {
	Source          string     `json:"source"`
	ActiveAgents    int        `json:"active_agents"`
	Assigned24h     int        `json:"assigned_24h"`
	Assigned7d      int        `json:"assigned_7d"`
	Assigned30d     int        `json:"assigned_30d"`
	LastAssignedAt  *time.Time `json:"last_assigned_at"`
	UnassignedLeads int        `json:"unassigned_leads"`
}

// Summary aggregates assignment activity.
type Summary struct {
	AssignedToday    int `json:"assigned_today"`
	AssignedThisWeek int `json:"assigned_this_week"`
	ActiveSources    int `json:"active_sources"`
	ActiveAgents     int `json:"active_agents"`
	UnassignedLeads  int `json:"unassigned_leads"`
}

// Totals backs the statistics endpoint.
type Totals struct {
	TotalConfigs  int `json:"total_configs"`
	TotalCREs     int `json:"total_cres"`
	ActiveSources int `json:"active_sources"`
}

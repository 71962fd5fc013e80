// Package approval implements the branch-head approval workflow that gates
// a lead's terminal "Won" status.
package approval

import (
	"strings"
	"time"

	"leadcrm_backend/platform/apperr"
)

// SourceTable tags which table a lead lives in.
type SourceTable string

const (
	SourcePSFollowup SourceTable = "ps_followup"
	SourceActivity   SourceTable = "activity_leads"
	SourceWalkin     SourceTable = "walkin_table"
	SourceLeadMaster SourceTable = "lead_master"
)

// tableSpec maps the canonical lead onto one physical table. Names are
// fixed here and never come from requests.
type tableSpec struct {
	table     string
	idCol     string
	branchCol string
	agentCol  string
	statusCol string
	phoneCol  string
}

var tableSpecs = map[SourceTable]tableSpec{
	SourcePSFollowup: {"ps_followup_master", "lead_uid", "ps_branch", "ps_name", "lead_status", "customer_mobile_number"},
	SourceActivity:   {"activity_leads", "activity_uid", "location", "ps_name", "lead_status", "customer_phone_number"},
	SourceWalkin:     {"walkin_table", "uid", "branch", "ps_assigned", "status", "mobile_number"},
	SourceLeadMaster: {"lead_master", "uid", "branch", "ps_name", "lead_status", "customer_mobile_number"},
}

// unionOrder fixes the order tables are read in list queries.
var unionOrder = []SourceTable{SourcePSFollowup, SourceActivity, SourceWalkin, SourceLeadMaster}

// ParseSourceTable accepts the tag or the physical table name.
func ParseSourceTable(s string) (SourceTable, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for tag, spec := range tableSpecs {
		if s == string(tag) || s == spec.table {
			return tag, nil
		}
	}
	return "", apperr.Validation("unknown source_table").WithDetails(map[string]string{"source_table": s})
}

func (t SourceTable) spec() tableSpec { return tableSpecs[t] }

// ApprovalStatus is the approval state of a lead.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "Pending"
	StatusWaiting  ApprovalStatus = "Waiting for Approval"
	StatusApproved ApprovalStatus = "Approved"
	StatusRejected ApprovalStatus = "Rejected"
)

var transitions = map[ApprovalStatus][]ApprovalStatus{
	StatusPending:  {StatusWaiting},
	StatusRejected: {StatusWaiting},
	StatusWaiting:  {StatusApproved, StatusRejected},
}

// CanTransition reports whether to is reachable from s in one step.
func (s ApprovalStatus) CanTransition(to ApprovalStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// FollowUpLocked reports whether the follow-up date may not be edited.
func (s ApprovalStatus) FollowUpLocked() bool {
	return s == StatusWaiting || s == StatusApproved
}

// Values written alongside approval transitions.
const (
	FinalStatusWon      = "Won"
	FinalStatusReopened = "pending"
	LeadStatusRejected  = "rejected by BH"
)

// submittable lead statuses, keyed by lower-case input.
var submittable = map[string]string{
	"booked":   "Booked",
	"retailed": "Retailed",
}

// Lead is the canonical shape shared by every source table.
type Lead struct {
	SourceTable         SourceTable    `json:"source_table"`
	ID                  string         `json:"lead_id"`
	CustomerName        string         `json:"customer_name"`
	CustomerMobile      string         `json:"customer_mobile_number"`
	Source              string         `json:"source"`
	Branch              string         `json:"branch"`
	Agent               string         `json:"agent"`
	LeadStatus          string         `json:"lead_status"`
	FinalStatus         string         `json:"final_status"`
	ApprovalStatus      ApprovalStatus `json:"approval_status"`
	OrderID             *string        `json:"order_id"`
	FollowUpDate        *time.Time     `json:"follow_up_date"`
	ApprovalRequestedAt *time.Time     `json:"approval_requested_at"`
	ApprovedBy          *string        `json:"approved_by"`
	ApprovedAt          *time.Time     `json:"approved_at"`
	ApprovalRemarks     *string        `json:"approval_remarks"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// Actor is the caller of a workflow operation.
type Actor struct {
	ID     string
	Name   string
	Branch string
	Role   string
	Admin  bool
}

// SameBranch compares branches ignoring case and surrounding space.
func SameBranch(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

// Audit actions and outcomes.
const (
	ActionSubmit  = "submit"
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionView    = "view"

	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
)

// AuditEntry is one approval_audit_log row.
type AuditEntry struct {
	Actor        Actor
	Action       string
	Outcome      string
	SourceTable  SourceTable
	LeadID       string
	FromStatus   string
	ToStatus     string
	Remarks      string
	ErrorMessage string
}

// transitionKind selects the SET clause of an approval update.
type transitionKind int

const (
	kindSubmit transitionKind = iota
	kindApprove
	kindReject
)

// Transition carries the values written by one approval update.
type Transition struct {
	kind       transitionKind
	LeadStatus string
	OrderID    string
	Reviewer   string
	Remarks    string
}

func (t Transition) target() ApprovalStatus {
	switch t.kind {
	case kindApprove:
		return StatusApproved
	case kindReject:
		return StatusRejected
	default:
		return StatusWaiting
	}
}

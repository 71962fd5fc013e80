package events

// =============================================================================
// Distribution
// =============================================================================

// LeadAutoAssigned is published after a lead is bound to a CRE and the
// transaction has committed.
type LeadAutoAssigned struct {
	BaseEvent
	LeadUID     string `json:"leadUid"`
	Source      string `json:"source"`
	AgentID     int64  `json:"agentId"`
	AgentName   string `json:"agentName"`
	AgentEmail  string `json:"agentEmail,omitempty"`
	CountBefore int    `json:"countBefore"`
	CountAfter  int    `json:"countAfter"`
	Trigger     string `json:"trigger"`
}

func (e LeadAutoAssigned) EventName() string { return "autoassign.lead.assigned" }

// =============================================================================
// Approval workflow
// =============================================================================

// LeadSubmittedForApproval is published when a PS moves a lead to
// "Waiting for Approval".
type LeadSubmittedForApproval struct {
	BaseEvent
	SourceTable string `json:"sourceTable"`
	LeadID      string `json:"leadId"`
	OrderID     string `json:"orderId"`
	Branch      string `json:"branch"`
	SubmittedBy string `json:"submittedBy"`
}

func (e LeadSubmittedForApproval) EventName() string { return "approval.lead.submitted" }

// LeadApproved is published after a branch head approves a lead.
type LeadApproved struct {
	BaseEvent
	SourceTable string `json:"sourceTable"`
	LeadID      string `json:"leadId"`
	Branch      string `json:"branch"`
	ApprovedBy  string `json:"approvedBy"`
}

func (e LeadApproved) EventName() string { return "approval.lead.approved" }

// LeadRejected is published after a branch head rejects a lead.
type LeadRejected struct {
	BaseEvent
	SourceTable string `json:"sourceTable"`
	LeadID      string `json:"leadId"`
	Branch      string `json:"branch"`
	RejectedBy  string `json:"rejectedBy"`
	Remarks     string `json:"remarks"`
}

func (e LeadRejected) EventName() string { return "approval.lead.rejected" }

// ApprovalAccessDenied is published when a branch head touches a lead
// outside their branch.
type ApprovalAccessDenied struct {
	BaseEvent
	Action      string `json:"action"`
	SourceTable string `json:"sourceTable"`
	LeadID      string `json:"leadId"`
	ActorID     string `json:"actorId"`
	ActorBranch string `json:"actorBranch"`
	LeadBranch  string `json:"leadBranch"`
}

func (e ApprovalAccessDenied) EventName() string { return "approval.access.denied" }

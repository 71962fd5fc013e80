package approval

import (
	"context"
	"errors"
	"strings"
	"time"

	"leadcrm_backend/internal/events"
	"leadcrm_backend/platform/apperr"
	"leadcrm_backend/platform/db"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"
	"leadcrm_backend/platform/sanitize"
	"leadcrm_backend/platform/validator"
)

// Store is the persistence surface of the workflow.
type Store interface {
	InTx(ctx context.Context, fn func(q db.Querier) error) error
	Pool() db.Querier
	GetLead(ctx context.Context, q db.Querier, st SourceTable, id string, forUpdate bool) (Lead, error)
	ApplyTransition(ctx context.Context, q db.Querier, st SourceTable, id string, t Transition) (bool, error)
	MirrorToLeadMaster(ctx context.Context, q db.Querier, id string, t Transition) error
	SetFollowUpDate(ctx context.Context, q db.Querier, st SourceTable, id string, date time.Time) (bool, error)
	InsertAudit(ctx context.Context, q db.Querier, e AuditEntry) error
	ListWaiting(ctx context.Context, branch string) ([]Lead, error)
	ListRejected(ctx context.Context, agent string) ([]Lead, error)
}

// denial is returned from inside a transaction so the caller can roll
// back before auditing the attempt.
type denial struct {
	lead   Lead
	reason string
}

func (d *denial) Error() string { return d.reason }

// Service runs the approval state machine.
type Service struct {
	store   Store
	bus     events.Bus
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewService creates the workflow service. bus and m may be nil.
func NewService(store Store, bus events.Bus, m *metrics.Metrics, log *logger.Logger) *Service {
	return &Service{store: store, bus: bus, metrics: m, log: log}
}

// SubmitInput is the agent's request to mark a lead won.
type SubmitInput struct {
	SourceTable SourceTable
	LeadID      string
	LeadStatus  string
	OrderID     string
}

// Submit moves a Booked or Retailed lead with a valid order id to
// Waiting for Approval. Only the owning agent (or an admin) may submit.
func (s *Service) Submit(ctx context.Context, actor Actor, in SubmitInput) (Lead, error) {
	status, ok := submittable[strings.ToLower(strings.TrimSpace(in.LeadStatus))]
	if !ok {
		return Lead{}, apperr.Validation("lead_status must be Booked or Retailed")
	}
	orderID := strings.TrimSpace(in.OrderID)
	if !validator.IsOrderID(orderID) {
		return Lead{}, apperr.Validation("order_id must be exactly 8 digits")
	}

	t := Transition{kind: kindSubmit, LeadStatus: status, OrderID: orderID}
	lead, err := s.transition(ctx, actor, ActionSubmit, in.SourceTable, in.LeadID, t, func(l Lead) string {
		if actor.Admin || strings.EqualFold(strings.TrimSpace(l.Agent), strings.TrimSpace(actor.Name)) {
			return ""
		}
		return "lead belongs to another agent"
	})
	if err != nil {
		return Lead{}, err
	}

	s.publish(ctx, events.LeadSubmittedForApproval{
		BaseEvent:   events.NewBaseEvent(),
		SourceTable: string(in.SourceTable),
		LeadID:      lead.ID,
		OrderID:     orderID,
		Branch:      lead.Branch,
		SubmittedBy: actor.Name,
	})
	return lead, nil
}

// DecisionInput identifies the lead a branch head reviews.
type DecisionInput struct {
	SourceTable SourceTable
	LeadID      string
	Remarks     string
}

// Approve marks a waiting lead Approved and Won.
func (s *Service) Approve(ctx context.Context, actor Actor, in DecisionInput) (Lead, error) {
	t := Transition{kind: kindApprove, Reviewer: reviewerName(actor), Remarks: sanitize.Remarks(in.Remarks)}
	lead, err := s.transition(ctx, actor, ActionApprove, in.SourceTable, in.LeadID, t, s.branchCheck(actor))
	if err != nil {
		return Lead{}, err
	}

	s.publish(ctx, events.LeadApproved{
		BaseEvent:   events.NewBaseEvent(),
		SourceTable: string(in.SourceTable),
		LeadID:      lead.ID,
		Branch:      lead.Branch,
		ApprovedBy:  t.Reviewer,
	})
	return lead, nil
}

// Reject sends a waiting lead back to the agent for follow-up. Remarks
// are required.
func (s *Service) Reject(ctx context.Context, actor Actor, in DecisionInput) (Lead, error) {
	remarks := sanitize.Remarks(in.Remarks)
	if remarks == "" {
		return Lead{}, apperr.Validation("remarks are required to reject a lead")
	}

	t := Transition{kind: kindReject, Reviewer: reviewerName(actor), Remarks: remarks}
	lead, err := s.transition(ctx, actor, ActionReject, in.SourceTable, in.LeadID, t, s.branchCheck(actor))
	if err != nil {
		return Lead{}, err
	}

	s.publish(ctx, events.LeadRejected{
		BaseEvent:   events.NewBaseEvent(),
		SourceTable: string(in.SourceTable),
		LeadID:      lead.ID,
		Branch:      lead.Branch,
		RejectedBy:  t.Reviewer,
		Remarks:     remarks,
	})
	return lead, nil
}

func reviewerName(a Actor) string {
	if strings.TrimSpace(a.Name) != "" {
		return a.Name
	}
	return a.ID
}

func (s *Service) branchCheck(actor Actor) func(Lead) string {
	return func(l Lead) string {
		if actor.Admin || SameBranch(actor.Branch, l.Branch) {
			return ""
		}
		return "lead belongs to another branch"
	}
}

// transition locks the lead, checks access and state, applies t with a
// compare-and-set update, mirrors it to lead_master and audits it, all in
// one transaction. Access denials are audited after the rollback.
func (s *Service) transition(ctx context.Context, actor Actor, action string, st SourceTable, id string, t Transition, authorize func(Lead) string) (Lead, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Lead{}, apperr.Validation("lead_id is required")
	}

	var updated Lead
	err := s.store.InTx(ctx, func(q db.Querier) error {
		lead, err := s.store.GetLead(ctx, q, st, id, true)
		if err != nil {
			return err
		}
		if reason := authorize(lead); reason != "" {
			return &denial{lead: lead, reason: reason}
		}
		if !lead.ApprovalStatus.CanTransition(t.target()) {
			return apperr.Conflict("lead is " + string(lead.ApprovalStatus)).
				WithDetails(map[string]string{"approval_status": string(lead.ApprovalStatus)})
		}

		applied, err := s.store.ApplyTransition(ctx, q, st, id, t)
		if err != nil {
			return err
		}
		if !applied {
			return apperr.Conflict("lead was changed by another reviewer")
		}
		if st != SourceLeadMaster {
			if err := s.store.MirrorToLeadMaster(ctx, q, id, t); err != nil {
				return err
			}
		}

		if err := s.store.InsertAudit(ctx, q, AuditEntry{
			Actor:       actor,
			Action:      action,
			Outcome:     OutcomeSuccess,
			SourceTable: st,
			LeadID:      id,
			FromStatus:  string(lead.ApprovalStatus),
			ToStatus:    string(t.target()),
			Remarks:     t.Remarks,
		}); err != nil {
			return err
		}

		updated, err = s.store.GetLead(ctx, q, st, id, false)
		return err
	})

	var d *denial
	if errors.As(err, &d) {
		s.deny(ctx, actor, action, st, d)
		return Lead{}, apperr.Forbidden(d.reason)
	}
	s.observe(ctx, actor, action, st, id, err)
	if err != nil {
		return Lead{}, err
	}
	return updated, nil
}

// DenyRole audits a caller without a reviewer role reaching a branch-head
// route. table and leadID are whatever the request carried.
func (s *Service) DenyRole(ctx context.Context, actor Actor, action, table, leadID string) {
	s.deny(ctx, actor, action, SourceTable(table), &denial{
		lead:   Lead{ID: leadID},
		reason: "branch head role required",
	})
}

func (s *Service) deny(ctx context.Context, actor Actor, action string, st SourceTable, d *denial) {
	if err := s.store.InsertAudit(ctx, s.store.Pool(), AuditEntry{
		Actor:        actor,
		Action:       action,
		Outcome:      OutcomeDenied,
		SourceTable:  st,
		LeadID:       d.lead.ID,
		FromStatus:   string(d.lead.ApprovalStatus),
		ErrorMessage: d.reason,
	}); err != nil {
		s.log.WithContext(ctx).Error("failed to audit denied approval action", "error", err)
	}
	s.observe(ctx, actor, action, st, d.lead.ID, d)
	s.publish(ctx, events.ApprovalAccessDenied{
		BaseEvent:   events.NewBaseEvent(),
		Action:      action,
		SourceTable: string(st),
		LeadID:      d.lead.ID,
		ActorID:     actor.ID,
		ActorBranch: actor.Branch,
		LeadBranch:  d.lead.Branch,
	})
}

func (s *Service) observe(ctx context.Context, actor Actor, action string, st SourceTable, id string, err error) {
	outcome := OutcomeSuccess
	reason := ""
	if err != nil {
		outcome = apperr.GetKind(err).String()
		reason = err.Error()
		var d *denial
		if errors.As(err, &d) {
			outcome = OutcomeDenied
		}
	}
	if s.metrics != nil {
		s.metrics.ApprovalDecisions.WithLabelValues(action, outcome).Inc()
	}
	s.log.WithContext(ctx).ApprovalDecision(action, string(st), id, actor.ID, err == nil, reason)
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, e)
	}
}

// Detail returns one lead to a reviewer in its branch. Denials are audited.
func (s *Service) Detail(ctx context.Context, actor Actor, st SourceTable, id string) (Lead, error) {
	lead, err := s.store.GetLead(ctx, s.store.Pool(), st, strings.TrimSpace(id), false)
	if err != nil {
		return Lead{}, err
	}
	if reason := s.branchCheck(actor)(lead); reason != "" {
		s.deny(ctx, actor, ActionView, st, &denial{lead: lead, reason: reason})
		return Lead{}, apperr.Forbidden(reason)
	}
	return lead, nil
}

// Waiting lists leads awaiting review in the actor's branch. Admins see
// branch, or every branch when it is empty.
func (s *Service) Waiting(ctx context.Context, actor Actor, branch string) ([]Lead, error) {
	if !actor.Admin {
		if strings.TrimSpace(actor.Branch) == "" {
			return nil, apperr.Forbidden("no branch assigned to this user")
		}
		branch = actor.Branch
	}
	return s.store.ListWaiting(ctx, branch)
}

// Rejected lists leads rejected back to the actor. Admins may pass an agent
// name, or empty for all.
func (s *Service) Rejected(ctx context.Context, actor Actor, agent string) ([]Lead, error) {
	if !actor.Admin {
		agent = actor.Name
		if strings.TrimSpace(agent) == "" {
			return nil, apperr.Forbidden("no agent name on this user")
		}
	}
	return s.store.ListRejected(ctx, agent)
}

// FollowUpInput changes a lead's follow-up date.
type FollowUpInput struct {
	SourceTable  SourceTable
	LeadID       string
	FollowUpDate time.Time
}

// UpdateFollowUp sets the follow-up date. The date is locked while the lead
// waits for approval or once it is approved.
func (s *Service) UpdateFollowUp(ctx context.Context, actor Actor, in FollowUpInput) error {
	return s.store.InTx(ctx, func(q db.Querier) error {
		lead, err := s.store.GetLead(ctx, q, in.SourceTable, strings.TrimSpace(in.LeadID), true)
		if err != nil {
			return err
		}
		if !actor.Admin && !strings.EqualFold(strings.TrimSpace(lead.Agent), strings.TrimSpace(actor.Name)) {
			return apperr.Forbidden("lead belongs to another agent")
		}
		if lead.ApprovalStatus.FollowUpLocked() {
			return apperr.Conflict("follow-up date is locked while the lead is " + string(lead.ApprovalStatus))
		}
		ok, err := s.store.SetFollowUpDate(ctx, q, in.SourceTable, lead.ID, in.FollowUpDate)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("lead was changed concurrently")
		}
		return nil
	})
}

var _ Store = (*Repository)(nil)

// Package notification reacts to lead workflow events: agents are mailed
// when a lead lands on them, approval transitions are written to the log.
package notification

import (
	"context"
	"strings"

	"leadcrm_backend/internal/email"
	"leadcrm_backend/internal/events"
	"leadcrm_backend/platform/logger"
)

// Module is the notification subscriber.
type Module struct {
	sender email.Sender
	log    *logger.Logger
}

// New creates the notification module. sender may be nil when SMTP is off;
// assignment mails are then skipped.
func New(sender email.Sender, log *logger.Logger) *Module {
	return &Module{sender: sender, log: log}
}

// RegisterHandlers subscribes to the events this module cares about.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadAutoAssigned{}.EventName(), m)

	bus.Subscribe(events.LeadSubmittedForApproval{}.EventName(), m)
	bus.Subscribe(events.LeadApproved{}.EventName(), m)
	bus.Subscribe(events.LeadRejected{}.EventName(), m)
	bus.Subscribe(events.ApprovalAccessDenied{}.EventName(), m)
}

// Handle implements events.Handler.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadAutoAssigned:
		return m.handleLeadAutoAssigned(ctx, e)
	case events.LeadSubmittedForApproval:
		m.log.Info("lead submitted for approval",
			"table", e.SourceTable,
			"leadId", e.LeadID,
			"orderId", e.OrderID,
			"branch", e.Branch,
			"submittedBy", e.SubmittedBy,
		)
	case events.LeadApproved:
		m.log.Info("lead approved", "table", e.SourceTable, "leadId", e.LeadID, "branch", e.Branch, "approvedBy", e.ApprovedBy)
	case events.LeadRejected:
		m.log.Info("lead rejected", "table", e.SourceTable, "leadId", e.LeadID, "branch", e.Branch, "rejectedBy", e.RejectedBy)
	case events.ApprovalAccessDenied:
		m.log.Warn("approval access denied",
			"action", e.Action,
			"table", e.SourceTable,
			"leadId", e.LeadID,
			"actorId", e.ActorID,
			"actorBranch", e.ActorBranch,
			"leadBranch", e.LeadBranch,
		)
	default:
		m.log.Debug("unhandled event", "event", event.EventName())
	}
	return nil
}

func (m *Module) handleLeadAutoAssigned(ctx context.Context, e events.LeadAutoAssigned) error {
	to := strings.TrimSpace(e.AgentEmail)
	if m.sender == nil || to == "" {
		return nil
	}
	if err := m.sender.SendLeadAssignedEmail(ctx, to, e.AgentName, e.LeadUID, e.Source, e.CountAfter); err != nil {
		m.log.Error("failed to send lead assigned email",
			"leadUid", e.LeadUID,
			"agent", e.AgentName,
			"error", err,
		)
		return err
	}
	m.log.Info("lead assigned email sent", "leadUid", e.LeadUID, "agent", e.AgentName)
	return nil
}

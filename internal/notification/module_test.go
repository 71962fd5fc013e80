package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"leadcrm_backend/internal/email"
	"leadcrm_backend/internal/events"
	"leadcrm_backend/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type assignedMail struct {
	to, agent, uid, source string
	total                  int
}

type testSender struct {
	mu    sync.Mutex
	mails []assignedMail
	err   error
}

func (s *testSender) SendLeadAssignedEmail(_ context.Context, to, agent, uid, source string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mails = append(s.mails, assignedMail{to: to, agent: agent, uid: uid, source: source, total: total})
	return s.err
}

func (s *testSender) SendDailyReportEmail(context.Context, []string, string, []email.ReportRow, string, ...email.Attachment) error {
	return nil
}

func assignedEvent(agentEmail string) events.LeadAutoAssigned {
	return events.LeadAutoAssigned{
		BaseEvent:   events.NewBaseEvent(),
		LeadUID:     "GA-3210-0001",
		Source:      "Google",
		AgentID:     7,
		AgentName:   "Asha",
		AgentEmail:  agentEmail,
		CountBefore: 4,
		CountAfter:  5,
		Trigger:     "cron",
	}
}

func TestLeadAutoAssignedSendsMail(t *testing.T) {
	sender := &testSender{}
	bus := events.NewInMemoryBus(logger.Discard())
	New(sender, logger.Discard()).RegisterHandlers(bus)

	require.NoError(t, bus.PublishSync(context.Background(), assignedEvent(" asha@example.com ")))

	require.Len(t, sender.mails, 1)
	assert.Equal(t, assignedMail{to: "asha@example.com", agent: "Asha", uid: "GA-3210-0001", source: "Google", total: 5}, sender.mails[0])
}

func TestLeadAutoAssignedSkipsWithoutAddress(t *testing.T) {
	sender := &testSender{}
	m := New(sender, logger.Discard())

	require.NoError(t, m.Handle(context.Background(), assignedEvent("")))
	assert.Empty(t, sender.mails)
}

func TestLeadAutoAssignedNilSender(t *testing.T) {
	m := New(nil, logger.Discard())
	assert.NoError(t, m.Handle(context.Background(), assignedEvent("asha@example.com")))
}

func TestLeadAutoAssignedSendError(t *testing.T) {
	sender := &testSender{err: errors.New("smtp down")}
	m := New(sender, logger.Discard())

	err := m.Handle(context.Background(), assignedEvent("asha@example.com"))
	assert.EqualError(t, err, "smtp down")
}

func TestApprovalEventsAreLoggedOnly(t *testing.T) {
	sender := &testSender{}
	m := New(sender, logger.Discard())
	ctx := context.Background()

	for _, e := range []events.Event{
		events.LeadSubmittedForApproval{BaseEvent: events.NewBaseEvent(), SourceTable: "ps_followup_master", LeadID: "1", OrderID: "12345678"},
		events.LeadApproved{BaseEvent: events.NewBaseEvent(), SourceTable: "ps_followup_master", LeadID: "1"},
		events.LeadRejected{BaseEvent: events.NewBaseEvent(), SourceTable: "walkin_table", LeadID: "2"},
		events.ApprovalAccessDenied{BaseEvent: events.NewBaseEvent(), Action: "approve", LeadID: "3"},
	} {
		assert.NoError(t, m.Handle(ctx, e), e.EventName())
	}
	assert.Empty(t, sender.mails)
}

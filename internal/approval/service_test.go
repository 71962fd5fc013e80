package approval

import (
	"context"
	"maps"
	"sync"
	"testing"
	"time"

	"leadcrm_backend/platform/apperr"
	"leadcrm_backend/platform/db"
	"leadcrm_backend/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type leadKey struct {
	st SourceTable
	id string
}

// memStore is a transactional in-memory Store: InTx snapshots the leads
// and audit log and restores them when fn fails.
type memStore struct {
	mu      sync.Mutex
	leads   map[leadKey]Lead
	audits  []AuditEntry
	mirrors []string
}

func newMemStore(leads ...Lead) *memStore {
	s := &memStore{leads: make(map[leadKey]Lead)}
	for _, l := range leads {
		s.leads[leadKey{l.SourceTable, l.ID}] = l
	}
	return s
}

func (s *memStore) InTx(_ context.Context, fn func(q db.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	leads := maps.Clone(s.leads)
	audits := append([]AuditEntry(nil), s.audits...)
	mirrors := append([]string(nil), s.mirrors...)
	if err := fn(nil); err != nil {
		s.leads, s.audits, s.mirrors = leads, audits, mirrors
		return err
	}
	return nil
}

func (s *memStore) Pool() db.Querier { return nil }

func (s *memStore) GetLead(_ context.Context, _ db.Querier, st SourceTable, id string, _ bool) (Lead, error) {
	l, ok := s.leads[leadKey{st, id}]
	if !ok {
		return Lead{}, apperr.NotFound("lead not found")
	}
	return l, nil
}

func (s *memStore) ApplyTransition(_ context.Context, _ db.Querier, st SourceTable, id string, t Transition) (bool, error) {
	k := leadKey{st, id}
	l := s.leads[k]
	if !l.ApprovalStatus.CanTransition(t.target()) {
		return false, nil
	}
	s.leads[k] = apply(l, t)
	return true, nil
}

func apply(l Lead, t Transition) Lead {
	now := time.Now()
	l.ApprovalStatus = t.target()
	switch t.kind {
	case kindSubmit:
		l.FinalStatus = string(StatusWaiting)
		l.LeadStatus = t.LeadStatus
		l.OrderID = &t.OrderID
		l.ApprovalRequestedAt = &now
	case kindApprove:
		l.FinalStatus = FinalStatusWon
		l.ApprovedBy = &t.Reviewer
		l.ApprovedAt = &now
	case kindReject:
		l.FinalStatus = FinalStatusReopened
		l.LeadStatus = LeadStatusRejected
		l.ApprovedBy = &t.Reviewer
		l.ApprovalRemarks = &t.Remarks
	}
	return l
}

func (s *memStore) MirrorToLeadMaster(_ context.Context, _ db.Querier, id string, t Transition) error {
	s.mirrors = append(s.mirrors, id)
	if l, ok := s.leads[leadKey{SourceLeadMaster, id}]; ok {
		s.leads[leadKey{SourceLeadMaster, id}] = apply(l, t)
	}
	return nil
}

func (s *memStore) SetFollowUpDate(_ context.Context, _ db.Querier, st SourceTable, id string, date time.Time) (bool, error) {
	k := leadKey{st, id}
	l := s.leads[k]
	if l.ApprovalStatus.FollowUpLocked() {
		return false, nil
	}
	l.FollowUpDate = &date
	s.leads[k] = l
	return true, nil
}

func (s *memStore) InsertAudit(_ context.Context, _ db.Querier, e AuditEntry) error {
	s.audits = append(s.audits, e)
	return nil
}

func (s *memStore) ListWaiting(_ context.Context, branch string) ([]Lead, error) {
	var out []Lead
	for _, l := range s.leads {
		if l.ApprovalStatus == StatusWaiting && (branch == "" || SameBranch(branch, l.Branch)) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memStore) ListRejected(_ context.Context, agent string) ([]Lead, error) {
	var out []Lead
	for _, l := range s.leads {
		if l.ApprovalStatus == StatusRejected && (agent == "" || l.Agent == agent) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memStore) lead(st SourceTable, id string) Lead {
	return s.leads[leadKey{st, id}]
}

var (
	psPriya  = Actor{ID: "u-ps-1", Name: "Priya", Branch: "Pune", Role: "ps"}
	bhPune   = Actor{ID: "u-bh-1", Name: "Kiran", Branch: "Pune", Role: "branch_head"}
	bhMumbai = Actor{ID: "u-bh-2", Name: "Meera", Branch: "Mumbai", Role: "branch_head"}
)

func pendingLead(id string) Lead {
	return Lead{
		SourceTable:    SourcePSFollowup,
		ID:             id,
		Branch:         "Pune",
		Agent:          "Priya",
		LeadStatus:     "Hot",
		FinalStatus:    "Pending",
		ApprovalStatus: StatusPending,
	}
}

func newTestService(store Store) *Service {
	return NewService(store, nil, nil, logger.Discard())
}

func TestSubmitRejectsMalformedOrderID(t *testing.T) {
	store := newMemStore(pendingLead("L1"))
	svc := newTestService(store)

	for _, orderID := range []string{"1234567", "123456789", "12a45678", ""} {
		_, err := svc.Submit(context.Background(), psPriya, SubmitInput{SourceTable: SourcePSFollowup, LeadID: "L1", LeadStatus: "Booked", OrderID: orderID})
		require.Error(t, err, orderID)
		assert.True(t, apperr.Is(err, apperr.KindValidation), orderID)
	}
	assert.Equal(t, StatusPending, store.lead(SourcePSFollowup, "L1").ApprovalStatus)
	assert.Empty(t, store.audits)
}

func TestSubmitRequiresBookedOrRetailed(t *testing.T) {
	store := newMemStore(pendingLead("L1"))
	_, err := newTestService(store).Submit(context.Background(), psPriya, SubmitInput{SourceTable: SourcePSFollowup, LeadID: "L1", LeadStatus: "Hot", OrderID: "12345678"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, StatusPending, store.lead(SourcePSFollowup, "L1").ApprovalStatus)
}

func TestSubmitByAnotherAgentIsForbidden(t *testing.T) {
	store := newMemStore(pendingLead("L1"))
	other := Actor{ID: "u-ps-2", Name: "Rahul", Branch: "Pune"}
	_, err := newTestService(store).Submit(context.Background(), other, SubmitInput{SourceTable: SourcePSFollowup, LeadID: "L1", LeadStatus: "Booked", OrderID: "12345678"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	require.Len(t, store.audits, 1)
	assert.Equal(t, OutcomeDenied, store.audits[0].Outcome)
}

func TestApproveFlowReachesWonOnlyThroughApproved(t *testing.T) {
	store := newMemStore(pendingLead("L1"), Lead{SourceTable: SourceLeadMaster, ID: "L1", Branch: "Pune", ApprovalStatus: StatusPending})
	svc := newTestService(store)
	ctx := context.Background()

	lead, err := svc.Submit(ctx, psPriya, SubmitInput{SourceTable: SourcePSFollowup, LeadID: "L1", LeadStatus: "retailed", OrderID: "12345678"})
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, lead.ApprovalStatus)
	assert.Equal(t, "Retailed", lead.LeadStatus)
	assert.NotEqual(t, FinalStatusWon, lead.FinalStatus)

	lead, err = svc.Approve(ctx, bhPune, DecisionInput{SourceTable: SourcePSFollowup, LeadID: "L1"})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, lead.ApprovalStatus)
	assert.Equal(t, FinalStatusWon, lead.FinalStatus)

	mirror := store.lead(SourceLeadMaster, "L1")
	assert.Equal(t, StatusApproved, mirror.ApprovalStatus)
	assert.Equal(t, FinalStatusWon, mirror.FinalStatus)

	require.Len(t, store.audits, 2)
	assert.Equal(t, ActionApprove, store.audits[1].Action)
	assert.Equal(t, string(StatusWaiting), store.audits[1].FromStatus)
}

func TestApproveTwiceIsConflict(t *testing.T) {
	lead := pendingLead("L1")
	lead.ApprovalStatus = StatusWaiting
	store := newMemStore(lead)
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Approve(ctx, bhPune, DecisionInput{SourceTable: SourcePSFollowup, LeadID: "L1"})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, bhPune, DecisionInput{SourceTable: SourcePSFollowup, LeadID: "L1"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	_, err = svc.Reject(ctx, bhPune, DecisionInput{SourceTable: SourcePSFollowup, LeadID: "L1", Remarks: "late"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Len(t, store.audits, 1)
}

func TestApprovePendingLeadIsConflict(t *testing.T) {
	store := newMemStore(pendingLead("L1"))
	_, err := newTestService(store).Approve(context.Background(), bhPune, DecisionInput{SourceTable: SourcePSFollowup, LeadID: "L1"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, StatusPending, store.lead(SourcePSFollowup, "L1").ApprovalStatus)
}

func TestRejectReopensLeadForAgent(t *testing.T) {
	lead := pendingLead("L1")
	lead.ApprovalStatus = StatusWaiting
	store := newMemStore(lead)
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Reject(ctx, bhPune, DecisionInput{SourceTable: SourcePSFollowup, LeadID: "L1", Remarks: "   "})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	got, err := svc.Reject(ctx, bhPune, DecisionInput{SourceTable: SourcePSFollowup, LeadID: "L1", Remarks: "<b>Order id</b> does not match invoice"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.ApprovalStatus)
	assert.Equal(t, FinalStatusReopened, got.FinalStatus)
	assert.Equal(t, LeadStatusRejected, got.LeadStatus)
	require.NotNil(t, got.ApprovalRemarks)
	assert.Equal(t, "Order id does not match invoice", *got.ApprovalRemarks)

	rejected, err := svc.Rejected(ctx, psPriya, "")
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "L1", rejected[0].ID)

	// A rejected lead may be resubmitted.
	_, err = svc.Submit(ctx, psPriya, SubmitInput{SourceTable: SourcePSFollowup, LeadID: "L1", LeadStatus: "Booked", OrderID: "87654321"})
	require.NoError(t, err)
}

func TestBranchHeadCannotActOutsideBranch(t *testing.T) {
	lead := pendingLead("L1")
	lead.ApprovalStatus = StatusWaiting
	store := newMemStore(lead)
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Approve(ctx, bhMumbai, DecisionInput{SourceTable: SourcePSFollowup, LeadID: "L1"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = svc.Reject(ctx, bhMumbai, DecisionInput{SourceTable: SourcePSFollowup, LeadID: "L1", Remarks: "no"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = svc.Detail(ctx, bhMumbai, SourcePSFollowup, "L1")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	assert.Equal(t, StatusWaiting, store.lead(SourcePSFollowup, "L1").ApprovalStatus)
	require.Len(t, store.audits, 3)
	for _, a := range store.audits {
		assert.Equal(t, OutcomeDenied, a.Outcome)
		assert.Equal(t, "Mumbai", a.Actor.Branch)
	}
	assert.Equal(t, ActionView, store.audits[2].Action)

	admin := Actor{ID: "root", Name: "Admin", Admin: true}
	_, err = svc.Approve(ctx, admin, DecisionInput{SourceTable: SourcePSFollowup, LeadID: "L1"})
	assert.NoError(t, err)
}

func TestWaitingIsScopedToBranch(t *testing.T) {
	a := pendingLead("L1")
	a.ApprovalStatus = StatusWaiting
	b := pendingLead("L2")
	b.ApprovalStatus = StatusWaiting
	b.Branch = "Mumbai"
	svc := newTestService(newMemStore(a, b))
	ctx := context.Background()

	leads, err := svc.Waiting(ctx, bhPune, "Mumbai")
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "L1", leads[0].ID)

	_, err = svc.Waiting(ctx, Actor{ID: "x", Role: "branch_head"}, "")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	all, err := svc.Waiting(ctx, Actor{ID: "root", Admin: true}, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFollowUpLockedWhileWaiting(t *testing.T) {
	store := newMemStore(pendingLead("L1"))
	svc := newTestService(store)
	ctx := context.Background()
	date := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)

	require.NoError(t, svc.UpdateFollowUp(ctx, psPriya, FollowUpInput{SourceTable: SourcePSFollowup, LeadID: "L1", FollowUpDate: date}))
	assert.Equal(t, date, *store.lead(SourcePSFollowup, "L1").FollowUpDate)

	_, err := svc.Submit(ctx, psPriya, SubmitInput{SourceTable: SourcePSFollowup, LeadID: "L1", LeadStatus: "Booked", OrderID: "12345678"})
	require.NoError(t, err)

	err = svc.UpdateFollowUp(ctx, psPriya, FollowUpInput{SourceTable: SourcePSFollowup, LeadID: "L1", FollowUpDate: date.AddDate(0, 0, 1)})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, date, *store.lead(SourcePSFollowup, "L1").FollowUpDate)
}

func TestConcurrentApprovalsOnlyOneWins(t *testing.T) {
	lead := pendingLead("L1")
	lead.ApprovalStatus = StatusWaiting
	store := newMemStore(lead)
	svc := newTestService(store)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Approve(context.Background(), bhPune, DecisionInput{SourceTable: SourcePSFollowup, LeadID: "L1"}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestParseSourceTable(t *testing.T) {
	cases := map[string]SourceTable{
		"ps_followup":        SourcePSFollowup,
		"ps_followup_master": SourcePSFollowup,
		" Walkin_Table ":     SourceWalkin,
		"activity_leads":     SourceActivity,
		"lead_master":        SourceLeadMaster,
	}
	for in, want := range cases {
		got, err := ParseSourceTable(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseSourceTable("users; DROP TABLE lead_master")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadcrm_backend/platform/apperr"
	"leadcrm_backend/platform/db"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Repository reads and writes leads across the four source tables.
type Repository struct {
	pool db.Pool
}

// NewRepository creates a new approval repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

// InTx runs fn in a transaction.
func (r *Repository) InTx(ctx context.Context, fn func(q db.Querier) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error { return fn(tx) })
}

// Pool returns the non-transactional querier.
func (r *Repository) Pool() db.Querier { return r.pool }

func leadColumns(s tableSpec) string {
	return fmt.Sprintf(`%s, COALESCE(customer_name, ''), COALESCE(%s, ''), COALESCE(source, ''),
		COALESCE(%s, ''), COALESCE(%s, ''), COALESCE(%s, ''), COALESCE(final_status, ''),
		approval_status, order_id, follow_up_date, approval_requested_at, approved_by, approved_at,
		approval_remarks, updated_at`,
		s.idCol, s.phoneCol, s.branchCol, s.agentCol, s.statusCol)
}

func scanLead(row pgx.Row, st SourceTable, l *Lead) error {
	l.SourceTable = st
	return row.Scan(&l.ID, &l.CustomerName, &l.CustomerMobile, &l.Source,
		&l.Branch, &l.Agent, &l.LeadStatus, &l.FinalStatus,
		&l.ApprovalStatus, &l.OrderID, &l.FollowUpDate, &l.ApprovalRequestedAt, &l.ApprovedBy, &l.ApprovedAt,
		&l.ApprovalRemarks, &l.UpdatedAt)
}

// GetLead loads one lead. With forUpdate the row stays locked until q's
// transaction ends.
func (r *Repository) GetLead(ctx context.Context, q db.Querier, st SourceTable, id string, forUpdate bool) (Lead, error) {
	s := st.spec()
	sql := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, leadColumns(s), s.table, s.idCol)
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	var l Lead
	if err := scanLead(q.QueryRow(ctx, sql, id), st, &l); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, apperr.NotFound("lead not found")
		}
		return Lead{}, eris.Wrapf(err, "load %s lead %s", st, id)
	}
	return l, nil
}

// transitionSQL builds the update for t on s. With cas the update only
// applies when approval_status still holds a state t may leave from.
func transitionSQL(s tableSpec, t Transition, cas bool) string {
	var set, guard string
	switch t.kind {
	case kindSubmit:
		set = fmt.Sprintf(`approval_status = 'Waiting for Approval', final_status = 'Waiting for Approval',
			%s = $2, order_id = $3, approval_requested_at = now(),
			approved_by = NULL, approved_at = NULL, approval_remarks = NULL`, s.statusCol)
		guard = `approval_status IN ('Pending', 'Rejected')`
	case kindApprove:
		set = `approval_status = 'Approved', final_status = 'Won',
			approved_by = $2, approved_at = now(), approval_remarks = NULLIF($3, '')`
		guard = `approval_status = 'Waiting for Approval'`
	case kindReject:
		set = fmt.Sprintf(`approval_status = 'Rejected', %s = 'rejected by BH', final_status = 'pending',
			approved_by = $2, approved_at = now(), approval_remarks = $3`, s.statusCol)
		guard = `approval_status = 'Waiting for Approval'`
	}

	sql := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $1`, s.table, set, s.idCol)
	if cas {
		sql += ` AND ` + guard
	}
	return sql
}

func transitionArgs(id string, t Transition) []any {
	if t.kind == kindSubmit {
		return []any{id, t.LeadStatus, t.OrderID}
	}
	return []any{id, t.Reviewer, t.Remarks}
}

// ApplyTransition writes t to the lead, guarded by its current approval
// status. It returns false when another writer moved the lead first.
func (r *Repository) ApplyTransition(ctx context.Context, q db.Querier, st SourceTable, id string, t Transition) (bool, error) {
	tag, err := q.Exec(ctx, transitionSQL(st.spec(), t, true), transitionArgs(id, t)...)
	if err != nil {
		if db.IsCheckViolation(err) {
			return false, apperr.Validation("order_id must be exactly 8 digits")
		}
		return false, eris.Wrapf(err, "apply %s transition to %s", t.target(), id)
	}
	return tag.RowsAffected() == 1, nil
}

// MirrorToLeadMaster copies t onto the lead_master row sharing id. A
// missing mirror row is not an error.
func (r *Repository) MirrorToLeadMaster(ctx context.Context, q db.Querier, id string, t Transition) error {
	if _, err := q.Exec(ctx, transitionSQL(SourceLeadMaster.spec(), t, false), transitionArgs(id, t)...); err != nil {
		return eris.Wrapf(err, "mirror %s to lead_master", id)
	}
	return nil
}

// SetFollowUpDate updates the follow-up date unless the lead is locked.
func (r *Repository) SetFollowUpDate(ctx context.Context, q db.Querier, st SourceTable, id string, date time.Time) (bool, error) {
	s := st.spec()
	sql := fmt.Sprintf(`UPDATE %s SET follow_up_date = $2
		WHERE %s = $1 AND approval_status NOT IN ('Waiting for Approval', 'Approved')`, s.table, s.idCol)
	tag, err := q.Exec(ctx, sql, id, date)
	if err != nil {
		return false, eris.Wrapf(err, "set follow-up date on %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertAudit appends an approval_audit_log row.
func (r *Repository) InsertAudit(ctx context.Context, q db.Querier, e AuditEntry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO approval_audit_log
			(actor_id, actor_name, actor_role, actor_branch, action, outcome, source_table, lead_id,
			 from_status, to_status, remarks, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''))`,
		e.Actor.ID, e.Actor.Name, e.Actor.Role, e.Actor.Branch, e.Action, e.Outcome, string(e.SourceTable), e.LeadID,
		e.FromStatus, e.ToStatus, e.Remarks, e.ErrorMessage,
	)
	return eris.Wrap(err, "insert approval audit")
}

// unionSQL selects leads from every source table matching where, which
// may reference $1 and the placeholders {branch}, {agent}. lead_master
// rows mirrored by a PS follow-up row are skipped.
func unionSQL(where string) string {
	parts := make([]string, 0, len(unionOrder))
	for _, st := range unionOrder {
		s := st.spec()
		cond := strings.NewReplacer("{branch}", s.branchCol, "{agent}", s.agentCol).Replace(where)
		if st == SourceLeadMaster {
			cond += ` AND NOT EXISTS (SELECT 1 FROM ps_followup_master p WHERE p.lead_uid = lead_master.uid)`
		}
		parts = append(parts, fmt.Sprintf(`SELECT '%s' AS source_table, %s FROM %s WHERE %s`,
			st, leadColumns(s), s.table, cond))
	}
	return strings.Join(parts, "\nUNION ALL\n")
}

func (r *Repository) listUnion(ctx context.Context, sql string, args ...any) ([]Lead, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "list leads")
	}
	defer rows.Close()

	leads := make([]Lead, 0)
	for rows.Next() {
		var (
			l   Lead
			tag string
		)
		if err := rows.Scan(&tag, &l.ID, &l.CustomerName, &l.CustomerMobile, &l.Source,
			&l.Branch, &l.Agent, &l.LeadStatus, &l.FinalStatus,
			&l.ApprovalStatus, &l.OrderID, &l.FollowUpDate, &l.ApprovalRequestedAt, &l.ApprovedBy, &l.ApprovedAt,
			&l.ApprovalRemarks, &l.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "scan lead")
		}
		l.SourceTable = SourceTable(tag)
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "iterate leads")
}

// ListWaiting returns leads waiting for approval in branch, or in every
// branch when branch is empty, newest request first.
func (r *Repository) ListWaiting(ctx context.Context, branch string) ([]Lead, error) {
	sql := unionSQL(`approval_status = 'Waiting for Approval' AND ($1 = '' OR lower({branch}) = lower($1))`) +
		"\nORDER BY approval_requested_at DESC NULLS LAST"
	return r.listUnion(ctx, sql, strings.TrimSpace(branch))
}

// ListRejected returns leads a branch head sent back to agent, most
// recently reviewed first.
func (r *Repository) ListRejected(ctx context.Context, agent string) ([]Lead, error) {
	sql := unionSQL(`approval_status = 'Rejected' AND ($1 = '' OR lower({agent}) = lower($1))`) +
		"\nORDER BY approved_at DESC NULLS LAST"
	return r.listUnion(ctx, sql, strings.TrimSpace(agent))
}

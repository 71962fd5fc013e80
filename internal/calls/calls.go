// Package calls records CRE contact attempts against a lead. The log is
// append-only and independent of the approval workflow.
package calls

import (
	"context"
	"strings"
	"time"

	"leadcrm_backend/platform/apperr"
	"leadcrm_backend/platform/db"
	"leadcrm_backend/platform/sanitize"

	"github.com/rotisserie/eris"
)

// MaxCallNo is the last follow-up call slot.
const MaxCallNo = 7

// Attempt is one cre_call_attempt_history row.
type Attempt struct {
	ID           int64      `json:"id"`
	UID          string     `json:"uid"`
	CallNo       int        `json:"call_no"`
	Attempt      int        `json:"attempt"`
	Status       string     `json:"status"`
	CreName      string     `json:"cre_name"`
	Remarks      string     `json:"remarks,omitempty"`
	FollowUpDate *time.Time `json:"follow_up_date,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// RecordInput is a new attempt. Attempt numbers are assigned by the
// database.
type RecordInput struct {
	UID          string
	CallNo       int
	Status       string
	CreName      string
	Remarks      string
	FollowUpDate *time.Time
}

// Repository stores call attempts.
type Repository struct {
	pool db.Querier
}

// NewRepository creates a new call attempt repository.
func NewRepository(pool db.Querier) *Repository {
	return &Repository{pool: pool}
}

// Record appends an attempt numbered one past the latest attempt for the
// same call slot. A concurrent insert for the same slot surfaces as a
// conflict from the unique index.
func (r *Repository) Record(ctx context.Context, in RecordInput) (Attempt, error) {
	a := Attempt{UID: in.UID, CallNo: in.CallNo, Status: in.Status, CreName: in.CreName, Remarks: in.Remarks, FollowUpDate: in.FollowUpDate}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO cre_call_attempt_history (uid, call_no, attempt, status, cre_name, remarks, follow_up_date)
		SELECT $1, $2, COALESCE(MAX(attempt), 0) + 1, $3, $4, NULLIF($5, ''), $6
		FROM cre_call_attempt_history
		WHERE uid = $1 AND call_no = $2
		RETURNING id, attempt, created_at`,
		in.UID, in.CallNo, in.Status, in.CreName, in.Remarks, in.FollowUpDate,
	).Scan(&a.ID, &a.Attempt, &a.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Attempt{}, apperr.Conflict("call attempt recorded concurrently, retry")
		}
		return Attempt{}, eris.Wrapf(err, "record call attempt for %s", in.UID)
	}
	return a, nil
}

// List returns every attempt for uid in call order.
func (r *Repository) List(ctx context.Context, uid string) ([]Attempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, uid, call_no, attempt, status, COALESCE(cre_name, ''), COALESCE(remarks, ''), follow_up_date, created_at
		FROM cre_call_attempt_history
		WHERE uid = $1
		ORDER BY call_no, attempt`, uid)
	if err != nil {
		return nil, eris.Wrapf(err, "list call attempts for %s", uid)
	}
	defer rows.Close()

	out := make([]Attempt, 0)
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.UID, &a.CallNo, &a.Attempt, &a.Status, &a.CreName, &a.Remarks, &a.FollowUpDate, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "scan call attempt")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "iterate call attempts")
}

// Store is what Service needs from the repository.
type Store interface {
	Record(ctx context.Context, in RecordInput) (Attempt, error)
	List(ctx context.Context, uid string) ([]Attempt, error)
}

// Service validates and records call attempts.
type Service struct {
	store Store
}

// NewService creates a new call attempt service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Record validates in and appends it.
func (s *Service) Record(ctx context.Context, in RecordInput) (Attempt, error) {
	in.UID = strings.TrimSpace(in.UID)
	in.Status = sanitize.Text(in.Status)
	in.Remarks = sanitize.Remarks(in.Remarks)
	if in.UID == "" {
		return Attempt{}, apperr.Validation("uid is required")
	}
	if in.CallNo < 1 || in.CallNo > MaxCallNo {
		return Attempt{}, apperr.Validation("call_no must be between 1 and 7")
	}
	if in.Status == "" {
		return Attempt{}, apperr.Validation("status is required")
	}
	return s.store.Record(ctx, in)
}

// List returns the attempts for uid.
func (s *Service) List(ctx context.Context, uid string) ([]Attempt, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, apperr.Validation("uid is required")
	}
	return s.store.List(ctx, uid)
}

package salesforce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadcrm_backend/platform/db"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

const duplicateSlots = 10

// ExistingLead is the lead_master row already holding a mobile number.
type ExistingLead struct {
	ID           int64
	UID          string
	CustomerName string
	Source       string
	SubSource    string
	Date         time.Time
	Remarks      string
	FollowUpDate *time.Time
}

// Repository writes synced leads.
type Repository struct {
	pool db.Pool
}

// NewRepository creates a new sync repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

// NextSequence seeds uid generation from the highest lead id.
func (r *Repository) NextSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM lead_master`).Scan(&seq)
	return seq, eris.Wrap(err, "next lead sequence")
}

// FindByMobile returns the oldest lead for mobile, or nil.
func (r *Repository) FindByMobile(ctx context.Context, mobile string) (*ExistingLead, error) {
	var l ExistingLead
	err := r.pool.QueryRow(ctx, `
		SELECT id, uid, customer_name, source, COALESCE(sub_source, ''), date, COALESCE(remarks, ''), follow_up_date
		FROM lead_master
		WHERE customer_mobile_number = $1
		ORDER BY id
		LIMIT 1`, mobile,
	).Scan(&l.ID, &l.UID, &l.CustomerName, &l.Source, &l.SubSource, &l.Date, &l.Remarks, &l.FollowUpDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "find lead by mobile %s", mobile)
	}
	return &l, nil
}

// UpdateExisting refreshes remarks and follow-up date on a re-synced lead.
func (r *Repository) UpdateExisting(ctx context.Context, id int64, remarks string, followUp *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE lead_master
		SET remarks = COALESCE(NULLIF($2, ''), remarks),
		    follow_up_date = COALESCE($3, follow_up_date)
		WHERE id = $1`, id, remarks, followUp)
	return eris.Wrapf(err, "update lead %d", id)
}

// InsertLead inserts rec under uid, plus its ps_followup_master row when a
// PS owns it. inserted is false when uid is already taken.
func (r *Repository) InsertLead(ctx context.Context, rec Record, uid string) (bool, error) {
	inserted := false
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		assigned := "No"
		if rec.CREName != "" || rec.PS.Name != "" {
			assigned = "Yes"
		}
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO lead_master
				(uid, date, customer_name, customer_mobile_number, source, sub_source,
				 cre_name, ps_name, branch, assigned, cre_assigned_at, ps_assigned_at,
				 final_status, follow_up_date, remarks, salesforce_id)
			VALUES ($1, $2, $3, $4, $5, $6,
				NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10,
				CASE WHEN $7 <> '' THEN now() END, CASE WHEN $8 <> '' THEN now() END,
				'Pending', $11, NULLIF($12, ''), NULLIF($13, ''))
			ON CONFLICT (uid) DO NOTHING
			RETURNING id`,
			uid, rec.Date, rec.CustomerName, rec.Mobile, rec.Source, rec.SubSource,
			rec.CREName, rec.PS.Name, rec.PS.Branch, assigned,
			rec.FollowUpDate, rec.Remarks, rec.SalesforceID,
		).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return eris.Wrapf(err, "insert lead %s", uid)
		}
		if rec.PS.Name != "" {
			_, err := tx.Exec(ctx, `
				INSERT INTO ps_followup_master
					(lead_uid, date, customer_name, customer_mobile_number, source, cre_name, ps_name, ps_branch, final_status, follow_up_date)
				VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, 'Pending', $9)
				ON CONFLICT (lead_uid) DO NOTHING`,
				uid, rec.Date, rec.CustomerName, rec.Mobile, rec.Source, rec.CREName, rec.PS.Name, rec.PS.Branch, rec.FollowUpDate)
			if err != nil {
				return eris.Wrapf(err, "insert ps follow-up %s", uid)
			}
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// sourceSlot is one sourceN/sub_sourceN pair of a duplicate_leads row.
type sourceSlot struct {
	Source    string
	SubSource string
}

// nextSlot returns the 1-based slot a new source goes into. ok is false
// when the pair is already recorded or every slot is taken.
func nextSlot(slots []sourceSlot, source, subSource string) (int, bool) {
	free := 0
	for i, s := range slots {
		if s.Source == source && s.SubSource == subSource {
			return 0, false
		}
		if s.Source == "" && free == 0 {
			free = i + 1
		}
	}
	return free, free != 0
}

// AddDuplicate records rec as another source for original's mobile number
// in duplicate_leads. recorded is false when the source pair was already
// known or the row is full.
func (r *Repository) AddDuplicate(ctx context.Context, original ExistingLead, rec Record) (bool, error) {
	recorded := false
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			id         int64
			sources    []string
			subSources []string
		)
		err := tx.QueryRow(ctx, fmt.Sprintf(`
			SELECT id, ARRAY[%s], ARRAY[%s]
			FROM duplicate_leads
			WHERE customer_mobile_number = $1
			FOR UPDATE`, slotColumns("source"), slotColumns("sub_source")), rec.Mobile,
		).Scan(&id, &sources, &subSources)
		if errors.Is(err, pgx.ErrNoRows) {
			if original.Source == rec.Source && original.SubSource == rec.SubSource {
				return nil
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO duplicate_leads
					(uid, customer_mobile_number, customer_name, original_lead_id,
					 source1, sub_source1, date1, source2, sub_source2, date2, duplicate_count)
				VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), $10, 2)
				ON CONFLICT (customer_mobile_number) DO NOTHING`,
				original.UID, rec.Mobile, original.CustomerName, original.ID,
				original.Source, original.SubSource, original.Date,
				rec.Source, rec.SubSource, rec.Date)
			if err != nil {
				return eris.Wrapf(err, "create duplicate record for %s", rec.Mobile)
			}
			recorded = true
			return nil
		}
		if err != nil {
			return eris.Wrapf(err, "load duplicate record for %s", rec.Mobile)
		}

		slots := make([]sourceSlot, duplicateSlots)
		for i := 0; i < duplicateSlots && i < len(sources); i++ {
			slots[i] = sourceSlot{Source: sources[i], SubSource: subSources[i]}
		}
		n, ok := nextSlot(slots, rec.Source, rec.SubSource)
		if !ok {
			return nil
		}
		_, err = tx.Exec(ctx, fmt.Sprintf(`
			UPDATE duplicate_leads
			SET source%[1]d = $2, sub_source%[1]d = NULLIF($3, ''), date%[1]d = $4, duplicate_count = duplicate_count + 1
			WHERE id = $1`, n), id, rec.Source, rec.SubSource, rec.Date)
		if err != nil {
			return eris.Wrapf(err, "add source %d to duplicate record %d", n, id)
		}
		recorded = true
		return nil
	})
	return recorded, err
}

func slotColumns(prefix string) string {
	cols := ""
	for i := 1; i <= duplicateSlots; i++ {
		if i > 1 {
			cols += ", "
		}
		cols += fmt.Sprintf("COALESCE(%s%d, '')", prefix, i)
	}
	return cols
}

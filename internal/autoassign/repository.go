package autoassign

import (
	"context"
	"errors"
	"time"

	"leadcrm_backend/platform/db"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Repository provides data access for the distributor.
type Repository struct {
	pool db.Pool
}

// NewRepository wraps pool. Both *pgxpool.Pool and pgxmock pools satisfy
// db.Pool.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

const (
	lockSourceSQL = `SELECT pg_advisory_xact_lock(hashtext('auto_assign:' || $1))`

	claimLeadSQL = `
		SELECT uid FROM lead_master
		WHERE source = $1 AND assigned = 'No'
		ORDER BY id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	pickAgentSQL = `
		SELECT u.id, u.name, COALESCE(u.email, ''), u.auto_assign_count
		FROM auto_assign_config c
		JOIN cre_users u ON u.id = c.cre_id
		WHERE c.source = $1 AND c.is_active AND u.is_active
		ORDER BY c.priority, u.auto_assign_count, u.id
		LIMIT 1`

	bindLeadSQL = `
		UPDATE lead_master
		SET assigned = 'Yes', cre_name = $2, cre_assigned_at = now(), lead_status = 'Pending'
		WHERE uid = $1 AND assigned = 'No'`

	bumpCountSQL = `
		UPDATE cre_users SET auto_assign_count = auto_assign_count + 1
		WHERE id = $1
		RETURNING auto_assign_count`

	insertHistorySQL = `
		INSERT INTO auto_assign_history
			(lead_uid, source, assigned_cre_id, assigned_cre_name, cre_total_leads_before, cre_total_leads_after, assignment_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertFirstCallSQL = `
		INSERT INTO cre_call_attempt_history (uid, call_no, attempt, status, cre_name)
		VALUES ($1, 1, 1, 'Pending', $2)
		ON CONFLICT (uid, call_no, attempt) DO NOTHING`
)

// AssignNextLead binds the oldest unassigned lead of source to the
// least-loaded eligible agent in one transaction. The advisory lock keeps
// two passes from reading the same minimum count; the conditional update
// keeps a lead from being bound twice.
func (r *Repository) AssignNextLead(ctx context.Context, source string) (Assignment, Outcome, error) {
	var (
		result  Assignment
		outcome Outcome
	)

	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lockSourceSQL, source); err != nil {
			return eris.Wrap(err, "lock source")
		}

		var uid string
		if err := tx.QueryRow(ctx, claimLeadSQL, source).Scan(&uid); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				outcome = OutcomeNoLeads
				return nil
			}
			return eris.Wrap(err, "claim lead")
		}

		var agent Agent
		err := tx.QueryRow(ctx, pickAgentSQL, source).Scan(&agent.ID, &agent.Name, &agent.Email, &agent.AutoAssignCount)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				outcome = OutcomeNoAgent
				return nil
			}
			return eris.Wrap(err, "pick agent")
		}

		tag, err := tx.Exec(ctx, bindLeadSQL, uid, agent.Name)
		if err != nil {
			return eris.Wrapf(err, "bind lead %s", uid)
		}
		if tag.RowsAffected() == 0 {
			outcome = OutcomeRaced
			return nil
		}

		var after int
		if err := tx.QueryRow(ctx, bumpCountSQL, agent.ID).Scan(&after); err != nil {
			return eris.Wrapf(err, "increment count for agent %d", agent.ID)
		}
		before := after - 1

		if _, err := tx.Exec(ctx, insertHistorySQL, uid, source, agent.ID, agent.Name, before, after, MethodFairDistribution); err != nil {
			return eris.Wrap(err, "insert history")
		}
		if _, err := tx.Exec(ctx, insertFirstCallSQL, uid, agent.Name); err != nil {
			return eris.Wrap(err, "insert first call attempt")
		}

		agent.AutoAssignCount = after
		result = Assignment{LeadUID: uid, Source: source, Agent: agent, CountBefore: before, CountAfter: after}
		outcome = OutcomeAssigned
		return nil
	})
	if err != nil {
		return Assignment{}, OutcomeNoLeads, err
	}
	return result, outcome, nil
}

// ListConfiguredSources returns sources with at least one active config.
func (r *Repository) ListConfiguredSources(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT source FROM auto_assign_config
		WHERE is_active
		ORDER BY source`)
	if err != nil {
		return nil, eris.Wrap(err, "list configured sources")
	}
	defer rows.Close()

	sources := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, eris.Wrap(err, "scan source")
		}
		sources = append(sources, s)
	}
	return sources, eris.Wrap(rows.Err(), "iterate sources")
}

// ListAgentLoads reads the per-agent statistics view.
func (r *Repository) ListAgentLoads(ctx context.Context) ([]AgentLoad, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT cre_id, cre_name, is_active, auto_assign_count, assigned_24h, assigned_7d, assigned_30d, last_assigned_at
		FROM auto_assign_cre_stats
		ORDER BY auto_assign_count DESC, cre_name`)
	if err != nil {
		return nil, eris.Wrap(err, "list agent loads")
	}
	defer rows.Close()

	loads := make([]AgentLoad, 0)
	for rows.Next() {
		var l AgentLoad
		if err := rows.Scan(&l.CreID, &l.CreName, &l.IsActive, &l.AutoAssignCount, &l.Assigned24h, &l.Assigned7d, &l.Assigned30d, &l.LastAssignedAt); err != nil {
			return nil, eris.Wrap(err, "scan agent load")
		}
		loads = append(loads, l)
	}
	return loads, eris.Wrap(rows.Err(), "iterate agent loads")
}

// ListSourceStats reads the per-source statistics view.
func (r *Repository) ListSourceStats(ctx context.Context) ([]SourceStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT source, active_agents, assigned_24h, assigned_7d, assigned_30d, last_assigned_at, unassigned_leads
		FROM auto_assign_source_stats
		ORDER BY source`)
	if err != nil {
		return nil, eris.Wrap(err, "list source stats")
	}
	defer rows.Close()

	stats := make([]SourceStats, 0)
	for rows.Next() {
		var s SourceStats
		if err := rows.Scan(&s.Source, &s.ActiveAgents, &s.Assigned24h, &s.Assigned7d, &s.Assigned30d, &s.LastAssignedAt, &s.UnassignedLeads); err != nil {
			return nil, eris.Wrap(err, "scan source stats")
		}
		stats = append(stats, s)
	}
	return stats, eris.Wrap(rows.Err(), "iterate source stats")
}

// Summary counts assignments since todayStart and weekStart.
func (r *Repository) Summary(ctx context.Context, todayStart, weekStart time.Time) (Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM auto_assign_history WHERE created_at >= $1),
			(SELECT COUNT(*) FROM auto_assign_history WHERE created_at >= $2),
			(SELECT COUNT(DISTINCT source) FROM auto_assign_config WHERE is_active),
			(SELECT COUNT(DISTINCT c.cre_id) FROM auto_assign_config c
				JOIN cre_users u ON u.id = c.cre_id
				WHERE c.is_active AND u.is_active),
			(SELECT COUNT(*) FROM lead_master WHERE assigned = 'No')`,
		todayStart, weekStart,
	).Scan(&s.AssignedToday, &s.AssignedThisWeek, &s.ActiveSources, &s.ActiveAgents, &s.UnassignedLeads)
	if err != nil {
		return Summary{}, eris.Wrap(err, "assignment summary")
	}
	return s, nil
}

// ListConfigs returns every config row with the agent name.
func (r *Repository) ListConfigs(ctx context.Context) ([]Config, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.source, c.cre_id, u.name, c.is_active, c.priority, c.created_at, c.updated_at
		FROM auto_assign_config c
		JOIN cre_users u ON u.id = c.cre_id
		ORDER BY c.source, c.priority, u.name`)
	if err != nil {
		return nil, eris.Wrap(err, "list configs")
	}
	defer rows.Close()

	configs := make([]Config, 0)
	for rows.Next() {
		var c Config
		if err := rows.Scan(&c.ID, &c.Source, &c.CreID, &c.CreName, &c.IsActive, &c.Priority, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "scan config")
		}
		configs = append(configs, c)
	}
	return configs, eris.Wrap(rows.Err(), "iterate configs")
}

// ReplaceSourceConfig swaps the config set of source. When resetCounts is
// set the counters of the listed agents go back to zero in the same
// transaction.
func (r *Repository) ReplaceSourceConfig(ctx context.Context, source string, entries []ConfigEntry, resetCounts bool) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM auto_assign_config WHERE source = $1`, source); err != nil {
			return eris.Wrapf(err, "clear config for %s", source)
		}

		ids := make([]int64, 0, len(entries))
		for _, e := range entries {
			active := true
			if e.IsActive != nil {
				active = *e.IsActive
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO auto_assign_config (source, cre_id, is_active, priority)
				VALUES ($1, $2, $3, $4)`,
				source, e.CreID, active, e.Priority,
			); err != nil {
				if db.IsUniqueViolation(err) {
					return errDuplicateAgent
				}
				return eris.Wrapf(err, "insert config for agent %d", e.CreID)
			}
			ids = append(ids, e.CreID)
		}

		if resetCounts && len(ids) > 0 {
			if _, err := tx.Exec(ctx, `UPDATE cre_users SET auto_assign_count = 0 WHERE id = ANY($1)`, ids); err != nil {
				return eris.Wrap(err, "reset counts")
			}
		}
		return nil
	})
}

// ResetCounts zeroes the counters of ids, or of every agent when ids is
// empty. Returns the number of agents touched.
func (r *Repository) ResetCounts(ctx context.Context, ids []int64) (int64, error) {
	var (
		sql  = `UPDATE cre_users SET auto_assign_count = 0 WHERE auto_assign_count <> 0`
		args []any
	)
	if len(ids) > 0 {
		sql += ` AND id = ANY($1)`
		args = append(args, ids)
	}
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, eris.Wrap(err, "reset counts")
	}
	return tag.RowsAffected(), nil
}

// ListHistory pages history newest first, optionally filtered by source.
func (r *Repository) ListHistory(ctx context.Context, source string, limit, offset int) ([]HistoryRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_uid, source, assigned_cre_id, assigned_cre_name,
			cre_total_leads_before, cre_total_leads_after, assignment_method, created_at
		FROM auto_assign_history
		WHERE ($1 = '' OR source = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		source, limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "list history")
	}
	defer rows.Close()

	records := make([]HistoryRecord, 0)
	for rows.Next() {
		var h HistoryRecord
		if err := rows.Scan(&h.ID, &h.LeadUID, &h.Source, &h.CreID, &h.CreName, &h.CountBefore, &h.CountAfter, &h.Method, &h.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "scan history")
		}
		records = append(records, h)
	}
	return records, eris.Wrap(rows.Err(), "iterate history")
}

// Totals counts configs, agents and active sources.
func (r *Repository) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM auto_assign_config),
			(SELECT COUNT(*) FROM cre_users WHERE is_active),
			(SELECT COUNT(DISTINCT source) FROM auto_assign_config WHERE is_active)`,
	).Scan(&t.TotalConfigs, &t.TotalCREs, &t.ActiveSources)
	if err != nil {
		return Totals{}, eris.Wrap(err, "assignment totals")
	}
	return t, nil
}

// SourceDistribution counts assignments per source since since.
func (r *Repository) SourceDistribution(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT source, COUNT(*) FROM auto_assign_history
		WHERE created_at >= $1
		GROUP BY source`, since)
	if err != nil {
		return nil, eris.Wrap(err, "source distribution")
	}
	defer rows.Close()

	dist := make(map[string]int)
	for rows.Next() {
		var (
			source string
			n      int
		)
		if err := rows.Scan(&source, &n); err != nil {
			return nil, eris.Wrap(err, "scan distribution")
		}
		dist[source] = n
	}
	return dist, eris.Wrap(rows.Err(), "iterate distribution")
}

// PurgeHistory deletes history older than retentionDays via the SQL
// maintenance function and returns the number of rows removed.
func (r *Repository) PurgeHistory(ctx context.Context, retentionDays int) (int, error) {
	var removed int
	if err := r.pool.QueryRow(ctx, `SELECT purge_auto_assign_history($1)`, retentionDays).Scan(&removed); err != nil {
		return 0, eris.Wrap(err, "purge history")
	}
	return removed, nil
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/triage-cli/internal/db"
	"github.com/sells-group/triage-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Tests use this to substitute
// pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS entries (
	id        TEXT PRIMARY KEY,
	file_id   TEXT NOT NULL,
	raw_input TEXT NOT NULL,
	status    TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS leads (
	id             TEXT PRIMARY KEY,
	file_id        TEXT NOT NULL,
	entry_id       TEXT NOT NULL UNIQUE REFERENCES entries(id) ON DELETE CASCADE,
	company_name   TEXT,
	industry       TEXT,
	business_model TEXT,
	budget         TEXT,
	revenue        TEXT,
	growth_goal    TEXT,
	urgency        TEXT,
	sentiment      TEXT,
	notes          TEXT,
	priority       TEXT,
	audit_priority TEXT,
	audit_notes    TEXT,
	audit_score    DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS edge_cases (
	id        TEXT PRIMARY KEY,
	entry_id  TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
	file_id   TEXT NOT NULL,
	raw_input TEXT NOT NULL,
	reason    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stage_runs (
	file_id      TEXT NOT NULL,
	stage        TEXT NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (file_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_entries_file_id ON entries(file_id);
CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(status);
CREATE INDEX IF NOT EXISTS idx_leads_file_id ON leads(file_id);
CREATE INDEX IF NOT EXISTS idx_edge_cases_file_id ON edge_cases(file_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InsertEntries(ctx context.Context, entries []model.Entry) error {
	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = []any{e.ID, e.FileID, e.RawInput, string(e.Status)}
	}
	_, err := db.CopyFrom(ctx, s.pool, "entries",
		[]string{"id", "file_id", "raw_input", "status"}, rows)
	return eris.Wrap(err, "postgres: insert entries")
}

func (s *PostgresStore) ListEntries(ctx context.Context, filter EntryFilter) ([]model.Entry, error) {
	query := `SELECT id, file_id, raw_input, status FROM entries WHERE 1=1`
	var args []any
	if filter.FileID != "" {
		args = append(args, filter.FileID)
		query += ` AND file_id = $1`
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		if len(args) == 1 {
			query += ` AND status = $1`
		} else {
			query += ` AND status = $2`
		}
	}
	query += ` ORDER BY ctid`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entries")
	}
	defer rows.Close()

	var entries []model.Entry
	for rows.Next() {
		var e model.Entry
		if err := rows.Scan(&e.ID, &e.FileID, &e.RawInput, &e.Status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list entries iterate")
}

func (s *PostgresStore) ApplyFlags(ctx context.Context, flags []EntryFlag) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin apply flags")
	}
	defer tx.Rollback(ctx)

	for _, f := range flags {
		tag, err := tx.Exec(ctx,
			`UPDATE entries SET status = $1 WHERE id = $2`,
			string(f.Status), f.EntryID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: flag entry %s", f.EntryID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Errorf("postgres: entry %s not found", f.EntryID)
		}
		if f.EdgeCase != nil {
			ec := f.EdgeCase
			_, err := tx.Exec(ctx,
				`INSERT INTO edge_cases (id, entry_id, file_id, raw_input, reason) VALUES ($1, $2, $3, $4, $5)`,
				ec.ID, ec.EntryID, ec.FileID, ec.RawInput, ec.Reason,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: insert edge case for entry %s", f.EntryID)
			}
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit apply flags")
}

func (s *PostgresStore) CreateLeads(ctx context.Context, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin create leads")
	}
	defer tx.Rollback(ctx)

	for _, l := range leads {
		_, err := tx.Exec(ctx,
			`INSERT INTO leads (id, file_id, entry_id, company_name, industry, business_model,
				budget, revenue, growth_goal, urgency, sentiment, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			l.ID, l.FileID, l.EntryID,
			l.CompanyName, l.Industry, enumPtr(l.BusinessModel),
			l.Budget, l.Revenue, l.GrowthGoal,
			enumPtr(l.Urgency), enumPtr(l.Sentiment), l.Notes,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert lead for entry %s", l.EntryID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit create leads")
}

func (s *PostgresStore) ListLeads(ctx context.Context, fileID string) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE file_id = $1 ORDER BY ctid`, fileID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var l model.Lead
		err := rows.Scan(&l.ID, &l.FileID, &l.EntryID,
			&l.CompanyName, &l.Industry, &l.BusinessModel,
			&l.Budget, &l.Revenue, &l.GrowthGoal,
			&l.Urgency, &l.Sentiment, &l.Notes,
			&l.Priority, &l.AuditPriority, &l.AuditNotes, &l.AuditScore,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) ListLeadsWithEntries(ctx context.Context, fileID string) ([]model.LeadWithEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT l.id, l.file_id, l.entry_id, l.company_name, l.industry, l.business_model,
			l.budget, l.revenue, l.growth_goal, l.urgency, l.sentiment, l.notes,
			l.priority, l.audit_priority, l.audit_notes, l.audit_score, e.raw_input
		 FROM leads l JOIN entries e ON e.id = l.entry_id
		 WHERE l.file_id = $1 ORDER BY l.ctid`, fileID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads with entries")
	}
	defer rows.Close()

	var out []model.LeadWithEntry
	for rows.Next() {
		var l model.Lead
		var raw string
		err := rows.Scan(&l.ID, &l.FileID, &l.EntryID,
			&l.CompanyName, &l.Industry, &l.BusinessModel,
			&l.Budget, &l.Revenue, &l.GrowthGoal,
			&l.Urgency, &l.Sentiment, &l.Notes,
			&l.Priority, &l.AuditPriority, &l.AuditNotes, &l.AuditScore,
			&raw,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead with entry")
		}
		out = append(out, model.LeadWithEntry{Lead: l, RawInput: raw})
	}
	return out, eris.Wrap(rows.Err(), "postgres: list leads with entries iterate")
}

func (s *PostgresStore) SetLeadPriorities(ctx context.Context, updates []LeadPriority) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin set priorities")
	}
	defer tx.Rollback(ctx)

	for _, u := range updates {
		tag, err := tx.Exec(ctx,
			`UPDATE leads SET priority = $1 WHERE id = $2`,
			string(u.Priority), u.LeadID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: set priority for lead %s", u.LeadID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Errorf("postgres: lead %s not found", u.LeadID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit set priorities")
}

func (s *PostgresStore) SetLeadAudits(ctx context.Context, updates []LeadAudit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin set audits")
	}
	defer tx.Rollback(ctx)

	for _, u := range updates {
		tag, err := tx.Exec(ctx,
			`UPDATE leads SET audit_priority = $1, audit_notes = $2, audit_score = $3 WHERE id = $4`,
			string(u.Priority), u.Notes, u.Score, u.LeadID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: set audit for lead %s", u.LeadID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Errorf("postgres: lead %s not found", u.LeadID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit set audits")
}

func (s *PostgresStore) ListEdgeCases(ctx context.Context, fileID string) ([]model.EdgeCase, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, entry_id, file_id, raw_input, reason FROM edge_cases WHERE file_id = $1 ORDER BY ctid`,
		fileID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list edge cases")
	}
	defer rows.Close()

	var cases []model.EdgeCase
	for rows.Next() {
		var ec model.EdgeCase
		if err := rows.Scan(&ec.ID, &ec.EntryID, &ec.FileID, &ec.RawInput, &ec.Reason); err != nil {
			return nil, eris.Wrap(err, "postgres: scan edge case")
		}
		cases = append(cases, ec)
	}
	return cases, eris.Wrap(rows.Err(), "postgres: list edge cases iterate")
}

func (s *PostgresStore) HasBatch(ctx context.Context, fileID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM entries WHERE file_id = $1 LIMIT 1`, fileID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "postgres: has batch")
	}
	return true, nil
}

func (s *PostgresStore) PurgeBatch(ctx context.Context, fileID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin purge")
	}
	defer tx.Rollback(ctx)

	for _, q := range []string{
		`DELETE FROM leads WHERE file_id = $1`,
		`DELETE FROM edge_cases WHERE file_id = $1`,
		`DELETE FROM entries WHERE file_id = $1`,
		`DELETE FROM stage_runs WHERE file_id = $1`,
	} {
		if _, err := tx.Exec(ctx, q, fileID); err != nil {
			return eris.Wrapf(err, "postgres: purge batch %s", fileID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit purge")
}

func (s *PostgresStore) CompletedStages(ctx context.Context, fileID string) (map[model.Stage]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT stage FROM stage_runs WHERE file_id = $1`, fileID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: completed stages")
	}
	defer rows.Close()

	done := make(map[model.Stage]bool)
	for rows.Next() {
		var stage string
		if err := rows.Scan(&stage); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage")
		}
		done[model.Stage(stage)] = true
	}
	return done, eris.Wrap(rows.Err(), "postgres: completed stages iterate")
}

func (s *PostgresStore) MarkStageComplete(ctx context.Context, fileID string, stage model.Stage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stage_runs (file_id, stage, completed_at) VALUES ($1, $2, now())
		 ON CONFLICT (file_id, stage) DO UPDATE SET completed_at = now()`,
		fileID, string(stage),
	)
	return eris.Wrapf(err, "postgres: mark stage %s complete", stage)
}

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/triage-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode with foreign keys enforced (leads cascade-delete with their entry).
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are connection-scoped; a single connection keeps foreign_keys
	// in force across the pool.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	audit_score    REAL
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
	completed_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (file_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_entries_file_id ON entries(file_id);
CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(status);
CREATE INDEX IF NOT EXISTS idx_leads_file_id ON leads(file_id);
CREATE INDEX IF NOT EXISTS idx_edge_cases_file_id ON edge_cases(file_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertEntries(ctx context.Context, entries []model.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert entries")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (id, file_id, raw_input, status) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert entries")
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID, e.FileID, e.RawInput, string(e.Status)); err != nil {
			return eris.Wrapf(err, "sqlite: insert entry %s", e.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert entries")
}

func (s *SQLiteStore) ListEntries(ctx context.Context, filter EntryFilter) ([]model.Entry, error) {
	query := `SELECT id, file_id, raw_input, status FROM entries WHERE 1=1`
	var args []any
	if filter.FileID != "" {
		query += ` AND file_id = ?`
		args = append(args, filter.FileID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entries")
	}
	defer rows.Close()

	var entries []model.Entry
	for rows.Next() {
		var e model.Entry
		if err := rows.Scan(&e.ID, &e.FileID, &e.RawInput, &e.Status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list entries iterate")
}

func (s *SQLiteStore) ApplyFlags(ctx context.Context, flags []EntryFlag) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin apply flags")
	}
	defer tx.Rollback()

	for _, f := range flags {
		res, err := tx.ExecContext(ctx,
			`UPDATE entries SET status = ? WHERE id = ?`,
			string(f.Status), f.EntryID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: flag entry %s", f.EntryID)
		}
		if err := checkRowsAffected(res, "entry", f.EntryID); err != nil {
			return err
		}
		if f.EdgeCase != nil {
			ec := f.EdgeCase
			_, err := tx.ExecContext(ctx,
				`INSERT INTO edge_cases (id, entry_id, file_id, raw_input, reason) VALUES (?, ?, ?, ?, ?)`,
				ec.ID, ec.EntryID, ec.FileID, ec.RawInput, ec.Reason,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert edge case for entry %s", f.EntryID)
			}
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit apply flags")
}

func (s *SQLiteStore) CreateLeads(ctx context.Context, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin create leads")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO leads (id, file_id, entry_id, company_name, industry, business_model,
			budget, revenue, growth_goal, urgency, sentiment, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare create leads")
	}
	defer stmt.Close()

	for _, l := range leads {
		_, err := stmt.ExecContext(ctx,
			l.ID, l.FileID, l.EntryID,
			l.CompanyName, l.Industry, enumPtr(l.BusinessModel),
			l.Budget, l.Revenue, l.GrowthGoal,
			enumPtr(l.Urgency), enumPtr(l.Sentiment), l.Notes,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert lead for entry %s", l.EntryID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit create leads")
}

const leadColumns = `id, file_id, entry_id, company_name, industry, business_model,
	budget, revenue, growth_goal, urgency, sentiment, notes,
	priority, audit_priority, audit_notes, audit_score`

func (s *SQLiteStore) ListLeads(ctx context.Context, fileID string) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE file_id = ? ORDER BY rowid`, fileID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) ListLeadsWithEntries(ctx context.Context, fileID string) ([]model.LeadWithEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.id, l.file_id, l.entry_id, l.company_name, l.industry, l.business_model,
			l.budget, l.revenue, l.growth_goal, l.urgency, l.sentiment, l.notes,
			l.priority, l.audit_priority, l.audit_notes, l.audit_score, e.raw_input
		 FROM leads l JOIN entries e ON e.id = l.entry_id
		 WHERE l.file_id = ? ORDER BY l.rowid`, fileID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads with entries")
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
			return nil, eris.Wrap(err, "sqlite: scan lead with entry")
		}
		out = append(out, model.LeadWithEntry{Lead: l, RawInput: raw})
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list leads with entries iterate")
}

func (s *SQLiteStore) SetLeadPriorities(ctx context.Context, updates []LeadPriority) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin set priorities")
	}
	defer tx.Rollback()

	for _, u := range updates {
		res, err := tx.ExecContext(ctx,
			`UPDATE leads SET priority = ? WHERE id = ?`,
			string(u.Priority), u.LeadID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: set priority for lead %s", u.LeadID)
		}
		if err := checkRowsAffected(res, "lead", u.LeadID); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit set priorities")
}

func (s *SQLiteStore) SetLeadAudits(ctx context.Context, updates []LeadAudit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin set audits")
	}
	defer tx.Rollback()

	for _, u := range updates {
		res, err := tx.ExecContext(ctx,
			`UPDATE leads SET audit_priority = ?, audit_notes = ?, audit_score = ? WHERE id = ?`,
			string(u.Priority), u.Notes, u.Score, u.LeadID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: set audit for lead %s", u.LeadID)
		}
		if err := checkRowsAffected(res, "lead", u.LeadID); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit set audits")
}

func (s *SQLiteStore) ListEdgeCases(ctx context.Context, fileID string) ([]model.EdgeCase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entry_id, file_id, raw_input, reason FROM edge_cases WHERE file_id = ? ORDER BY rowid`,
		fileID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list edge cases")
	}
	defer rows.Close()

	var cases []model.EdgeCase
	for rows.Next() {
		var ec model.EdgeCase
		if err := rows.Scan(&ec.ID, &ec.EntryID, &ec.FileID, &ec.RawInput, &ec.Reason); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan edge case")
		}
		cases = append(cases, ec)
	}
	return cases, eris.Wrap(rows.Err(), "sqlite: list edge cases iterate")
}

func (s *SQLiteStore) HasBatch(ctx context.Context, fileID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM entries WHERE file_id = ? LIMIT 1`, fileID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: has batch")
	}
	return true, nil
}

func (s *SQLiteStore) PurgeBatch(ctx context.Context, fileID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin purge")
	}
	defer tx.Rollback()

	// Leads and edge cases also cascade from entries; the explicit deletes
	// cover rows whose entry was removed out of band.
	for _, q := range []string{
		`DELETE FROM leads WHERE file_id = ?`,
		`DELETE FROM edge_cases WHERE file_id = ?`,
		`DELETE FROM entries WHERE file_id = ?`,
		`DELETE FROM stage_runs WHERE file_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, fileID); err != nil {
			return eris.Wrapf(err, "sqlite: purge batch %s", fileID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit purge")
}

func (s *SQLiteStore) CompletedStages(ctx context.Context, fileID string) (map[model.Stage]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage FROM stage_runs WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: completed stages")
	}
	defer rows.Close()

	done := make(map[model.Stage]bool)
	for rows.Next() {
		var stage string
		if err := rows.Scan(&stage); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage")
		}
		done[model.Stage(stage)] = true
	}
	return done, eris.Wrap(rows.Err(), "sqlite: completed stages iterate")
}

func (s *SQLiteStore) MarkStageComplete(ctx context.Context, fileID string, stage model.Stage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_runs (file_id, stage, completed_at) VALUES (?, ?, ?)
		 ON CONFLICT(file_id, stage) DO UPDATE SET completed_at = excluded.completed_at`,
		fileID, string(stage), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: mark stage %s complete", stage)
}

func scanLead(rows *sql.Rows) (*model.Lead, error) {
	var l model.Lead
	err := rows.Scan(&l.ID, &l.FileID, &l.EntryID,
		&l.CompanyName, &l.Industry, &l.BusinessModel,
		&l.Budget, &l.Revenue, &l.GrowthGoal,
		&l.Urgency, &l.Sentiment, &l.Notes,
		&l.Priority, &l.AuditPriority, &l.AuditNotes, &l.AuditScore,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan lead")
	}
	return &l, nil
}

// enumPtr converts a typed enum pointer to a nullable string for binding.
func enumPtr[T ~string](p *T) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %s not found", kind, id)
	}
	return nil
}

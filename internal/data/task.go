package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
	"github.com/DevRickLin/feishu-task-engine/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// taskRepo implements the task repository on sqlite
type taskRepo struct {
	db *sql.DB
}

// NewTaskRepo opens (or creates) the task database
func NewTaskRepo(dbPath string) (repo.TaskRepo, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Serialize writers; the scheduler and the API share this handle
	db.SetMaxOpenConns(1)
	_, _ = db.Exec(`PRAGMA journal_mode=WAL`)
	_, _ = db.Exec(`PRAGMA busy_timeout=5000`)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS scheduled_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scope_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			media_json TEXT,
			due_at INTEGER NOT NULL,
			interval_seconds INTEGER NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1,
			last_error TEXT,
			created_by TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create scheduled_messages table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS purge_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scope_id TEXT NOT NULL,
			channel_id TEXT UNIQUE NOT NULL,
			mode TEXT NOT NULL,
			interval_seconds INTEGER NOT NULL,
			scan_limit INTEGER NOT NULL,
			next_run_at INTEGER NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			last_error TEXT,
			created_by TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create purge_rules table: %w", err)
	}

	// Due listings order by (due, id); the older two-column indexes are replaced
	_, _ = db.Exec(`DROP INDEX IF EXISTS idx_messages_due`)
	_, _ = db.Exec(`DROP INDEX IF EXISTS idx_rules_due`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_due_order ON scheduled_messages(active, due_at, id)`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_scope ON scheduled_messages(scope_id, id)`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_rules_due_order ON purge_rules(active, next_run_at, id)`)

	slog.Debug("task database initialized", "component", "Store", "path", dbPath)
	return &taskRepo{db: db}, nil
}

func (r *taskRepo) Close() error {
	return r.db.Close()
}

// ========== Scheduled Message Operations ==========

const messageColumns = `id, scope_id, channel_id, content, media_json, due_at, interval_seconds, active, last_error, created_by, created_at, updated_at`

func (r *taskRepo) CreateMessage(ctx context.Context, msg *domain.ScheduledMessage) (int64, error) {
	now := time.Now().Unix()
	media, err := encodeMedia(msg.Media)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduled_messages (scope_id, channel_id, content, media_json, due_at, interval_seconds, active, last_error, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ScopeID, msg.ChannelID, msg.Content, media, msg.DueAt.Unix(), msg.IntervalSeconds,
		msg.Active, nullString(msg.LastError), msg.CreatedBy, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create scheduled message: %w", err)
	}
	return res.LastInsertId()
}

func (r *taskRepo) ListDueMessages(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages
		WHERE active = 1 AND due_at <= ?
		ORDER BY due_at ASC, id ASC
		LIMIT ?
	`, now.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *taskRepo) AdvanceMessage(ctx context.Context, id int64, nextDue time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_messages SET due_at = ?, last_error = NULL, updated_at = ? WHERE id = ?
	`, nextDue.Unix(), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to advance message %d: %w", id, err)
	}
	return nil
}

func (r *taskRepo) DeactivateMessage(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_messages SET active = 0, last_error = NULL, updated_at = ? WHERE id = ?
	`, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate message %d: %w", id, err)
	}
	return nil
}

func (r *taskRepo) RecordMessageError(ctx context.Context, id int64, retryAt time.Time, errText string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_messages SET due_at = ?, last_error = ?, updated_at = ? WHERE id = ?
	`, retryAt.Unix(), errText, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to record error on message %d: %w", id, err)
	}
	return nil
}

func (r *taskRepo) GetMessage(ctx context.Context, scopeID string, id int64) (*domain.ScheduledMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM scheduled_messages WHERE scope_id = ? AND id = ?
	`, scopeID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return msgs[0], nil
}

func (r *taskRepo) ListMessages(ctx context.Context, scopeID, channelID string, limit int) ([]*domain.ScheduledMessage, error) {
	var rows *sql.Rows
	var err error
	if channelID != "" {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+messageColumns+`
			FROM scheduled_messages WHERE scope_id = ? AND channel_id = ?
			ORDER BY id DESC
			LIMIT ?
		`, scopeID, channelID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+messageColumns+`
			FROM scheduled_messages WHERE scope_id = ?
			ORDER BY id DESC
			LIMIT ?
		`, scopeID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *taskRepo) PauseMessage(ctx context.Context, scopeID string, id int64) (bool, error) {
	return r.affected(ctx, `
		UPDATE scheduled_messages SET active = 0, updated_at = ? WHERE scope_id = ? AND id = ?
	`, time.Now().Unix(), scopeID, id)
}

func (r *taskRepo) ResumeMessage(ctx context.Context, scopeID string, id int64, earliest time.Time) (bool, error) {
	return r.affected(ctx, `
		UPDATE scheduled_messages SET active = 1, due_at = MAX(due_at, ?), updated_at = ?
		WHERE scope_id = ? AND id = ?
	`, earliest.Unix(), time.Now().Unix(), scopeID, id)
}

func (r *taskRepo) DeleteMessage(ctx context.Context, scopeID string, id int64) (bool, error) {
	return r.affected(ctx, `DELETE FROM scheduled_messages WHERE scope_id = ? AND id = ?`, scopeID, id)
}

func scanMessages(rows *sql.Rows) ([]*domain.ScheduledMessage, error) {
	var msgs []*domain.ScheduledMessage
	for rows.Next() {
		var m domain.ScheduledMessage
		var media, lastError, createdBy sql.NullString
		var dueAt, createdAt, updatedAt int64
		if err := rows.Scan(&m.ID, &m.ScopeID, &m.ChannelID, &m.Content, &media, &dueAt,
			&m.IntervalSeconds, &m.Active, &lastError, &createdBy, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scheduled message: %w", err)
		}
		m.Media = decodeMedia(media)
		m.DueAt = time.Unix(dueAt, 0)
		m.LastError = lastError.String
		m.CreatedBy = createdBy.String
		m.CreatedAt = time.Unix(createdAt, 0)
		m.UpdatedAt = time.Unix(updatedAt, 0)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// ========== Purge Rule Operations ==========

const ruleColumns = `id, scope_id, channel_id, mode, interval_seconds, scan_limit, next_run_at, active, last_error, created_by, created_at, updated_at`

// UpsertPurgeRule keeps one rule per channel. Replacing a rule reactivates it and clears its error.
// A channel whose rule belongs to another scope is left untouched and reported as ErrRuleConflict.
func (r *taskRepo) UpsertPurgeRule(ctx context.Context, rule *domain.PurgeRule) (int64, error) {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO purge_rules (scope_id, channel_id, mode, interval_seconds, scan_limit, next_run_at, active, last_error, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, NULL, ?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			mode = excluded.mode,
			interval_seconds = excluded.interval_seconds,
			scan_limit = excluded.scan_limit,
			next_run_at = excluded.next_run_at,
			active = 1,
			last_error = NULL,
			updated_at = excluded.updated_at
		WHERE purge_rules.scope_id = excluded.scope_id
	`, rule.ScopeID, rule.ChannelID, string(rule.Mode), rule.IntervalSeconds, rule.ScanLimit,
		rule.NextRunAt.Unix(), rule.CreatedBy, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert purge rule: %w", err)
	}

	// LastInsertId is unreliable on the update path
	var id int64
	var owner string
	err = r.db.QueryRowContext(ctx, `SELECT id, scope_id FROM purge_rules WHERE channel_id = ?`, rule.ChannelID).Scan(&id, &owner)
	if err != nil {
		return 0, fmt.Errorf("failed to read purge rule id: %w", err)
	}
	if owner != rule.ScopeID {
		return 0, domain.ErrRuleConflict
	}
	return id, nil
}

func (r *taskRepo) ListDuePurgeRules(ctx context.Context, now time.Time, limit int) ([]*domain.PurgeRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM purge_rules
		WHERE active = 1 AND next_run_at <= ?
		ORDER BY next_run_at ASC, id ASC
		LIMIT ?
	`, now.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due purge rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *taskRepo) AdvancePurgeRule(ctx context.Context, id int64, nextRun time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE purge_rules SET next_run_at = ?, last_error = NULL, updated_at = ? WHERE id = ?
	`, nextRun.Unix(), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to advance purge rule %d: %w", id, err)
	}
	return nil
}

func (r *taskRepo) RecordPurgeRuleError(ctx context.Context, id int64, nextRun time.Time, errText string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE purge_rules SET next_run_at = ?, last_error = ?, updated_at = ? WHERE id = ?
	`, nextRun.Unix(), errText, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to record error on purge rule %d: %w", id, err)
	}
	return nil
}

func (r *taskRepo) GetPurgeRule(ctx context.Context, scopeID string, id int64) (*domain.PurgeRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ruleColumns+` FROM purge_rules WHERE scope_id = ? AND id = ?
	`, scopeID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get purge rule: %w", err)
	}
	defer rows.Close()

	rules, err := scanRules(rows)
	if err != nil || len(rules) == 0 {
		return nil, err
	}
	return rules[0], nil
}

func (r *taskRepo) ListPurgeRules(ctx context.Context, scopeID string, limit int) ([]*domain.PurgeRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM purge_rules WHERE scope_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, scopeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list purge rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *taskRepo) PausePurgeRule(ctx context.Context, scopeID string, id int64) (bool, error) {
	return r.affected(ctx, `
		UPDATE purge_rules SET active = 0, updated_at = ? WHERE scope_id = ? AND id = ?
	`, time.Now().Unix(), scopeID, id)
}

func (r *taskRepo) ResumePurgeRule(ctx context.Context, scopeID string, id int64, earliest time.Time) (bool, error) {
	return r.affected(ctx, `
		UPDATE purge_rules SET active = 1, next_run_at = MAX(next_run_at, ?), updated_at = ?
		WHERE scope_id = ? AND id = ?
	`, earliest.Unix(), time.Now().Unix(), scopeID, id)
}

func (r *taskRepo) DeletePurgeRule(ctx context.Context, scopeID string, id int64) (bool, error) {
	return r.affected(ctx, `DELETE FROM purge_rules WHERE scope_id = ? AND id = ?`, scopeID, id)
}

func scanRules(rows *sql.Rows) ([]*domain.PurgeRule, error) {
	var rules []*domain.PurgeRule
	for rows.Next() {
		var rule domain.PurgeRule
		var mode string
		var lastError, createdBy sql.NullString
		var nextRun, createdAt, updatedAt int64
		if err := rows.Scan(&rule.ID, &rule.ScopeID, &rule.ChannelID, &mode, &rule.IntervalSeconds,
			&rule.ScanLimit, &nextRun, &rule.Active, &lastError, &createdBy, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan purge rule: %w", err)
		}
		rule.Mode = domain.PurgeMode(mode)
		rule.NextRunAt = time.Unix(nextRun, 0)
		rule.LastError = lastError.String
		rule.CreatedBy = createdBy.String
		rule.CreatedAt = time.Unix(createdAt, 0)
		rule.UpdatedAt = time.Unix(updatedAt, 0)
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// ========== Helpers ==========

func (r *taskRepo) affected(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func encodeMedia(media []string) (interface{}, error) {
	if len(media) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(media)
	if err != nil {
		return nil, fmt.Errorf("failed to encode media: %w", err)
	}
	return string(b), nil
}

// decodeMedia tolerates malformed rows; they are dispatched as text only
func decodeMedia(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var media []string
	if err := json.Unmarshal([]byte(raw.String), &media); err != nil {
		return nil
	}
	return media
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gensart-projs/openai-like-api/internal/domain"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// For in-memory SQLite, multiple connections create separate databases.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			model_id TEXT NOT NULL,
			title TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			last_message_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_id, status, last_message_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			metadata TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq)`,
		`CREATE TABLE IF NOT EXISTS model_configs (
			slug TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			chat_url TEXT,
			completion_url TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return errors.Wrapf(err, "migration failed\n%s", m)
		}
	}

	// Columns added after the first schema (SQLite has limited ALTER TABLE support).
	return s.ensureColumn("sessions", "metadata", "ALTER TABLE sessions ADD COLUMN metadata TEXT")
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sessionColumns = `session_id, owner_id, model_id, title, status, last_message_at, created_at, updated_at, metadata`

var sortColumns = map[string]string{
	"":                "last_message_at",
	"last_message_at": "last_message_at",
	"lastMessageAt":   "last_message_at",
	"created_at":      "created_at",
	"createdAt":       "created_at",
	"updated_at":      "updated_at",
	"updatedAt":       "updated_at",
	"title":           "title",
}

func (f SessionFilter) where() (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.OwnerID != "" {
		conds = append(conds, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.ExcludeDeleted {
		conds = append(conds, "status != ?")
		args = append(args, domain.SessionStatusDeleted)
	}
	if f.Title != nil {
		conds = append(conds, "title = ?")
		args = append(args, *f.Title)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// FindSessions lists sessions without their messages; MessageCount is filled.
func (s *SQLiteStore) FindSessions(ctx context.Context, filter SessionFilter, sort Sort, page Pagination) ([]domain.Session, error) {
	column, ok := sortColumns[sort.Field]
	if !ok {
		return nil, errors.Errorf("unsupported sort field %q", sort.Field)
	}
	where, args := filter.where()
	query := `SELECT ` + sessionColumns +
		`, (SELECT COUNT(*) FROM messages m WHERE m.session_id = sessions.session_id) FROM sessions` + where +
		` ORDER BY ` + column
	if sort.Desc {
		query += ` DESC`
	}
	query += `, created_at DESC`
	if page.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, page.Limit, page.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		session, err := scanSession(rows, true)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// CountSessions counts sessions matching filter.
func (s *SQLiteStore) CountSessions(ctx context.Context, filter SessionFilter) (int, error) {
	where, args := filter.where()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`+where, args...).Scan(&n)
	return n, err
}

// FindOneSession returns the first matching session with its messages in
// insertion order, or nil when nothing matches.
func (s *SQLiteStore) FindOneSession(ctx context.Context, filter SessionFilter) (*domain.Session, error) {
	where, args := filter.where()
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions`+where+` LIMIT 1`, args...)
	session, err := scanSession(row, false)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	messages, err := s.messages(ctx, session.SessionID)
	if err != nil {
		return nil, err
	}
	session.Messages = messages
	session.MessageCount = len(messages)
	return session, nil
}

func (s *SQLiteStore) messages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, role, content, created_at, metadata FROM messages WHERE session_id = ? ORDER BY seq ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var metadata sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.Role, &msg.Content, &msg.Timestamp, &metadata); err != nil {
			return nil, err
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				return nil, errors.Wrapf(err, "decoding metadata of message %s", msg.MessageID)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner, withCount bool) (*domain.Session, error) {
	var session domain.Session
	var metadata sql.NullString
	dest := []interface{}{
		&session.SessionID, &session.OwnerID, &session.ModelID, &session.Title, &session.Status,
		&session.LastMessageAt, &session.CreatedAt, &session.UpdatedAt, &metadata,
	}
	if withCount {
		dest = append(dest, &session.MessageCount)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		if err := json.Unmarshal([]byte(metadata.String), &session.Metadata); err != nil {
			return nil, errors.Wrapf(err, "decoding metadata of session %s", session.SessionID)
		}
	}
	return &session, nil
}

// InsertSession stores a new session together with any initial messages.
func (s *SQLiteStore) InsertSession(ctx context.Context, session *domain.Session) error {
	metadata, err := encodeMetadata(session.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.OwnerID, session.ModelID, session.Title, session.Status,
		session.LastMessageAt.UTC(), session.CreatedAt.UTC(), session.UpdatedAt.UTC(), metadata)
	if err != nil {
		return err
	}
	if err := insertMessages(ctx, tx, session.SessionID, session.Messages); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateSession applies patch to the single session selected by filter in one
// transaction. It reports false when the filter matched nothing.
func (s *SQLiteStore) UpdateSession(ctx context.Context, filter SessionFilter, patch SessionPatch) (bool, error) {
	if filter.SessionID == "" {
		return false, errors.New("update requires a session id")
	}
	now := time.Now().UTC()

	sets := []string{"updated_at = ?"}
	setArgs := []interface{}{now}
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		setArgs = append(setArgs, *patch.Title)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		setArgs = append(setArgs, *patch.Status)
	}
	if len(patch.AppendMessages) > 0 {
		last := patch.AppendMessages[len(patch.AppendMessages)-1].Timestamp
		if last.IsZero() {
			last = now
		}
		sets = append(sets, "last_message_at = ?")
		setArgs = append(setArgs, last.UTC())
	}

	where, whereArgs := filter.where()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET `+strings.Join(sets, ", ")+where,
		append(setArgs, whereArgs...)...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	if patch.ClearMessages {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, filter.SessionID); err != nil {
			return false, err
		}
	}
	if err := insertMessages(ctx, tx, filter.SessionID, patch.AppendMessages); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func insertMessages(ctx context.Context, tx *sql.Tx, sessionID string, messages []domain.Message) error {
	for _, msg := range messages {
		metadata, err := encodeMetadata(msg.Metadata)
		if err != nil {
			return err
		}
		ts := msg.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (message_id, session_id, role, content, created_at, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
			msg.MessageID, sessionID, msg.Role, msg.Content, ts.UTC(), metadata)
		if err != nil {
			return err
		}
	}
	return nil
}

func encodeMetadata(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// GetModelConfig retrieves a model configuration by slug, nil when absent.
func (s *SQLiteStore) GetModelConfig(ctx context.Context, slug string) (*domain.ModelConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT slug, name, description, chat_url, completion_url, is_active, created_at, updated_at
		FROM model_configs WHERE slug = ?`, slug)
	model, err := scanModelConfig(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return model, err
}

// ListModelConfigs lists model configurations ordered by slug.
func (s *SQLiteStore) ListModelConfigs(ctx context.Context, activeOnly bool) ([]domain.ModelConfig, error) {
	query := `SELECT slug, name, description, chat_url, completion_url, is_active, created_at, updated_at FROM model_configs`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY slug ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	models := []domain.ModelConfig{}
	for rows.Next() {
		model, err := scanModelConfig(rows)
		if err != nil {
			return nil, err
		}
		models = append(models, *model)
	}
	return models, rows.Err()
}

func scanModelConfig(row rowScanner) (*domain.ModelConfig, error) {
	var model domain.ModelConfig
	var description, chatURL, completionURL sql.NullString
	if err := row.Scan(&model.Slug, &model.Name, &description, &chatURL, &completionURL,
		&model.IsActive, &model.CreatedAt, &model.UpdatedAt); err != nil {
		return nil, err
	}
	model.Description = description.String
	model.ChatURL = chatURL.String
	model.CompletionURL = completionURL.String
	return &model, nil
}

// UpsertModelConfig creates or replaces a model configuration, keeping the
// original creation time.
func (s *SQLiteStore) UpsertModelConfig(ctx context.Context, model *domain.ModelConfig) error {
	now := time.Now().UTC()
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now
	}
	model.UpdatedAt = now
	name := model.Name
	if name == "" {
		name = model.Slug
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO model_configs (slug, name, description, chat_url, completion_url, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			chat_url = excluded.chat_url,
			completion_url = excluded.completion_url,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		model.Slug, name, model.Description, model.ChatURL, model.CompletionURL, model.IsActive,
		model.CreatedAt.UTC(), model.UpdatedAt)
	return err
}

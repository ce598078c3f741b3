package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/teamforge/realtime/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) a SQLite-backed store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency under parallel senders.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	log.Info().Str("module", "store").Str("path", dbPath).Msg("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS projects (
		project_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner_id TEXT NOT NULL REFERENCES users(user_id)
	);

	CREATE TABLE IF NOT EXISTS project_members (
		project_id TEXT NOT NULL REFERENCES projects(project_id),
		user_id TEXT NOT NULL REFERENCES users(user_id),
		PRIMARY KEY (project_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(project_id),
		sender_id TEXT NOT NULL REFERENCES users(user_id),
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_project ON messages(project_id, created_at);

	CREATE TABLE IF NOT EXISTS message_reads (
		message_id TEXT NOT NULL REFERENCES messages(message_id),
		user_id TEXT NOT NULL REFERENCES users(user_id),
		PRIMARY KEY (message_id, user_id)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateMessage(ctx context.Context, projectID domain.ProjectID, senderID domain.UserID, content string) (*domain.ChatMessage, error) {
	msg := &domain.ChatMessage{
		ID:        domain.MessageID(uuid.NewString()),
		ProjectID: projectID,
		SenderID:  senderID,
		Content:   content,
		// Microsecond precision, matching what the column stores.
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		ReadBy:    []domain.UserID{},
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, project_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(msg.ID), string(projectID), string(senderID), content, msg.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *SQLiteStore) MarkMessageRead(ctx context.Context, messageID domain.MessageID, userID domain.UserID) (*domain.ChatMessage, error) {
	if _, err := s.FindMessage(ctx, messageID); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_reads (message_id, user_id) VALUES (?, ?)`,
		string(messageID), string(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("insert message read: %w", err)
	}
	return s.FindMessage(ctx, messageID)
}

func (s *SQLiteStore) FindMessage(ctx context.Context, messageID domain.MessageID) (*domain.ChatMessage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT message_id, project_id, sender_id, content, created_at FROM messages WHERE message_id = ?`,
		string(messageID),
	)

	var msg domain.ChatMessage
	var createdAt int64
	err := row.Scan(&msg.ID, &msg.ProjectID, &msg.SenderID, &msg.Content, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan message row: %w", err)
	}
	msg.CreatedAt = time.UnixMicro(createdAt).UTC()

	msg.ReadBy, err = s.readers(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *SQLiteStore) readers(ctx context.Context, messageID domain.MessageID) ([]domain.UserID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM message_reads WHERE message_id = ? ORDER BY user_id`,
		string(messageID),
	)
	if err != nil {
		return nil, fmt.Errorf("query message reads: %w", err)
	}
	defer rows.Close()

	out := []domain.UserID{}
	for rows.Next() {
		var uid domain.UserID
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan read row: %w", err)
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FindUser(ctx context.Context, userID domain.UserID) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, display_name FROM users WHERE user_id = ?`, string(userID))

	var u domain.User
	err := row.Scan(&u.ID, &u.DisplayName)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStore) FindProject(ctx context.Context, projectID domain.ProjectID) (*domain.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT project_id, name, owner_id FROM projects WHERE project_id = ?`, string(projectID))

	var p domain.Project
	err := row.Scan(&p.ID, &p.Name, &p.OwnerID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project row: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM project_members WHERE project_id = ? ORDER BY user_id`, string(projectID))
	if err != nil {
		return nil, fmt.Errorf("query project members: %w", err)
	}
	defer rows.Close()

	p.Members = []domain.UserID{}
	for rows.Next() {
		var uid domain.UserID
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan member row: %w", err)
		}
		p.Members = append(p.Members, uid)
	}
	return &p, rows.Err()
}

func (s *SQLiteStore) IsProjectMember(ctx context.Context, projectID domain.ProjectID, userID domain.UserID) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM projects WHERE project_id = ? AND owner_id = ?
			UNION
			SELECT 1 FROM project_members WHERE project_id = ? AND user_id = ?
		)`,
		string(projectID), string(userID), string(projectID), string(userID),
	)
	var member bool
	if err := row.Scan(&member); err != nil {
		return false, fmt.Errorf("scan membership row: %w", err)
	}
	return member, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, display_name) VALUES (?, ?)`,
		string(user.ID), user.DisplayName,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateProject(ctx context.Context, project *domain.Project) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (project_id, name, owner_id) VALUES (?, ?, ?)`,
		string(project.ID), project.Name, string(project.OwnerID),
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	for _, m := range project.Members {
		if err := s.AddProjectMember(ctx, project.ID, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) AddProjectMember(ctx context.Context, projectID domain.ProjectID, userID domain.UserID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO project_members (project_id, user_id) VALUES (?, ?)`,
		string(projectID), string(userID),
	)
	if err != nil {
		return fmt.Errorf("insert project member: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

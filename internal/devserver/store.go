package devserver

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hassan7865/Hailouchat-Widget/internal/domain"
)

// Store persists sessions, messages and ratings for the development
// backend.
type Store struct {
	db *sql.DB
}

// NewStore opens the sqlite database and runs migrations
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			visitor_id TEXT NOT NULL,
			client_key TEXT NOT NULL,
			ip_address TEXT,
			page_url TEXT,
			closed_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			sender_type TEXT NOT NULL,
			content TEXT NOT NULL,
			attachment_url TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS ratings (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			rating TEXT NOT NULL,
			note TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS visitor_details (
			client_key TEXT NOT NULL,
			ip_address TEXT,
			first_name TEXT,
			email TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// CreateSession assigns ids and stores the session row
func (s *Store) CreateSession(clientKey string, meta domain.VisitorMetadata) (*domain.Session, error) {
	sess := &domain.Session{
		VisitorID: uuid.New().String(),
		SessionID: uuid.New().String(),
		IPAddress: meta.IPAddress,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO sessions (id, visitor_id, client_key, ip_address, page_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sess.SessionID, sess.VisitorID, clientKey, meta.IPAddress, meta.PageURL, sess.CreatedAt)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession retrieves a session by id, nil when absent
func (s *Store) GetSession(id string) (*domain.Session, error) {
	sess := &domain.Session{}
	var ip sql.NullString

	err := s.db.QueryRow(`
		SELECT id, visitor_id, ip_address, created_at
		FROM sessions WHERE id = ?
	`, id).Scan(&sess.SessionID, &sess.VisitorID, &ip, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ip.Valid {
		sess.IPAddress = ip.String
	}
	return sess, nil
}

// CloseSession marks a session as closed by the visitor
func (s *Store) CloseSession(id string) error {
	_, err := s.db.Exec(`UPDATE sessions SET closed_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

// CreateMessage stores a message row, assigning an id when missing
func (s *Store) CreateMessage(sessionID string, msg domain.Message) (domain.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	var attachmentURL string
	if msg.Attachment != nil {
		attachmentURL = msg.Attachment.FileURL
	}

	_, err := s.db.Exec(`
		INSERT INTO messages (id, session_id, sender_type, content, attachment_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, sessionID, string(msg.SenderType), msg.Text, attachmentURL, msg.Timestamp)
	return msg, err
}

// GetMessages retrieves all messages for a session in arrival order
func (s *Store) GetMessages(sessionID string) ([]domain.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, sender_type, content, created_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		var sender string
		if err := rows.Scan(&m.ID, &sender, &m.Text, &m.Timestamp); err != nil {
			return nil, err
		}
		m.SenderType = domain.SenderType(sender)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CreateRating stores a session rating
func (s *Store) CreateRating(sessionID, rating, note string) error {
	_, err := s.db.Exec(`
		INSERT INTO ratings (id, session_id, rating, note)
		VALUES (?, ?, ?, ?)
	`, uuid.New().String(), sessionID, rating, note)
	return err
}

// SaveVisitorDetails stores contact details for a visitor
func (s *Store) SaveVisitorDetails(clientKey, ipAddress, firstName, email string) error {
	_, err := s.db.Exec(`
		INSERT INTO visitor_details (client_key, ip_address, first_name, email)
		VALUES (?, ?, ?, ?)
	`, clientKey, ipAddress, firstName, email)
	return err
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Package archive provides PostgreSQL-backed storage for chat messages seen
// by the client. Each row records who owned the session, the server id of
// the message when known, and its sender, recipient, kind and body.
package archive

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq" // postgres driver

	"github.com/longapp/chat-client/internal/chat"
	"github.com/longapp/chat-client/internal/protocol"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Record is one archived message.
type Record struct {
	ID        int64
	Owner     string
	ServerID  int64 // 0 for messages the server has not numbered
	Sender    string
	Recipient string
	Kind      protocol.MessageKind
	Body      string
	CreatedAt time.Time
}

// NewRecord converts a chat message seen by owner.
func NewRecord(owner string, msg protocol.ChatMessage) Record {
	return Record{
		Owner:     owner,
		ServerID:  msg.ID,
		Sender:    msg.Name,
		Recipient: msg.To,
		Kind:      msg.Type,
		Body:      msg.Mes,
		CreatedAt: ParseTimestamp(msg.CreateAt),
	}
}

// timestampLayouts are the forms createAt takes: the server's and the
// client's own.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000Z",
	time.RFC3339Nano,
}

// ParseTimestamp parses a createAt value, falling back to now.
func ParseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

// Store manages archived messages in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new archive store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL and applies pending migrations.
func Open(ctx context.Context, url string) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewStore(db), nil
}

// Migrate brings the schema up to date.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("archive: load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("archive: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("archive: migrate up: %w", err)
	}
	return nil
}

// Insert stores a record. Records with a server id already archived for
// the same owner are ignored.
func (s *Store) Insert(ctx context.Context, r Record) error {
	const query = `
		INSERT INTO chat_messages (owner, server_id, sender, recipient, kind, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner, server_id) WHERE server_id IS NOT NULL DO NOTHING`

	var serverID sql.NullInt64
	if r.ServerID != 0 {
		serverID = sql.NullInt64{Int64: r.ServerID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		r.Owner,
		serverID,
		r.Sender,
		r.Recipient,
		int(r.Kind),
		r.Body,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("archive: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit of owner's most recent messages in the
// conversation with peer, oldest first. A person conversation holds the
// direct messages exchanged with that person; a room conversation holds
// everything posted to the room.
func (s *Store) Recent(ctx context.Context, owner string, peer chat.Entry, limit int) ([]Record, error) {
	const personQuery = `
		SELECT id, owner, COALESCE(server_id, 0), sender, recipient, kind, body, created_at
		FROM chat_messages
		WHERE owner = $1
		  AND kind <> 1
		  AND ((sender = $2 AND recipient = $1) OR (sender = $1 AND recipient = $2))
		ORDER BY created_at DESC, id DESC
		LIMIT $3`
	const roomQuery = `
		SELECT id, owner, COALESCE(server_id, 0), sender, recipient, kind, body, created_at
		FROM chat_messages
		WHERE owner = $1
		  AND kind = 1
		  AND recipient = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	query := personQuery
	if peer.IsRoom() {
		query = roomQuery
	}
	rows, err := s.db.QueryContext(ctx, query, owner, peer.Name, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var kind int
		if err := rows.Scan(&r.ID, &r.Owner, &r.ServerID, &r.Sender, &r.Recipient, &kind, &r.Body, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		r.Kind = protocol.MessageKind(kind)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: recent: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

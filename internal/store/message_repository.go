package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emberchat/ember/internal/models"
)

// Message repository errors.
var (
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidMessage  = errors.New("invalid message")
)

// Order is the sort direction for Query results.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// MessageQuery defines filters for querying a conversation's messages.
// Timestamp bounds are inclusive; id bounds are exclusive. Callers that
// paginate on an inclusive timestamp cursor dedup boundary collisions
// themselves (see window.BatchDedupedAtCursor).
type MessageQuery struct {
	BeforeID *int64     // message_id strictly less than
	AfterID  *int64     // message_id strictly greater than
	BeforeTS *time.Time // date at or before
	AfterTS  *time.Time // date at or after
	ExactID  *int64     // exactly this message_id
	Order    Order      // result order over (date, message_id)
	Limit    int
}

// MessageRepository handles message persistence for all conversations.
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `peer_kind, peer_id, message_id, global_id, random_id, from_id, date, out, text, status, edit_date`

// Query retrieves messages for a peer matching the given filters.
func (r *MessageRepository) Query(ctx context.Context, peer models.Peer, q MessageQuery) ([]models.Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + messageColumns + ` FROM messages WHERE peer_kind = ? AND peer_id = ?`
	args := []any{string(peer.Kind), peer.ID}

	if q.ExactID != nil {
		query += ` AND message_id = ?`
		args = append(args, *q.ExactID)
	}
	if q.BeforeID != nil {
		query += ` AND message_id < ?`
		args = append(args, *q.BeforeID)
	}
	if q.AfterID != nil {
		query += ` AND message_id > ?`
		args = append(args, *q.AfterID)
	}
	if q.BeforeTS != nil {
		query += ` AND date <= ?`
		args = append(args, timeToMs(*q.BeforeTS))
	}
	if q.AfterTS != nil {
		query += ` AND date >= ?`
		args = append(args, timeToMs(*q.AfterTS))
	}

	dir := "ASC"
	if q.Order == OrderDesc {
		dir = "DESC"
	}
	query += fmt.Sprintf(` ORDER BY date %s, message_id %s LIMIT ?`, dir, dir)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// Get retrieves a single message by its per-conversation id.
// Returns ErrMessageNotFound if absent.
func (r *MessageRepository) Get(ctx context.Context, peer models.Peer, messageID int64) (*models.Message, error) {
	msgs, err := r.Query(ctx, peer, MessageQuery{ExactID: &messageID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrMessageNotFound
	}
	return &msgs[0], nil
}

// ExistsBeyond reports whether any message exists past the given id in the
// requested direction. Used to compute the window's local load availability.
func (r *MessageRepository) ExistsBeyond(ctx context.Context, peer models.Peer, id int64, newer bool) (bool, error) {
	cmp := "<"
	if newer {
		cmp = ">"
	}

	var exists bool
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM messages WHERE peer_kind = ? AND peer_id = ? AND message_id %s ?)`, cmp),
		string(peer.Kind), peer.ID, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to probe messages beyond %d: %w", id, err)
	}
	return exists, nil
}

// Save upserts messages by (peer, message_id). Multi-message saves run in a
// single transaction with busy retries.
func (r *MessageRepository) Save(ctx context.Context, messages ...models.Message) error {
	for i := range messages {
		if messages[i].Peer.IsZero() || messages[i].MessageID == 0 {
			return ErrInvalidMessage
		}
	}
	if len(messages) == 0 {
		return nil
	}

	if len(messages) == 1 {
		return r.upsert(ctx, r.db, messages[0])
	}
	return r.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		for _, msg := range messages {
			if err := r.upsert(ctx, tx, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

type execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

func (r *MessageRepository) upsert(ctx context.Context, ex execer, msg models.Message) error {
	var editDate *int64
	if msg.EditDate != nil {
		ms := timeToMs(*msg.EditDate)
		editDate = &ms
	}
	var status *string
	if msg.Status != "" {
		s := string(msg.Status)
		status = &s
	}

	_, err := ex.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(peer_kind, peer_id, message_id) DO UPDATE SET
			global_id = excluded.global_id,
			random_id = excluded.random_id,
			from_id = excluded.from_id,
			date = excluded.date,
			out = excluded.out,
			text = excluded.text,
			status = excluded.status,
			edit_date = excluded.edit_date
	`,
		string(msg.Peer.Kind),
		msg.Peer.ID,
		msg.MessageID,
		msg.GlobalID,
		msg.RandomID,
		msg.FromID,
		timeToMs(msg.Date),
		boolToInt(msg.Out),
		msg.Text,
		status,
		editDate,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert message %d: %w", msg.MessageID, err)
	}
	return nil
}

// ApplyEdit updates a message's text and edit timestamp in place.
func (r *MessageRepository) ApplyEdit(ctx context.Context, peer models.Peer, messageID int64, text string, editDate time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE messages SET text = ?, edit_date = ?
		WHERE peer_kind = ? AND peer_id = ? AND message_id = ?
	`, text, timeToMs(editDate), string(peer.Kind), peer.ID, messageID)
	if err != nil {
		return fmt.Errorf("failed to apply edit: %w", err)
	}
	return requireRow(result)
}

// SetStatus updates a message's delivery status. A non-zero globalID records
// the server-assigned id when an optimistic send is acknowledged.
func (r *MessageRepository) SetStatus(ctx context.Context, peer models.Peer, messageID int64, status models.MessageStatus, globalID int64) error {
	query := `UPDATE messages SET status = ?`
	args := []any{string(status)}
	if globalID != 0 {
		query += `, global_id = ?`
		args = append(args, globalID)
	}
	query += ` WHERE peer_kind = ? AND peer_id = ? AND message_id = ?`
	args = append(args, string(peer.Kind), peer.ID, messageID)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return requireRow(result)
}

// Delete removes messages by their per-conversation ids.
// Returns the number of messages deleted.
func (r *MessageRepository) Delete(ctx context.Context, peer models.Peer, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := []any{string(peer.Kind), peer.ID}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(`DELETE FROM messages WHERE peer_kind = ? AND peer_id = ? AND message_id IN (%s)`,
		strings.Join(placeholders, ","))
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	return count, nil
}

// CountForPeer returns the number of locally stored messages for a peer.
func (r *MessageRepository) CountForPeer(ctx context.Context, peer models.Peer) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE peer_kind = ? AND peer_id = ?`,
		string(peer.Kind), peer.ID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected count: %w", err)
	}
	if affected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func scanMessage(rows *sql.Rows) (models.Message, error) {
	var msg models.Message
	var peerKind string
	var date int64
	var out int
	var status sql.NullString
	var editDate sql.NullInt64

	if err := rows.Scan(
		&peerKind,
		&msg.Peer.ID,
		&msg.MessageID,
		&msg.GlobalID,
		&msg.RandomID,
		&msg.FromID,
		&date,
		&out,
		&msg.Text,
		&status,
		&editDate,
	); err != nil {
		return models.Message{}, fmt.Errorf("failed to scan message: %w", err)
	}

	msg.Peer.Kind = models.PeerKind(peerKind)
	msg.Date = msToTime(date)
	msg.Out = out != 0
	if status.Valid {
		msg.Status = models.MessageStatus(status.String)
	}
	if editDate.Valid {
		t := msToTime(editDate.Int64)
		msg.EditDate = &t
	}

	return msg, nil
}

func timeToMs(t time.Time) int64 {
	return t.UnixMilli()
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package buildtrack

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ChatHistoryLimit bounds how many messages a room replays on join and how
// many the history endpoint returns.
const ChatHistoryLimit = 100

// ChatMessages is the durable side of the chat channel.
type ChatMessages interface {
	Save(ctx context.Context, msg *ChatMessage) (*ChatMessage, error)
	RecentBySite(ctx context.Context, siteID string, limit int) ([]*ChatMessage, error)
	DeleteBySite(ctx context.Context, siteID string) (int64, error)
}

type chatMessages struct {
	db  *bun.DB
	now func() time.Time
}

var _ ChatMessages = (*chatMessages)(nil)

// NewChatMessagesRepository builds the bun-backed message store.
func NewChatMessagesRepository(db *bun.DB) ChatMessages {
	return &chatMessages{db: db, now: time.Now}
}

// Save persists a message. The caller-supplied timestamp is authoritative
// when present; the server clock fills it in only when absent.
func (r *chatMessages) Save(ctx context.Context, msg *ChatMessage) (*ChatMessage, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.now()
	}

	if _, err := r.db.NewInsert().Model(msg).Exec(ctx); err != nil {
		return nil, err
	}

	return msg, nil
}

// RecentBySite returns up to limit of the newest messages for a site,
// reordered oldest-first for replay.
func (r *chatMessages) RecentBySite(ctx context.Context, siteID string, limit int) ([]*ChatMessage, error) {
	if limit <= 0 || limit > ChatHistoryLimit {
		limit = ChatHistoryLimit
	}

	var records []*ChatMessage
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.site_id = ?", siteID).
		Order("timestamp DESC", "created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	// newest-first from the store, oldest-first on the wire
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	return records, nil
}

func (r *chatMessages) DeleteBySite(ctx context.Context, siteID string) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*ChatMessage)(nil)).
		Where("site_id = ?", siteID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

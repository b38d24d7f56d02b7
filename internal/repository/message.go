package repository

import (
	"context"
	"fmt"
	"time"

	"mjolobid-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const conversationColumns = `c.id, c.subject_type, c.subject_id, c.user_a_id, c.user_b_id, c.is_active, c.created_at, c.updated_at`

func scanConversation(row scanner, extra ...any) (*models.Conversation, error) {
	var c models.Conversation
	dest := []any{&c.ID, &c.SubjectType, &c.SubjectID, &c.UserAID, &c.UserBID, &c.IsActive, &c.CreatedAt, &c.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &c, nil
}

// MessageRepository handles conversations and chat messages
type MessageRepository struct {
	db DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// GetOrCreateConversation returns the conversation about a subject between two users, creating it
// when missing. Participants are stored in id order so either side finds the same row.
func (r *MessageRepository) GetOrCreateConversation(ctx context.Context, subjectType, subjectID, userID, otherID string, now time.Time) (*models.Conversation, bool, error) {
	a, b := userID, otherID
	if b < a {
		a, b = b, a
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO conversations (id, subject_type, subject_id, user_a_id, user_b_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)
		ON CONFLICT (subject_type, subject_id, user_a_id, user_b_id) DO NOTHING`,
		uuid.New().String(), subjectType, subjectID, a, b, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create conversation: %w", err)
	}

	c, err := scanConversation(r.db.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations c
		WHERE c.subject_type = $1 AND c.subject_id = $2 AND c.user_a_id = $3 AND c.user_b_id = $4`,
		subjectType, subjectID, a, b))
	if err != nil {
		return nil, false, notFound(err, "conversation")
	}
	return c, tag.RowsAffected() == 1, nil
}

// GetConversation retrieves a conversation by id
func (r *MessageRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	c, err := scanConversation(r.db.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations c WHERE c.id = $1`, id))
	if err != nil {
		return nil, notFound(err, "conversation")
	}
	return c, nil
}

// ListConversations returns a user's active conversations with their last message and the
// number of messages the user has not read, most recent activity first
func (r *MessageRepository) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+conversationColumns+`,
			m.id, m.sender_id, m.content, m.attachment_key, m.is_read, m.read_at, m.created_at,
			(SELECT COUNT(*) FROM messages u WHERE u.conversation_id = c.id AND u.sender_id <> $1 AND NOT u.is_read)
		FROM conversations c
		LEFT JOIN LATERAL (
			SELECT * FROM messages WHERE conversation_id = c.id ORDER BY created_at DESC LIMIT 1
		) m ON TRUE
		WHERE c.is_active AND (c.user_a_id = $1 OR c.user_b_id = $1)
		ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var list []models.Conversation
	for rows.Next() {
		var (
			msgID, senderID, content *string
			attachment               *string
			isRead                   *bool
			readAt, createdAt        *time.Time
			unread                   int
		)
		c, err := scanConversation(rows, &msgID, &senderID, &content, &attachment, &isRead, &readAt, &createdAt, &unread)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.UnreadCount = unread
		if msgID != nil {
			c.LastMessage = &models.Message{
				ID:             *msgID,
				ConversationID: c.ID,
				SenderID:       *senderID,
				Content:        *content,
				AttachmentKey:  attachment,
				IsRead:         *isRead,
				ReadAt:         readAt,
				CreatedAt:      *createdAt,
			}
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// CreateMessage stores a message and bumps the conversation's activity time
func (r *MessageRepository) CreateMessage(ctx context.Context, m *models.Message) error {
	return WithTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, content, attachment_key, is_read, created_at)
			VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
			m.ID, m.ConversationID, m.SenderID, m.Content, m.AttachmentKey, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, m.ConversationID, m.CreatedAt); err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}
		return nil
	})
}

// ListMessages returns one page of a conversation in chronological order; page 0 is the newest
func (r *MessageRepository) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, conversation_id, sender_id, content, attachment_key, is_read, read_at, created_at FROM (
			SELECT * FROM messages WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
		) page ORDER BY created_at`, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Message, error) {
		var m models.Message
		err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.AttachmentKey, &m.IsRead, &m.ReadAt, &m.CreatedAt)
		return m, err
	})
}

// MarkRead marks the messages the reader received in a conversation as read
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID, readerID string, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages SET is_read = TRUE, read_at = $3
		WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read`, conversationID, readerID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UnreadCount counts messages sent to userID that are still unread
func (r *MessageRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE (c.user_a_id = $1 OR c.user_b_id = $1) AND m.sender_id <> $1 AND NOT m.is_read`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return n, nil
}

package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"mjolobid-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	maxMessageLength = 2000
	messagesPerPage  = 50
	typingTTL        = 3 * time.Second
)

// MessageService implements conversations about bids and offers
type MessageService struct {
	messages MessageStore
	bids     BidStore
	offers   OfferStore
	users    UserStore
	media    *MediaService
	hub      Hub
	notifier Notifier
	now      func() time.Time

	typingMu sync.Mutex
	typing   map[string]map[string]time.Time
}

// NewMessageService creates a new message service
func NewMessageService(messages MessageStore, bids BidStore, offers OfferStore, users UserStore, media *MediaService, hub Hub, notifier Notifier) *MessageService {
	return &MessageService{
		messages: messages,
		bids:     bids,
		offers:   offers,
		users:    users,
		media:    media,
		hub:      hub,
		notifier: notifier,
		now:      time.Now,
		typing:   make(map[string]map[string]time.Time),
	}
}

// subject resolves the poster and title of a bid or offer and reports whether userID is a
// counterparty: someone with a candidate on it or its accepted user.
func (s *MessageService) subject(ctx context.Context, subjectType, subjectID, userID string) (posterID, title string, counterparty bool, err error) {
	switch subjectType {
	case models.SubjectBid:
		bid, err := s.bids.GetByID(ctx, subjectID)
		if err != nil {
			return "", "", false, err
		}
		if bid.AcceptedBy != nil && *bid.AcceptedBy == userID {
			return bid.UserID, bid.Title, true, nil
		}
		ok, err := s.bids.HasAcceptance(ctx, subjectID, userID)
		return bid.UserID, bid.Title, ok, err
	case models.SubjectOffer:
		o, err := s.offers.GetByID(ctx, subjectID)
		if err != nil {
			return "", "", false, err
		}
		if o.AcceptedBy != nil && *o.AcceptedBy == userID {
			return o.UserID, o.Title, true, nil
		}
		ok, err := s.offers.HasBid(ctx, subjectID, userID)
		return o.UserID, o.Title, ok, err
	}
	return "", "", false, validationError("subject must be bid or offer")
}

// StartConversation opens, or returns the existing, conversation between the poster of a bid
// or offer and one of its counterparties. A counterparty may omit otherID.
func (s *MessageService) StartConversation(ctx context.Context, userID, subjectType, subjectID, otherID string) (*models.Conversation, error) {
	posterID, _, _, err := s.subject(ctx, subjectType, subjectID, userID)
	if err != nil {
		return nil, err
	}

	var counterpartyID string
	if userID == posterID {
		if otherID == "" || otherID == userID {
			return nil, validationError("choose who to message")
		}
		counterpartyID = otherID
	} else {
		if otherID != "" && otherID != posterID {
			return nil, fmt.Errorf("%w: you can only message the poster", models.ErrForbidden)
		}
		counterpartyID = userID
	}

	_, _, ok, err := s.subject(ctx, subjectType, subjectID, counterpartyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: user has not responded to this listing", models.ErrForbidden)
	}

	other := posterID
	if userID == posterID {
		other = counterpartyID
	}
	c, created, err := s.messages.GetOrCreateConversation(ctx, subjectType, subjectID, userID, other, s.now())
	if err != nil {
		return nil, err
	}
	if created {
		log.Info().Str("conversation_id", c.ID).Str("subject_type", subjectType).Str("subject_id", subjectID).Msg("Conversation started")
	}
	return c, nil
}

// Conversations lists the user's conversations, most recent activity first
func (s *MessageService) Conversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	list, err := s.messages.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Conversation{}
	}
	return list, nil
}

func (s *MessageService) participant(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	c, err := s.messages.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: not a participant of this conversation", models.ErrForbidden)
	}
	return c, nil
}

// Messages returns one page of a conversation and marks what the reader received as read
func (s *MessageService) Messages(ctx context.Context, userID, conversationID string, pageNum int) ([]models.Message, error) {
	if _, err := s.participant(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if pageNum < 0 {
		pageNum = 0
	}
	list, err := s.messages.ListMessages(ctx, conversationID, messagesPerPage, pageNum*messagesPerPage)
	if err != nil {
		return nil, err
	}
	if _, err := s.messages.MarkRead(ctx, conversationID, userID, s.now()); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("Failed to mark messages read")
	}
	if list == nil {
		list = []models.Message{}
	}
	return list, nil
}

// Send stores a message, pushes it to the other participant and notifies them
func (s *MessageService) Send(ctx context.Context, userID, conversationID, content string, attachmentKey *string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" && attachmentKey == nil {
		return nil, validationError("message cannot be empty")
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return nil, validationError("message cannot exceed %d characters", maxMessageLength)
	}
	if attachmentKey != nil && !strings.HasPrefix(*attachmentKey, MediaAttachment+"/"+userID+"/") {
		return nil, validationError("invalid attachment")
	}

	c, err := s.participant(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, fmt.Errorf("%w: conversation is closed", models.ErrInvalidTransition)
	}

	m := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       userID,
		Content:        content,
		AttachmentKey:  attachmentKey,
		CreatedAt:      s.now(),
	}
	if err := s.messages.CreateMessage(ctx, m); err != nil {
		return nil, err
	}
	s.clearTyping(conversationID, userID)

	recipient := c.OtherParticipant(userID)
	if s.hub != nil && s.hub.IsOnline(recipient) {
		if err := s.hub.SendToUser(recipient, WSMessage{
			Type:           FrameChatMessage,
			Timestamp:      m.CreatedAt.UnixMilli(),
			ConversationID: conversationID,
			UserID:         userID,
			Message:        m.Content,
			Data:           m,
		}); err != nil {
			log.Debug().Err(err).Str("user_id", recipient).Msg("Failed to push chat message")
		}
	}

	sender := "Someone"
	if u, err := s.users.GetByID(ctx, userID); err == nil {
		sender = u.Username
	}
	about := c.SubjectType
	if _, title, _, err := s.subject(ctx, c.SubjectType, c.SubjectID, userID); err == nil {
		about = title
	}
	notify(ctx, s.notifier, NotificationInput{
		UserID:            recipient,
		Type:              models.NotifNewMessage,
		Title:             "New Message",
		Message:           fmt.Sprintf("%s sent you a message about %s", sender, about),
		RelatedObjectType: "conversation",
		RelatedObjectID:   conversationID,
	})
	return m, nil
}

// AttachmentUpload presigns an upload for a message attachment
func (s *MessageService) AttachmentUpload(ctx context.Context, userID, conversationID, contentType string) (*UploadURL, error) {
	if _, err := s.participant(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.media.PresignUpload(ctx, MediaAttachment, userID, contentType)
}

// Typing records that userID is typing and relays it to the other participant
func (s *MessageService) Typing(ctx context.Context, userID, conversationID string) error {
	c, err := s.participant(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	now := s.now()

	s.typingMu.Lock()
	s.pruneTypingLocked(now)
	set, ok := s.typing[conversationID]
	if !ok {
		set = make(map[string]time.Time)
		s.typing[conversationID] = set
	}
	set[userID] = now
	s.typingMu.Unlock()

	other := c.OtherParticipant(userID)
	if s.hub == nil || !s.hub.IsOnline(other) {
		return nil
	}
	return s.hub.SendToUser(other, WSMessage{
		Type:           FrameTyping,
		Timestamp:      now.UnixMilli(),
		ConversationID: conversationID,
		UserID:         userID,
	})
}

// TypingUsers returns who typed in the conversation within the last few seconds
func (s *MessageService) TypingUsers(ctx context.Context, userID, conversationID string) ([]string, error) {
	if _, err := s.participant(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	now := s.now()
	s.typingMu.Lock()
	defer s.typingMu.Unlock()
	s.pruneTypingLocked(now)

	users := []string{}
	for id := range s.typing[conversationID] {
		users = append(users, id)
	}
	return users, nil
}

// pruneTypingLocked drops expired entries of every conversation. typingMu must be held.
func (s *MessageService) pruneTypingLocked(now time.Time) {
	for convID, set := range s.typing {
		for id, at := range set {
			if now.Sub(at) > typingTTL {
				delete(set, id)
			}
		}
		if len(set) == 0 {
			delete(s.typing, convID)
		}
	}
}

func (s *MessageService) clearTyping(conversationID, userID string) {
	s.typingMu.Lock()
	defer s.typingMu.Unlock()
	if set, ok := s.typing[conversationID]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(s.typing, conversationID)
		}
	}
}

// UnreadCount counts unread messages across the user's conversations
func (s *MessageService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.messages.UnreadCount(ctx, userID)
}

package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"sikap/api/internal/chat"
	"sikap/api/internal/rbac"
	"sikap/api/internal/store"
)

const (
	contactLimit = 20
	linkChat     = "/dashboard/chat"
)

type MessageInput struct {
	Message    string `json:"message"`
	ReceiverID int64  `json:"receiverId"`
	ReplyToID  *int64 `json:"replyToId"`
}

// SendMessage stores a direct message and notifies the receiver. Users
// without chat:contact-any may only write to admins.
func (s *Service) SendMessage(ctx context.Context, session Session, input MessageInput) (map[string]any, error) {
	content := strings.TrimSpace(input.Message)
	if content == "" || input.ReceiverID <= 0 {
		return nil, validationError("message and receiverId are required")
	}
	if input.ReceiverID == session.UserID {
		return nil, validationError("you cannot message yourself")
	}

	receiver, err := s.store.GetUserByID(ctx, input.ReceiverID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !receiver.IsActive) {
		return nil, validationError("receiver does not exist")
	}
	if err != nil {
		return nil, err
	}
	if !session.can(rbac.ActionChatContactAny) && rbac.Normalize(receiver.Role) != rbac.RoleAdmin {
		return nil, forbidden()
	}

	if input.ReplyToID != nil {
		original, err := s.store.GetMessage(ctx, *input.ReplyToID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, validationError("replyToId does not exist")
		}
		if err != nil {
			return nil, err
		}
		if !sameConversation(original, session.UserID, receiver.ID) {
			return nil, validationError("replyToId belongs to another conversation")
		}
	}

	msg, err := s.store.CreateMessage(ctx, store.Message{
		SenderID:   session.UserID,
		ReceiverID: receiver.ID,
		Content:    content,
		ReplyToID:  input.ReplyToID,
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Dispatch(receiver.ID, "Message from "+session.Name, chat.Preview(content), linkChat)
	return messagePayload(msg), nil
}

func sameConversation(msg store.Message, a, b int64) bool {
	return (msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a)
}

// Messages returns the thread with one partner, oldest first.
func (s *Service) Messages(ctx context.Context, session Session, partnerID int64) (map[string]any, error) {
	if partnerID <= 0 {
		return nil, validationError("partnerId is required")
	}
	messages, err := s.store.ListMessagesBetween(ctx, session.UserID, partnerID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"items": mapEach(messages, messagePayload)}, nil
}

func (s *Service) Conversations(ctx context.Context, session Session) (map[string]any, error) {
	messages, err := s.store.ListMessagesFor(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	conversations := chat.BuildConversations(messages, session.UserID)
	return map[string]any{"items": mapEach(conversations, conversationPayload)}, nil
}

// MarkMessagesRead marks everything the sender sent to the requester as read.
func (s *Service) MarkMessagesRead(ctx context.Context, session Session, senderID int64) (map[string]any, error) {
	if senderID <= 0 {
		return nil, validationError("senderId is required")
	}
	updated, err := s.store.MarkMessagesRead(ctx, senderID, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"updated": updated}, nil
}

func (s *Service) DeleteMessage(ctx context.Context, session Session, id int64) error {
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if msg.SenderID != session.UserID {
		return forbidden()
	}
	return s.store.DeleteMessage(ctx, id)
}

// Contacts searches people the requester may message.
func (s *Service) Contacts(ctx context.Context, session Session, search string) (map[string]any, error) {
	users, err := s.store.SearchContacts(ctx, store.ContactQuery{
		SelfID:     session.UserID,
		Search:     strings.TrimSpace(search),
		AdminsOnly: !session.can(rbac.ActionChatContactAny),
		Limit:      contactLimit,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"items": mapEach(users, contactPayload)}, nil
}

func (s *Service) Admins(ctx context.Context) (map[string]any, error) {
	users, err := s.store.ListAdmins(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"items": mapEach(users, contactPayload)}, nil
}

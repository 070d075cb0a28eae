package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rupesh-2/matrimonial-UI/internal/apierr"
	"github.com/rupesh-2/matrimonial-UI/internal/gateway"
	"github.com/rupesh-2/matrimonial-UI/internal/models"
)

// ConversationPage is one page of conversation summaries.
type ConversationPage struct {
	Conversations []models.Conversation
	Page          models.Page
}

// ThreadPage is one page of the message history with a counterpart.
type ThreadPage struct {
	Messages []models.Message
	Page     models.Page
}

type wireConversation struct {
	User        *wireUser    `json:"user"`
	LastMessage *wireMessage `json:"last_message"`
	UnreadCount flexInt      `json:"unread_count"`
}

type conversationsEnvelope struct {
	wirePage
	Conversations []wireConversation `json:"conversations"`
	Data          []wireConversation `json:"data"`
}

// Conversations fetches one page of conversation summaries, in server order.
func (c *Client) Conversations(ctx context.Context, page int) (ConversationPage, error) {
	var env conversationsEnvelope
	if err := c.gw.Do(ctx, gateway.Request{
		Path:  "/api/messages",
		Query: url.Values{"page": {strconv.Itoa(page)}},
	}, &env); err != nil {
		return ConversationPage{}, err
	}

	raw := env.Conversations
	if len(raw) == 0 {
		raw = env.Data
	}
	out := make([]models.Conversation, 0, len(raw))
	for _, w := range raw {
		if w.User == nil || w.User.ID <= 0 {
			continue
		}
		conv := models.Conversation{
			Counterpart: w.User.identity(),
			UnreadCount: int(w.UnreadCount),
		}
		if w.LastMessage != nil {
			msg := w.LastMessage.model()
			conv.LastMessage = &msg
		}
		out = append(out, conv)
	}
	return ConversationPage{Conversations: out, Page: env.wirePage.page(page, 0)}, nil
}

type threadEnvelope struct {
	wirePage
	Messages []wireMessage `json:"messages"`
	Data     []wireMessage `json:"data"`
}

// Thread fetches one page of history with counterpartID. Order is whatever
// the server returns; the message store sorts it.
func (c *Client) Thread(ctx context.Context, counterpartID int64, page int) (ThreadPage, error) {
	var env threadEnvelope
	if err := c.gw.Do(ctx, gateway.Request{
		Path:  fmt.Sprintf("/api/messages/%d", counterpartID),
		Query: url.Values{"page": {strconv.Itoa(page)}},
	}, &env); err != nil {
		return ThreadPage{}, err
	}

	raw := env.Messages
	if len(raw) == 0 {
		raw = env.Data
	}
	out := make([]models.Message, 0, len(raw))
	for _, w := range raw {
		msg := w.model()
		if msg.ID <= 0 {
			continue
		}
		out = append(out, msg)
	}
	return ThreadPage{Messages: out, Page: env.wirePage.page(page, 0)}, nil
}

type sendRequest struct {
	ToUserID int64  `json:"to_user_id"`
	Message  string `json:"message"`
}

// Send posts content to counterpartID and returns the stored message.
func (c *Client) Send(ctx context.Context, counterpartID int64, content string) (models.Message, error) {
	var env struct {
		Data *wireMessage `json:"data"`
	}
	if err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/api/messages/send",
		Body:   sendRequest{ToUserID: counterpartID, Message: content},
	}, &env); err != nil {
		return models.Message{}, err
	}
	if env.Data == nil || env.Data.ID <= 0 {
		return models.Message{}, apierr.Application(http.StatusOK, "invalid_response", "server did not return the sent message")
	}
	return env.Data.model(), nil
}

// MarkRead marks every message from counterpartID as read.
func (c *Client) MarkRead(ctx context.Context, counterpartID int64) error {
	return c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/api/messages/%d/read", counterpartID),
	}, nil)
}

// DeleteMessage deletes one of the current user's messages.
func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	return c.gw.Do(ctx, gateway.Request{
		Method: http.MethodDelete,
		Path:   fmt.Sprintf("/api/messages/%d", messageID),
	}, nil)
}

// UnreadCount returns the server's total unread message count.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var env struct {
		UnreadCount flexInt `json:"unread_count"`
	}
	if err := c.gw.Do(ctx, gateway.Request{Path: "/api/messages/unread-count"}, &env); err != nil {
		return 0, err
	}
	return int(env.UnreadCount), nil
}

// DecodeMessage parses a message pushed outside the REST API, e.g. by the
// chat socket, accepting the same field variants as the endpoints.
func DecodeMessage(raw []byte) (models.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return models.Message{}, fmt.Errorf("decode message: %w", err)
	}
	if w.ID <= 0 {
		return models.Message{}, fmt.Errorf("decode message: missing id")
	}
	return w.model(), nil
}

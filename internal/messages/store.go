// Package messages holds the conversation list and the open message thread.
// The two collections are refreshed independently: marking a thread read does
// not touch the server-sourced unread counts in the list.
package messages

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/rupesh-2/matrimonial-UI/internal/api"
	"github.com/rupesh-2/matrimonial-UI/internal/apierr"
	"github.com/rupesh-2/matrimonial-UI/internal/logging"
	"github.com/rupesh-2/matrimonial-UI/internal/models"
	"github.com/rupesh-2/matrimonial-UI/internal/observe"
	"github.com/rupesh-2/matrimonial-UI/internal/optimistic"
	"github.com/rupesh-2/matrimonial-UI/internal/paging"
)

// ErrReset is returned when Reset ran while the request was in flight. The
// response is not applied to the store.
var ErrReset = errors.New("messages: store was reset during the request")

// API is the slice of the REST client the message store needs.
type API interface {
	Conversations(ctx context.Context, page int) (api.ConversationPage, error)
	Thread(ctx context.Context, counterpartID int64, page int) (api.ThreadPage, error)
	Send(ctx context.Context, counterpartID int64, content string) (models.Message, error)
	MarkRead(ctx context.Context, counterpartID int64) error
	DeleteMessage(ctx context.Context, messageID int64) error
	UnreadCount(ctx context.Context) (int, error)
}

// Snapshot is the message state handed to subscribers.
type Snapshot struct {
	Version           uint64
	Conversations     []models.Conversation
	ConversationsPage models.Page
	// Counterpart is the user whose thread is open, or 0.
	Counterpart int64
	// Thread is ordered oldest to newest.
	Thread               []models.Message
	ThreadPage           models.Page
	UnreadTotal          int
	LoadingConversations bool
	LoadingThread        bool
	Sending              int
	Err                  string
}

// Store is the message state container.
type Store struct {
	api API

	mu            sync.Mutex
	conversations []models.Conversation
	convPage      models.Page
	convGuard     paging.Guard
	convLoading   bool
	convMore      bool

	counterpart   int64
	thread        []models.Message
	threadPage    models.Page
	threadGuard   paging.Guard
	threadLoading bool
	threadMore    bool

	// epoch changes on Reset; responses from an older epoch are dropped.
	epoch   uint64
	unread  int
	sending int
	err     string
	version uint64

	hub observe.Hub[Snapshot]
}

// New builds an empty message store.
func New(client API) *Store {
	if client == nil {
		panic("messages: api is required")
	}
	return &Store{api: client}
}

// Subscribe registers fn for every change.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	return s.hub.Subscribe(fn)
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// FetchConversations loads one page of conversations. Page 1 replaces the
// list; later pages append. Any failure other than an authentication failure
// yields an empty page without an error.
func (s *Store) FetchConversations(ctx context.Context, page int) (err error) {
	page = paging.NormalizePage(page)
	ctx, span := logging.StartSpan(ctx, "messages.conversations", "page", page)
	defer func() { span.End(err) }()

	s.mu.Lock()
	var ticket uint64
	if page == 1 {
		ticket = s.convGuard.Begin()
		s.convLoading, s.convMore = true, false
	} else {
		if s.convLoading || s.convMore {
			s.mu.Unlock()
			return nil
		}
		ticket = s.convGuard.Current()
		s.convMore = true
	}
	snap := s.bumpLocked()
	s.mu.Unlock()
	s.hub.Publish(snap)

	res, err := s.api.Conversations(ctx, page)
	if err != nil && !errors.Is(err, apierr.ErrAuthentication) {
		span.Logger().Warn("conversation list unavailable, showing none", "error", err)
		res, err = api.ConversationPage{Page: models.Page{CurrentPage: page, LastPage: page}}, nil
	}

	s.mu.Lock()
	if !s.convGuard.Valid(ticket) {
		s.mu.Unlock()
		return err
	}
	if page == 1 {
		s.convLoading = false
	} else {
		s.convMore = false
	}
	switch {
	case err != nil:
		s.err = apierr.Message(err)
	case page == 1:
		s.conversations = paging.Dedupe(res.Conversations, conversationKey)
		s.convPage = res.Page
	default:
		s.conversations = paging.Merge(s.conversations, res.Conversations, conversationKey)
		s.convPage = res.Page
	}
	snap = s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
	return err
}

// LoadMoreConversations appends the next conversation page when one exists.
func (s *Store) LoadMoreConversations(ctx context.Context) error {
	s.mu.Lock()
	page := s.convPage
	s.mu.Unlock()
	if !page.HasMore() {
		return nil
	}
	return s.FetchConversations(ctx, page.CurrentPage+1)
}

// FetchThread opens the thread with counterpartID and replaces it with the
// newest page of history. Responses for a previously opened thread are
// discarded.
func (s *Store) FetchThread(ctx context.Context, counterpartID int64) (err error) {
	if counterpartID <= 0 {
		err = apierr.Validation("invalid conversation partner")
		s.recordError(err)
		return err
	}

	ctx, span := logging.StartSpan(ctx, "messages.thread", "counterpart_id", counterpartID)
	defer func() { span.End(err) }()

	s.mu.Lock()
	ticket := s.threadGuard.Begin()
	if s.counterpart != counterpartID {
		s.counterpart = counterpartID
		s.thread = nil
		s.threadPage = models.Page{}
	}
	s.threadLoading, s.threadMore = true, false
	snap := s.bumpLocked()
	s.mu.Unlock()
	s.hub.Publish(snap)

	res, err := s.api.Thread(ctx, counterpartID, 1)

	s.mu.Lock()
	if !s.threadGuard.Valid(ticket) {
		s.mu.Unlock()
		return err
	}
	s.threadLoading = false
	if err != nil {
		s.err = apierr.Message(err)
	} else {
		s.thread = sortThread(paging.Dedupe(res.Messages, messageKey))
		s.threadPage = res.Page
		s.err = ""
	}
	snap = s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
	return err
}

// LoadOlder merges the next page of history into the open thread.
func (s *Store) LoadOlder(ctx context.Context) (err error) {
	s.mu.Lock()
	if s.counterpart == 0 || s.threadLoading || s.threadMore || !s.threadPage.HasMore() {
		s.mu.Unlock()
		return nil
	}
	counterpartID, page := s.counterpart, s.threadPage.CurrentPage+1
	ticket := s.threadGuard.Current()
	s.threadMore = true
	snap := s.bumpLocked()
	s.mu.Unlock()
	s.hub.Publish(snap)

	ctx, span := logging.StartSpan(ctx, "messages.thread_older", "counterpart_id", counterpartID, "page", page)
	defer func() { span.End(err) }()

	res, err := s.api.Thread(ctx, counterpartID, page)

	s.mu.Lock()
	if !s.threadGuard.Valid(ticket) {
		s.mu.Unlock()
		return err
	}
	s.threadMore = false
	if err != nil {
		s.err = apierr.Message(err)
	} else {
		s.thread = sortThread(paging.Merge(s.thread, res.Messages, messageKey))
		s.threadPage = res.Page
	}
	snap = s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
	return err
}

// Send delivers content to counterpartID. The message joins the thread only
// once the server has acknowledged it with an id.
func (s *Store) Send(ctx context.Context, counterpartID int64, content string) (msg models.Message, err error) {
	content = strings.TrimSpace(content)
	switch {
	case content == "":
		err = apierr.Validation("message cannot be empty")
	case counterpartID <= 0:
		err = apierr.Validation("invalid conversation partner")
	}
	if err != nil {
		s.recordError(err)
		return models.Message{}, err
	}

	ctx, span := logging.StartSpan(ctx, "messages.send", "counterpart_id", counterpartID)
	defer func() { span.End(err) }()

	s.mu.Lock()
	epoch := s.epoch
	s.sending++
	snap := s.bumpLocked()
	s.mu.Unlock()
	s.hub.Publish(snap)

	msg, err = s.api.Send(ctx, counterpartID, content)
	if apierr.StatusOf(err) == http.StatusForbidden {
		err = apierr.NotMatched(err)
	}

	s.mu.Lock()
	s.sending--
	switch {
	case s.epoch != epoch:
		if err == nil {
			err = ErrReset
		}
	case err != nil:
		s.err = apierr.Message(err)
	default:
		if s.counterpart == 0 {
			s.counterpart = counterpartID
		}
		if s.counterpart == counterpartID {
			s.thread = sortThread(paging.Merge(s.thread, []models.Message{msg}, messageKey))
		}
		s.err = ""
	}
	snap = s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// MarkRead flips the counterpart's messages in the open thread to read and
// tells the server. A failed remote call leaves the local flip in place;
// only an authentication failure is reported.
func (s *Store) MarkRead(ctx context.Context, counterpartID int64) (err error) {
	if counterpartID <= 0 {
		return apierr.Validation("invalid conversation partner")
	}

	ctx, span := logging.StartSpan(ctx, "messages.mark_read", "counterpart_id", counterpartID)
	defer func() { span.End(err) }()

	s.mu.Lock()
	epoch := s.epoch
	if s.counterpart == counterpartID {
		thread := slices.Clone(s.thread)
		for i := range thread {
			if thread[i].SenderID == counterpartID {
				thread[i].IsRead = true
			}
		}
		s.thread = thread
	}
	snap := s.bumpLocked()
	s.mu.Unlock()
	s.hub.Publish(snap)

	if err := s.api.MarkRead(ctx, counterpartID); err != nil {
		if errors.Is(err, apierr.ErrAuthentication) {
			s.recordErrorAt(epoch, err)
			return err
		}
		span.Logger().Warn("mark read failed, keeping local read state", "error", err)
	}
	return nil
}

// Receive adds a message delivered outside a request, e.g. over the realtime
// channel. It reports whether the open thread changed.
func (s *Store) Receive(msg models.Message) bool {
	if msg.ID <= 0 {
		return false
	}

	s.mu.Lock()
	if s.counterpart == 0 || (msg.SenderID != s.counterpart && msg.ReceiverID != s.counterpart) {
		s.mu.Unlock()
		return false
	}
	if slices.ContainsFunc(s.thread, func(m models.Message) bool { return m.ID == msg.ID }) {
		s.mu.Unlock()
		return false
	}
	s.thread = sortThread(append(slices.Clone(s.thread), msg))
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
	return true
}

// DeleteMessage removes a message from the open thread, restoring it when the
// server refuses.
func (s *Store) DeleteMessage(ctx context.Context, messageID int64) (err error) {
	if messageID <= 0 {
		err = apierr.Validation("invalid message id")
		s.recordError(err)
		return err
	}

	ctx, span := logging.StartSpan(ctx, "messages.delete", "message_id", messageID)
	defer func() { span.End(err) }()

	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	update := optimistic.Update[[]models.Message]{
		Snapshot: func() []models.Message {
			s.mu.Lock()
			defer s.mu.Unlock()
			return slices.Clone(s.thread)
		},
		Apply: func() {
			s.mu.Lock()
			s.thread = slices.DeleteFunc(slices.Clone(s.thread), func(m models.Message) bool { return m.ID == messageID })
			snap := s.bumpLocked()
			s.mu.Unlock()
			s.hub.Publish(snap)
		},
		Restore: func(prev []models.Message) {
			s.mu.Lock()
			if s.epoch != epoch {
				s.mu.Unlock()
				return
			}
			// Keep messages that arrived meanwhile.
			s.thread = sortThread(paging.Merge(s.thread, prev, messageKey))
			snap := s.bumpLocked()
			s.mu.Unlock()
			s.hub.Publish(snap)
		},
	}
	if err = update.Run(ctx, func(ctx context.Context) error {
		return s.api.DeleteMessage(ctx, messageID)
	}); err != nil {
		s.recordErrorAt(epoch, err)
		return err
	}
	return nil
}

// FetchUnreadCount refreshes the server's total unread count.
func (s *Store) FetchUnreadCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	n, err := s.api.UnreadCount(ctx)
	if err != nil {
		s.recordErrorAt(epoch, err)
		return 0, err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return 0, ErrReset
	}
	s.unread = n
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
	return n, nil
}

// CloseThread leaves the open thread; its pending responses are discarded.
func (s *Store) CloseThread() {
	s.mu.Lock()
	s.threadGuard.Begin()
	s.counterpart = 0
	s.thread = nil
	s.threadPage = models.Page{}
	s.threadLoading, s.threadMore = false, false
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

// ClearError drops the recorded error.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = ""
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

// Reset forgets everything, e.g. on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	s.epoch++
	s.convGuard.Begin()
	s.threadGuard.Begin()
	s.conversations = nil
	s.convPage = models.Page{}
	s.convLoading, s.convMore = false, false
	s.counterpart = 0
	s.thread = nil
	s.threadPage = models.Page{}
	s.threadLoading, s.threadMore = false, false
	s.unread = 0
	s.err = ""
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

func (s *Store) recordError(err error) {
	s.mu.Lock()
	s.err = apierr.Message(err)
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

func (s *Store) recordErrorAt(epoch uint64, err error) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.err = apierr.Message(err)
	snap := s.bumpLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
}

func (s *Store) bumpLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Version:              s.version,
		Conversations:        slices.Clone(s.conversations),
		ConversationsPage:    s.convPage,
		Counterpart:          s.counterpart,
		Thread:               slices.Clone(s.thread),
		ThreadPage:           s.threadPage,
		UnreadTotal:          s.unread,
		LoadingConversations: s.convLoading || s.convMore,
		LoadingThread:        s.threadLoading || s.threadMore,
		Sending:              s.sending,
		Err:                  s.err,
	}
}

// sortThread orders messages oldest first; ids break timestamp ties.
func sortThread(msgs []models.Message) []models.Message {
	slices.SortStableFunc(msgs, func(a, b models.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return msgs
}

func conversationKey(c models.Conversation) int64 {
	return c.Counterpart.ID
}

func messageKey(m models.Message) int64 {
	return m.ID
}

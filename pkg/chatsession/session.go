package chatsession

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-server/pkg/chatclient"
)

// Phase is the lifecycle stage of the exchange currently in flight, if any.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseAwaitingReply
	PhaseRevealing
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSubmitting:
		return "submitting"
	case PhaseAwaitingReply:
		return "awaiting_reply"
	case PhaseRevealing:
		return "revealing"
	case PhaseSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// inFlight reports whether the phase holds the submission lock.
func (p Phase) inFlight() bool {
	return p == PhaseSubmitting || p == PhaseAwaitingReply || p == PhaseRevealing
}

var (
	ErrSubmissionInFlight = errors.New("a message is already in flight")
	ErrEmptyInput         = errors.New("message text is empty")
	ErrNoConversation     = errors.New("no conversation selected")
)

// Service is the conversation API surface the session drives.
type Service interface {
	CreateConversation(ctx context.Context) (*chatclient.Conversation, error)
	ListConversations(ctx context.Context) ([]chatclient.Conversation, error)
	RenameConversation(ctx context.Context, chatID, name string) (bool, error)
	DeleteConversation(ctx context.Context, chatID string) (bool, error)
	SendMessage(ctx context.Context, chatID, prompt string) (*chatclient.Message, error)
}

// revealTask is one scheduled word-by-word disclosure, keyed to its exchange
// so a stale task can be cancelled when the user moves on.
type revealTask struct {
	exchangeID string
	chatID     string
	full       string
	cancel     context.CancelFunc
	done       chan struct{}
}

// Session mirrors one user's conversations and the lifecycle of a single
// in-flight exchange. At most one exchange may be submitting, awaiting a
// reply, or revealing at any time; a submit during that window is rejected
// with a notice, never queued.
type Session struct {
	api            Service
	log            zerolog.Logger
	revealInterval time.Duration
	onNotice       func(string)
	onReveal       func(chatID, content string)

	mu            sync.Mutex
	conversations []chatclient.Conversation
	selectedID    string
	draft         string
	phase         Phase
	reveal        *revealTask
}

// Option customizes a session.
type Option func(*Session)

// WithRevealInterval sets the fixed tick between token reveals.
func WithRevealInterval(interval time.Duration) Option {
	return func(s *Session) {
		if interval > 0 {
			s.revealInterval = interval
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) {
		s.log = log.With().Str("component", "chat-session").Logger()
	}
}

// WithNoticeFunc registers a callback for user-visible notices such as a
// rejected submit or a failed send.
func WithNoticeFunc(fn func(string)) Option {
	return func(s *Session) {
		s.onNotice = fn
	}
}

// WithRevealObserver registers a callback invoked after every reveal
// mutation with the content displayed so far.
func WithRevealObserver(fn func(chatID, content string)) Option {
	return func(s *Session) {
		s.onReveal = fn
	}
}

const defaultRevealInterval = 100 * time.Millisecond

// New creates a session over the given conversation API.
func New(api Service, opts ...Option) *Session {
	s := &Session{
		api:            api,
		log:            zerolog.Nop(),
		revealInterval: defaultRevealInterval,
		phase:          PhaseIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh reloads the conversation list from the server, sorted most recently
// updated first. A user with no conversations gets one created for them.
func (s *Session) Refresh(ctx context.Context) error {
	s.cancelReveal()

	list, err := s.api.ListConversations(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		conv, err := s.api.CreateConversation(ctx)
		if err != nil {
			return err
		}
		list = []chatclient.Conversation{*conv}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = list
	s.sortLocked()
	if s.findLocked(s.selectedID) < 0 {
		s.selectedID = s.conversations[0].ID
	}
	return nil
}

// Create starts a new conversation and selects it.
func (s *Session) Create(ctx context.Context) (*chatclient.Conversation, error) {
	conv, err := s.api.CreateConversation(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.conversations = append([]chatclient.Conversation{*conv}, s.conversations...)
	s.selectedID = conv.ID
	s.mu.Unlock()
	return conv, nil
}

// Rename changes a conversation title locally and on the server. A rename
// the server did not apply leaves local state untouched.
func (s *Session) Rename(ctx context.Context, chatID, name string) (bool, error) {
	applied, err := s.api.RenameConversation(ctx, chatID, name)
	if err != nil || !applied {
		return applied, err
	}

	s.mu.Lock()
	if i := s.findLocked(chatID); i >= 0 {
		s.conversations[i].Title = name
	}
	s.mu.Unlock()
	return true, nil
}

// Delete removes a conversation locally and on the server. Deleting the
// selected conversation moves the selection to the most recent remaining one.
func (s *Session) Delete(ctx context.Context, chatID string) (bool, error) {
	applied, err := s.api.DeleteConversation(ctx, chatID)
	if err != nil || !applied {
		return applied, err
	}

	s.mu.Lock()
	if i := s.findLocked(chatID); i >= 0 {
		s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
	}
	if s.selectedID == chatID {
		s.selectedID = ""
		if len(s.conversations) > 0 {
			s.selectedID = s.conversations[0].ID
		}
	}
	s.mu.Unlock()
	return true, nil
}

// SelectConversation switches the selected conversation. Any pending reveal
// is cancelled first; its message snaps to the full reply text.
func (s *Session) SelectConversation(chatID string) error {
	s.cancelReveal()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(chatID) < 0 {
		return fmt.Errorf("unknown conversation %q", chatID)
	}
	s.selectedID = chatID
	return nil
}

// SetDraft replaces the input field contents.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
}

// Draft returns the current input field contents.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Phase returns the current exchange phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Conversations returns a copy of the conversation list, most recently
// updated first.
func (s *Session) Conversations() []chatclient.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chatclient.Conversation, len(s.conversations))
	for i, conv := range s.conversations {
		out[i] = copyConversation(conv)
	}
	return out
}

// Selected returns a copy of the selected conversation.
func (s *Session) Selected() (chatclient.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findLocked(s.selectedID)
	if i < 0 {
		return chatclient.Conversation{}, false
	}
	return copyConversation(s.conversations[i]), true
}

// Submit sends the current draft to the selected conversation. The draft is
// cleared and the user message appears in the view immediately, before any
// server confirmation. On failure the draft is restored and the optimistic
// message stays in the view. On success the assistant reply is revealed one
// token per tick until the full text is shown.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.phase.inFlight() {
		s.mu.Unlock()
		s.notify("a message is already in flight, wait for it to finish")
		return ErrSubmissionInFlight
	}
	prompt := strings.TrimSpace(s.draft)
	if prompt == "" {
		s.mu.Unlock()
		s.notify("type a message before sending")
		return ErrEmptyInput
	}
	if s.selectedID == "" {
		s.mu.Unlock()
		return ErrNoConversation
	}

	s.phase = PhaseSubmitting
	draft := s.draft
	s.draft = ""
	chatID := s.selectedID
	s.appendMessageLocked(chatID, chatclient.Message{
		Role:      "user",
		Content:   prompt,
		Timestamp: time.Now(),
	})
	s.phase = PhaseAwaitingReply
	s.mu.Unlock()

	reply, err := s.api.SendMessage(ctx, chatID, prompt)
	if err != nil {
		s.mu.Lock()
		s.phase = PhaseIdle
		s.draft = draft
		s.mu.Unlock()
		s.notify(fmt.Sprintf("send failed: %v", err))
		return err
	}

	s.startReveal(chatID, *reply)
	return nil
}

// Wait blocks until any pending reveal has finished.
func (s *Session) Wait() {
	s.mu.Lock()
	task := s.reveal
	s.mu.Unlock()
	if task != nil {
		<-task.done
	}
}

func (s *Session) startReveal(chatID string, reply chatclient.Message) {
	tokens := strings.Fields(reply.Content)
	ctx, cancel := context.WithCancel(context.Background())
	task := &revealTask{
		exchangeID: uuid.NewString(),
		chatID:     chatID,
		full:       reply.Content,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	s.phase = PhaseRevealing
	s.reveal = task
	s.appendMessageLocked(chatID, chatclient.Message{
		Role:      "assistant",
		Content:   "",
		Timestamp: reply.Timestamp,
	})
	s.mu.Unlock()
	s.observe(chatID, "")

	go s.runReveal(ctx, task, tokens)
}

func (s *Session) runReveal(ctx context.Context, task *revealTask, tokens []string) {
	defer close(task.done)

	ticker := time.NewTicker(s.revealInterval)
	defer ticker.Stop()

	for i := 1; i <= len(tokens); i++ {
		select {
		case <-ctx.Done():
			s.settleReveal(task)
			return
		case <-ticker.C:
			if i == len(tokens) {
				s.settleReveal(task)
				return
			}
			content := strings.Join(tokens[:i], " ")
			s.mu.Lock()
			s.setLastContentLocked(task.chatID, content)
			s.mu.Unlock()
			s.observe(task.chatID, content)
		}
	}

	// empty reply: the placeholder is already the final state
	s.settleReveal(task)
}

// settleReveal writes the full reply text and releases the submission lock.
// Used for both natural completion and cancellation, so a cancelled reveal
// still leaves the view textually equal to the full reply.
func (s *Session) settleReveal(task *revealTask) {
	s.mu.Lock()
	s.setLastContentLocked(task.chatID, task.full)
	if s.reveal == task {
		s.reveal = nil
		s.phase = PhaseSettled
	}
	s.mu.Unlock()
	s.observe(task.chatID, task.full)
}

// cancelReveal stops a pending reveal and waits for it to settle. Callers
// must not hold the mutex.
func (s *Session) cancelReveal() {
	s.mu.Lock()
	task := s.reveal
	s.mu.Unlock()
	if task == nil {
		return
	}
	task.cancel()
	<-task.done
}

func (s *Session) appendMessageLocked(chatID string, msg chatclient.Message) {
	i := s.findLocked(chatID)
	if i < 0 {
		return
	}
	s.conversations[i].Messages = append(s.conversations[i].Messages, msg)
	s.conversations[i].UpdatedAt = msg.Timestamp
	s.sortLocked()
}

func (s *Session) setLastContentLocked(chatID, content string) {
	i := s.findLocked(chatID)
	if i < 0 {
		return
	}
	messages := s.conversations[i].Messages
	if len(messages) == 0 {
		return
	}
	messages[len(messages)-1].Content = content
}

// copyConversation clones the message slice as well. The reveal goroutine
// mutates the last message in place, so a shallow copy would alias live state.
func copyConversation(conv chatclient.Conversation) chatclient.Conversation {
	out := conv
	out.Messages = append([]chatclient.Message(nil), conv.Messages...)
	return out
}

func (s *Session) findLocked(chatID string) int {
	if chatID == "" {
		return -1
	}
	for i := range s.conversations {
		if s.conversations[i].ID == chatID {
			return i
		}
	}
	return -1
}

func (s *Session) sortLocked() {
	sort.SliceStable(s.conversations, func(i, j int) bool {
		return s.conversations[i].UpdatedAt.After(s.conversations[j].UpdatedAt)
	})
}

func (s *Session) notify(notice string) {
	s.log.Debug().Str("notice", notice).Msg("session notice")
	if s.onNotice != nil {
		s.onNotice(notice)
	}
}

func (s *Session) observe(chatID, content string) {
	if s.onReveal != nil {
		s.onReveal(chatID, content)
	}
}

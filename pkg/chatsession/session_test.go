package chatsession_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"testing"

	"chat-server/pkg/chatclient"
	"chat-server/pkg/chatsession"
)

// fakeService is an in-memory conversation API.
type fakeService struct {
	mu            sync.Mutex
	conversations map[string]*chatclient.Conversation
	nextID        int

	reply     string
	sendErr   error
	sendCalls int
	sendGate  chan struct{} // when set, SendMessage blocks until closed
}

func newFakeService(reply string) *fakeService {
	return &fakeService{
		conversations: make(map[string]*chatclient.Conversation),
		reply:         reply,
	}
}

func (f *fakeService) CreateConversation(ctx context.Context) (*chatclient.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	conv := &chatclient.Conversation{
		ID:        fmt.Sprintf("conv_%d", f.nextID),
		Title:     "New Chat",
		Messages:  []chatclient.Message{},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.conversations[conv.ID] = conv
	clone := *conv
	return &clone, nil
}

func (f *fakeService) ListConversations(ctx context.Context) ([]chatclient.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chatclient.Conversation, 0, len(f.conversations))
	for _, conv := range f.conversations {
		out = append(out, *conv)
	}
	return out, nil
}

func (f *fakeService) RenameConversation(ctx context.Context, chatID, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[chatID]
	if !ok {
		return false, nil
	}
	conv.Title = name
	return true, nil
}

func (f *fakeService) DeleteConversation(ctx context.Context, chatID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conversations[chatID]; !ok {
		return false, nil
	}
	delete(f.conversations, chatID)
	return true, nil
}

func (f *fakeService) SendMessage(ctx context.Context, chatID, prompt string) (*chatclient.Message, error) {
	f.mu.Lock()
	f.sendCalls++
	gate := f.sendGate
	sendErr := f.sendErr
	reply := f.reply
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if sendErr != nil {
		return nil, sendErr
	}
	return &chatclient.Message{
		Role:      "assistant",
		Content:   reply,
		Timestamp: time.Now(),
	}, nil
}

func (f *fakeService) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls
}

// revealRecorder collects every displayed reveal state.
type revealRecorder struct {
	mu     sync.Mutex
	states []string
}

func (r *revealRecorder) observe(_, content string) {
	r.mu.Lock()
	r.states = append(r.states, content)
	r.mu.Unlock()
}

func (r *revealRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func newSession(api chatsession.Service, recorder *revealRecorder, notices *[]string) *chatsession.Session {
	opts := []chatsession.Option{
		chatsession.WithRevealInterval(time.Millisecond),
	}
	if recorder != nil {
		opts = append(opts, chatsession.WithRevealObserver(recorder.observe))
	}
	if notices != nil {
		var mu sync.Mutex
		opts = append(opts, chatsession.WithNoticeFunc(func(n string) {
			mu.Lock()
			*notices = append(*notices, n)
			mu.Unlock()
		}))
	}
	return chatsession.New(api, opts...)
}

func TestRefreshCreatesFallbackConversation(t *testing.T) {
	api := newFakeService("hi")
	session := newSession(api, nil, nil)

	if err := session.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conversations := session.Conversations()
	if len(conversations) != 1 {
		t.Fatalf("expected a fallback conversation, got %d", len(conversations))
	}
	selected, ok := session.Selected()
	if !ok {
		t.Fatal("expected the fallback conversation to be selected")
	}
	if selected.Title != "New Chat" || len(selected.Messages) != 0 {
		t.Fatalf("unexpected fallback conversation: %+v", selected)
	}
}

func TestConversationsSortedByUpdatedAt(t *testing.T) {
	api := newFakeService("hi")
	older, _ := api.CreateConversation(context.Background())
	newer, _ := api.CreateConversation(context.Background())

	api.mu.Lock()
	api.conversations[older.ID].UpdatedAt = time.Now().Add(-time.Hour)
	api.conversations[newer.ID].UpdatedAt = time.Now()
	api.mu.Unlock()

	session := newSession(api, nil, nil)
	if err := session.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conversations := session.Conversations()
	if len(conversations) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(conversations))
	}
	if conversations[0].ID != newer.ID {
		t.Fatalf("expected most recently updated first, got %s", conversations[0].ID)
	}
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	api := newFakeService("hi")
	var notices []string
	session := newSession(api, nil, &notices)
	if err := session.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session.SetDraft("   ")
	if err := session.Submit(context.Background()); !errors.Is(err, chatsession.ErrEmptyInput) {
		t.Fatalf("expected empty input rejection, got %v", err)
	}
	if api.calls() != 0 {
		t.Fatal("empty input must not reach the server")
	}
	if len(notices) != 1 {
		t.Fatalf("expected a user-visible notice, got %d", len(notices))
	}
}

func TestRevealMonotonicity(t *testing.T) {
	api := newFakeService("hi there friend")
	recorder := &revealRecorder{}
	session := newSession(api, recorder, nil)
	if err := session.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session.SetDraft("hello")
	if err := session.Submit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	session.Wait()

	want := []string{"", "hi", "hi there", "hi there friend"}
	got := recorder.snapshot()
	if len(got) != len(want) {
		t.Fatalf("expected %d reveal states, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reveal state %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	for i := 1; i < len(got); i++ {
		if !strings.HasPrefix(got[i], got[i-1]) {
			t.Fatalf("reveal state %d (%q) is not an extension of %q", i, got[i], got[i-1])
		}
	}

	selected, _ := session.Selected()
	last := selected.Messages[len(selected.Messages)-1]
	if last.Role != "assistant" || last.Content != "hi there friend" {
		t.Fatalf("final view must equal the full reply, got %+v", last)
	}
	if session.Phase() != chatsession.PhaseSettled {
		t.Fatalf("expected settled phase, got %v", session.Phase())
	}
}

func TestSubmissionLock(t *testing.T) {
	api := newFakeService("hi")
	gate := make(chan struct{})
	api.sendGate = gate

	var notices []string
	session := newSession(api, nil, &notices)
	if err := session.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session.SetDraft("first")
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- session.Submit(context.Background())
	}()

	// wait for the first submission to reach the in-flight call
	deadline := time.After(2 * time.Second)
	for api.calls() == 0 {
		select {
		case <-deadline:
			t.Fatal("first submission never reached the server")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	session.SetDraft("second")
	if err := session.Submit(context.Background()); !errors.Is(err, chatsession.ErrSubmissionInFlight) {
		t.Fatalf("expected the second submit to be rejected, got %v", err)
	}
	if api.calls() != 1 {
		t.Fatalf("rejected submit must not start a second server call, got %d", api.calls())
	}
	if len(notices) == 0 {
		t.Fatal("rejected submit must surface a notice")
	}

	selected, _ := session.Selected()
	userMessages := 0
	for _, msg := range selected.Messages {
		if msg.Role == "user" {
			userMessages++
		}
	}
	if userMessages != 1 {
		t.Fatalf("rejected submit must not append a second user message, got %d", userMessages)
	}

	close(gate)
	if err := <-firstDone; err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	session.Wait()
}

func TestSendFailureRestoresDraftAndKeepsOptimisticMessage(t *testing.T) {
	api := newFakeService("")
	api.sendErr = errors.New("gateway down")

	var notices []string
	session := newSession(api, nil, &notices)
	if err := session.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session.SetDraft("my careful draft")
	if err := session.Submit(context.Background()); err == nil {
		t.Fatal("expected the send failure to surface")
	}

	if session.Draft() != "my careful draft" {
		t.Fatalf("draft must be restored after failure, got %q", session.Draft())
	}
	if session.Phase() != chatsession.PhaseIdle {
		t.Fatalf("expected idle phase after failure, got %v", session.Phase())
	}

	selected, _ := session.Selected()
	if len(selected.Messages) != 1 {
		t.Fatalf("optimistic user message must stay in the view, got %d messages", len(selected.Messages))
	}
	if selected.Messages[0].Role != "user" || selected.Messages[0].Content != "my careful draft" {
		t.Fatalf("unexpected optimistic message: %+v", selected.Messages[0])
	}
	if len(notices) == 0 {
		t.Fatal("send failure must surface a notice")
	}
}

func TestSubmitClearsDraftImmediately(t *testing.T) {
	api := newFakeService("ok")
	session := newSession(api, nil, nil)
	if err := session.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session.SetDraft("hello")
	if err := session.Submit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Draft() != "" {
		t.Fatalf("draft must be cleared on successful submit, got %q", session.Draft())
	}
	session.Wait()
}

func TestEmptyReplyRevealsSingleState(t *testing.T) {
	api := newFakeService("")
	recorder := &revealRecorder{}
	session := newSession(api, recorder, nil)
	if err := session.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session.SetDraft("hello")
	if err := session.Submit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	session.Wait()

	got := recorder.snapshot()
	// placeholder and final state are both empty for a zero-token reply
	if len(got) != 2 || got[0] != "" || got[1] != "" {
		t.Fatalf("unexpected reveal states for empty reply: %q", got)
	}
	if session.Phase() != chatsession.PhaseSettled {
		t.Fatalf("expected settled phase, got %v", session.Phase())
	}
}

func TestSwitchCancelsPendingReveal(t *testing.T) {
	api := newFakeService(strings.Repeat("word ", 500))
	session := newSession(api, nil, nil)
	if err := session.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, _ := session.Selected()

	other, err := session.Create(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := session.SelectConversation(first.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session.SetDraft("hello")
	if err := session.Submit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Phase() != chatsession.PhaseRevealing {
		t.Fatalf("expected revealing phase, got %v", session.Phase())
	}

	// switching conversations cancels the reveal and snaps to the full text
	if err := session.SelectConversation(other.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Phase() != chatsession.PhaseSettled {
		t.Fatalf("expected settled phase after switch, got %v", session.Phase())
	}

	if err := session.SelectConversation(first.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	selected, _ := session.Selected()
	last := selected.Messages[len(selected.Messages)-1]
	if last.Content != strings.Repeat("word ", 500) {
		t.Fatal("cancelled reveal must leave the full reply text in the view")
	}
}

func TestDeleteSelectedMovesSelection(t *testing.T) {
	api := newFakeService("hi")
	session := newSession(api, nil, nil)
	ctx := context.Background()
	if err := session.Refresh(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, _ := session.Selected()

	second, err := session.Create(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	applied, err := session.Delete(ctx, second.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied {
		t.Fatal("expected the delete to apply")
	}

	selected, ok := session.Selected()
	if !ok {
		t.Fatal("expected a selection after deleting the selected conversation")
	}
	if selected.ID != first.ID {
		t.Fatalf("expected selection to move to %s, got %s", first.ID, selected.ID)
	}
}

func TestRenameNoOpLeavesLocalStateUntouched(t *testing.T) {
	api := newFakeService("hi")
	session := newSession(api, nil, nil)
	ctx := context.Background()
	if err := session.Refresh(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	applied, err := session.Rename(ctx, "conv_missing", "new name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Fatal("rename of a missing conversation must report no-op")
	}
	selected, _ := session.Selected()
	if selected.Title != "New Chat" {
		t.Fatalf("local title must be untouched, got %q", selected.Title)
	}
}

func TestSnapshotsDetachFromLiveMessages(t *testing.T) {
	api := newFakeService(strings.Repeat("word ", 200))
	session := newSession(api, nil, nil)
	if err := session.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session.SetDraft("hello")
	if err := session.Submit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Phase() != chatsession.PhaseRevealing {
		t.Fatalf("expected revealing phase, got %v", session.Phase())
	}

	// a snapshot taken mid-reveal must not track the live message log
	snapshot, _ := session.Selected()
	frozen := snapshot.Messages[len(snapshot.Messages)-1].Content

	session.Wait()

	if snapshot.Messages[len(snapshot.Messages)-1].Content != frozen {
		t.Fatal("a returned snapshot must not follow the live reveal")
	}

	view, _ := session.Selected()
	view.Messages[0].Content = "tampered"
	list := session.Conversations()
	list[0].Messages[0].Content = "tampered"

	fresh, _ := session.Selected()
	if fresh.Messages[0].Content == "tampered" {
		t.Fatal("session state must not be writable through returned copies")
	}
}

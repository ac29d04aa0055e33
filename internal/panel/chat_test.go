package panel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"DocChat/internal/backend"
	"DocChat/internal/session"
)

type fakeChatAPI struct {
	mu sync.Mutex

	replies   []*backend.ChatResponse
	sendErr   error
	block     chan struct{} // when set, SendMessage waits on it
	started   chan struct{}
	sent      []sentTurn
	config    *backend.LLMConfig
	configErr error
	setResult *backend.LLMConfig
	setErr    error
	configHit int
}

type sentTurn struct {
	message      string
	sessionID    string
	useDocuments bool
}

func (f *fakeChatAPI) SendMessage(ctx context.Context, message, sessionID string, useDocuments bool) (*backend.ChatResponse, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sentTurn{message, sessionID, useDocuments})
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	resp := f.replies[0]
	f.replies = f.replies[1:]
	return resp, nil
}

func (f *fakeChatAPI) GetLLMConfig(ctx context.Context) (*backend.LLMConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configHit++
	if f.configErr != nil {
		return nil, f.configErr
	}
	return f.config, nil
}

func (f *fakeChatAPI) SetLLMProvider(ctx context.Context, provider string) (*backend.LLMConfig, error) {
	if f.setErr != nil {
		return nil, f.setErr
	}
	return f.setResult, nil
}

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return t0 }
}

func TestSubmit_SuccessAppendsTwoEntries(t *testing.T) {
	api := &fakeChatAPI{replies: []*backend.ChatResponse{{Reply: "Chapter 2 covers cells.", SessionID: "abc123"}}}
	p := NewChatPanel(api, true, WithClock(fixedClock()))

	if p.State().SessionID != "" {
		t.Fatal("session id must be empty before the first reply")
	}
	if !p.Send(context.Background(), "  What is in chapter 2?  ") {
		t.Fatal("send was ignored")
	}

	st := p.State()
	if len(st.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(st.Messages))
	}
	if st.Messages[0].Role != session.RoleUser || st.Messages[0].Content != "What is in chapter 2?" {
		t.Errorf("unexpected user entry: %+v", st.Messages[0])
	}
	if st.Messages[1].Role != session.RoleAssistant || st.Messages[1].Content != "Chapter 2 covers cells." {
		t.Errorf("unexpected assistant entry: %+v", st.Messages[1])
	}
	if st.SessionID != "abc123" {
		t.Errorf("expected session abc123, got %q", st.SessionID)
	}
	if st.Awaiting || st.Input != "" {
		t.Errorf("panel should be idle with empty input: %+v", st)
	}

	if len(api.sent) != 1 {
		t.Fatalf("expected one request, got %d", len(api.sent))
	}
	turn := api.sent[0]
	if turn.message != "What is in chapter 2?" || turn.sessionID != "" || !turn.useDocuments {
		t.Errorf("unexpected request: %+v", turn)
	}
}

func TestSubmit_SessionFollowsLatestReply(t *testing.T) {
	api := &fakeChatAPI{replies: []*backend.ChatResponse{
		{Reply: "one", SessionID: "s1"},
		{Reply: "two", SessionID: "s2"},
	}}
	p := NewChatPanel(api, false)

	p.Send(context.Background(), "first")
	p.Send(context.Background(), "second")

	if api.sent[1].sessionID != "s1" {
		t.Errorf("second turn should echo s1, got %q", api.sent[1].sessionID)
	}
	if api.sent[1].useDocuments {
		t.Error("use documents should follow the panel flag")
	}
	if got := p.State().SessionID; got != "s2" {
		t.Errorf("session should be replaced by the backend's value, got %q", got)
	}
	if n := len(p.State().Messages); n != 4 {
		t.Errorf("expected 4 messages, got %d", n)
	}
}

func TestSubmit_FailureAppendsErrorEntry(t *testing.T) {
	api := &fakeChatAPI{sendErr: &backend.StatusError{StatusCode: 500, Body: "model offline"}}
	p := NewChatPanel(api, true)

	p.Send(context.Background(), "hello")

	st := p.State()
	if len(st.Messages) != 2 {
		t.Fatalf("expected user + error entry, got %d", len(st.Messages))
	}
	if st.Messages[0].Content != "hello" {
		t.Errorf("failed turn's user entry must remain, got %+v", st.Messages[0])
	}
	if st.Messages[1].Role != session.RoleAssistant || st.Messages[1].Content != "Error: model offline" {
		t.Errorf("unexpected error entry: %+v", st.Messages[1])
	}
	if st.SessionID != "" || st.Awaiting {
		t.Errorf("unexpected state after failure: %+v", st)
	}
	if len(api.sent) != 1 {
		t.Errorf("failures must not be retried, got %d requests", len(api.sent))
	}
}

func TestSubmit_EmptyErrorUsesFallback(t *testing.T) {
	api := &fakeChatAPI{sendErr: &backend.StatusError{StatusCode: 502}}
	p := NewChatPanel(api, true)

	p.Send(context.Background(), "hello")

	msgs := p.State().Messages
	if msgs[1].Content != "Error: Request failed" {
		t.Errorf("unexpected fallback: %q", msgs[1].Content)
	}
}

func TestSubmit_BlankInputIgnored(t *testing.T) {
	api := &fakeChatAPI{}
	p := NewChatPanel(api, true)

	if p.Send(context.Background(), "   \n\t ") {
		t.Error("blank input should be ignored")
	}
	if len(p.State().Messages) != 0 || len(api.sent) != 0 {
		t.Error("blank input must not touch the log or the network")
	}
}

func TestSubmit_IgnoredWhileAwaiting(t *testing.T) {
	api := &fakeChatAPI{
		replies: []*backend.ChatResponse{{Reply: "done", SessionID: "s"}},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	p := NewChatPanel(api, true)

	done := make(chan bool)
	go func() { done <- p.Send(context.Background(), "first") }()
	<-api.started

	if !p.State().Awaiting {
		t.Fatal("panel should be awaiting a reply")
	}
	if p.Send(context.Background(), "second") {
		t.Error("a second submission while awaiting must be ignored")
	}
	if got := p.State().Input; got != "second" {
		t.Errorf("ignored input should stay pending, got %q", got)
	}

	close(api.block)
	if !<-done {
		t.Fatal("first send was ignored")
	}

	st := p.State()
	if len(st.Messages) != 2 || len(api.sent) != 1 {
		t.Errorf("expected one turn, got %d messages and %d requests", len(st.Messages), len(api.sent))
	}
}

func TestSubmit_NotifiesOnEveryMutation(t *testing.T) {
	api := &fakeChatAPI{replies: []*backend.ChatResponse{{Reply: "r", SessionID: "s"}}}

	var lengths []int
	var awaiting []bool
	p := NewChatPanel(api, true, OnChatChange(func(st ChatState) {
		lengths = append(lengths, len(st.Messages))
		awaiting = append(awaiting, st.Awaiting)
	}))

	p.Send(context.Background(), "q")

	// SetInput, optimistic echo, reply
	if len(lengths) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(lengths))
	}
	if lengths[1] != 1 || !awaiting[1] {
		t.Errorf("optimistic echo should be visible while awaiting: len=%d awaiting=%v", lengths[1], awaiting[1])
	}
	if lengths[2] != 2 || awaiting[2] {
		t.Errorf("reply should end awaiting: len=%d awaiting=%v", lengths[2], awaiting[2])
	}
}

func TestMount(t *testing.T) {
	api := &fakeChatAPI{config: &backend.LLMConfig{Provider: "openai"}}
	p := NewChatPanel(api, true)

	if p.State().Provider != "" {
		t.Fatal("provider should be blank before mount")
	}
	p.Mount(context.Background())
	if got := p.State().Provider; got != "openai" {
		t.Errorf("expected openai, got %q", got)
	}
}

func TestMount_ReadFailureLeavesBlank(t *testing.T) {
	api := &fakeChatAPI{configErr: errors.New("failed to send request: connection refused")}
	p := NewChatPanel(api, true)

	p.Mount(context.Background())
	if got := p.State().Provider; got != "" {
		t.Errorf("provider should stay blank, got %q", got)
	}
}

func TestChangeProvider_Success(t *testing.T) {
	api := &fakeChatAPI{
		config:    &backend.LLMConfig{Provider: "openai"},
		setResult: &backend.LLMConfig{Provider: "local"},
	}
	p := NewChatPanel(api, true)
	p.Mount(context.Background())

	if !p.ChangeProvider(context.Background(), "local") {
		t.Fatal("change was ignored")
	}
	st := p.State()
	if st.Provider != "local" || st.ProviderChanging {
		t.Errorf("unexpected state: %+v", st)
	}
}

func TestChangeProvider_FailureRevertsToBackendValue(t *testing.T) {
	api := &fakeChatAPI{
		config: &backend.LLMConfig{Provider: "openai"},
		setErr: errors.New("provider not configured"),
	}
	p := NewChatPanel(api, true)
	p.Mount(context.Background())

	// the backend moved on meanwhile; the panel must show what it reports now
	api.mu.Lock()
	api.config = &backend.LLMConfig{Provider: "bytez"}
	api.mu.Unlock()

	p.ChangeProvider(context.Background(), "local")

	st := p.State()
	if st.Provider != "bytez" {
		t.Errorf("expected backend truth bytez, got %q", st.Provider)
	}
	if st.ProviderChanging {
		t.Error("provider-changing must always be left")
	}
	if api.configHit != 2 {
		t.Errorf("expected a re-read after failure, got %d reads", api.configHit)
	}
}

func TestChangeProvider_EmptyIgnored(t *testing.T) {
	api := &fakeChatAPI{}
	p := NewChatPanel(api, true)
	if p.ChangeProvider(context.Background(), "") {
		t.Error("empty selection should be ignored")
	}
}

func TestReason(t *testing.T) {
	if got := reason(errors.New("boom"), "x"); got != "boom" {
		t.Errorf("unexpected reason: %s", got)
	}
	if got := reason(nil, "fallback"); !strings.EqualFold(got, "fallback") {
		t.Errorf("unexpected fallback: %s", got)
	}
}

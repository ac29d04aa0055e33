// Package panel holds the state containers behind the chat and upload
// front-ends. Each panel owns its state; transitions are triggered by
// discrete events and reconciled with the backend's answer.
package panel

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"DocChat/internal/backend"
	"DocChat/internal/session"
)

const requestFailed = "Request failed"

// ChatAPI is the part of the backend client the chat panel uses
type ChatAPI interface {
	SendMessage(ctx context.Context, message, sessionID string, useDocuments bool) (*backend.ChatResponse, error)
	GetLLMConfig(ctx context.Context) (*backend.LLMConfig, error)
	SetLLMProvider(ctx context.Context, provider string) (*backend.LLMConfig, error)
}

// ChatState is a snapshot of the chat panel
type ChatState struct {
	Messages         []session.Message
	Input            string
	SessionID        string // empty until the backend assigns one
	Awaiting         bool
	UseDocuments     bool
	Provider         string // empty until the first config read resolves
	ProviderChanging bool
}

// ChatPanel is the conversation state machine: idle, awaiting-reply and
// the provider-changing sub-state.
type ChatPanel struct {
	api      ChatAPI
	log      *session.Log
	logger   *slog.Logger
	now      func() time.Time
	onChange func(ChatState)

	mu               sync.Mutex
	input            string
	sessionID        string
	awaiting         bool
	useDocuments     bool
	provider         string
	providerChanging bool
}

// ChatOption configures a ChatPanel
type ChatOption func(*ChatPanel)

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) ChatOption {
	return func(p *ChatPanel) { p.now = now }
}

// WithChatLogger sets the logger
func WithChatLogger(l *slog.Logger) ChatOption {
	return func(p *ChatPanel) { p.logger = l }
}

// OnChatChange registers a listener called after every state mutation
func OnChatChange(fn func(ChatState)) ChatOption {
	return func(p *ChatPanel) { p.onChange = fn }
}

// NewChatPanel creates an idle chat panel with an empty log
func NewChatPanel(api ChatAPI, useDocuments bool, opts ...ChatOption) *ChatPanel {
	p := &ChatPanel{
		api:          api,
		log:          session.NewLog(),
		now:          time.Now,
		useDocuments: useDocuments,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Mount reads the active provider. A failed read leaves the provider blank.
func (p *ChatPanel) Mount(ctx context.Context) {
	cfg, err := p.api.GetLLMConfig(ctx)
	if err != nil {
		p.logger.Warn("failed to read llm config", "error", err)
		return
	}

	p.mu.Lock()
	p.provider = cfg.Provider
	p.mu.Unlock()
	p.notify()
}

// SetInput replaces the pending input text
func (p *ChatPanel) SetInput(text string) {
	p.mu.Lock()
	p.input = text
	p.mu.Unlock()
	p.notify()
}

// SetUseDocuments toggles retrieval over uploaded documents for later sends
func (p *ChatPanel) SetUseDocuments(on bool) {
	p.mu.Lock()
	p.useDocuments = on
	p.mu.Unlock()
	p.notify()
}

// Send is SetInput followed by Submit
func (p *ChatPanel) Send(ctx context.Context, text string) bool {
	p.SetInput(text)
	return p.Submit(ctx)
}

// Submit sends the pending input. It returns false without doing anything
// when the trimmed input is empty or a reply is already awaited.
func (p *ChatPanel) Submit(ctx context.Context) bool {
	p.mu.Lock()
	text := strings.TrimSpace(p.input)
	if text == "" || p.awaiting {
		p.mu.Unlock()
		return false
	}
	p.input = ""
	p.log.Append(session.Message{Role: session.RoleUser, Content: text, Timestamp: p.now()})
	p.awaiting = true
	sessionID, useDocuments := p.sessionID, p.useDocuments
	p.mu.Unlock()
	p.notify()

	resp, err := p.api.SendMessage(ctx, text, sessionID, useDocuments)

	p.mu.Lock()
	if err != nil {
		p.logger.Error("failed to send message", "session_id", sessionID, "error", err)
		p.log.Append(session.Message{
			Role:      session.RoleAssistant,
			Content:   "Error: " + reason(err, requestFailed),
			Timestamp: p.now(),
		})
	} else {
		p.sessionID = resp.SessionID
		p.log.Append(session.Message{Role: session.RoleAssistant, Content: resp.Reply, Timestamp: p.now()})
		p.logger.Info("received reply", "session_id", resp.SessionID, "sources", len(resp.Sources))
	}
	p.awaiting = false
	p.mu.Unlock()
	p.notify()
	return true
}

// ChangeProvider asks the backend to switch provider. On failure the
// displayed value is re-read from the backend rather than restored locally.
// Returns false when value is empty or a change is already in flight.
func (p *ChatPanel) ChangeProvider(ctx context.Context, value string) bool {
	if value == "" {
		return false
	}
	p.mu.Lock()
	if p.providerChanging {
		p.mu.Unlock()
		return false
	}
	p.providerChanging = true
	p.mu.Unlock()
	p.notify()

	provider, changed := "", false
	res, err := p.api.SetLLMProvider(ctx, value)
	if err == nil {
		provider, changed = res.Provider, true
	} else {
		p.logger.Warn("failed to set llm provider", "provider", value, "error", err)
		if cfg, gerr := p.api.GetLLMConfig(ctx); gerr == nil {
			provider, changed = cfg.Provider, true
		} else {
			p.logger.Warn("failed to read llm config", "error", gerr)
		}
	}

	p.mu.Lock()
	if changed {
		p.provider = provider
	}
	p.providerChanging = false
	p.mu.Unlock()
	p.notify()
	return true
}

// State returns a snapshot of the panel
func (p *ChatPanel) State() ChatState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *ChatPanel) stateLocked() ChatState {
	return ChatState{
		Messages:         p.log.Messages(),
		Input:            p.input,
		SessionID:        p.sessionID,
		Awaiting:         p.awaiting,
		UseDocuments:     p.useDocuments,
		Provider:         p.provider,
		ProviderChanging: p.providerChanging,
	}
}

func (p *ChatPanel) notify() {
	if p.onChange == nil {
		return
	}
	p.onChange(p.State())
}

// reason is the displayable text of a failure
func reason(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}

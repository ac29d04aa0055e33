package chatbot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"DocChat/internal/backend"
	"DocChat/internal/config"
	"DocChat/internal/panel"
	"DocChat/internal/session"
	"DocChat/internal/watch"
)

// API is the backend surface the terminal front-end drives
type API interface {
	panel.ChatAPI
	panel.Uploader
}

// ChatBot is the terminal front-end: one chat panel and one upload panel
// driven by slash commands.
type ChatBot struct {
	config config.Config
	logger *slog.Logger
	in     io.Reader
	out    io.Writer

	chat   *panel.ChatPanel
	upload *panel.UploadPanel
	api    API

	mu        sync.Mutex // guards out and the render cursor
	rendered  int
	thinking  bool
	uploading bool
	documents []backend.UploadResponse
}

// NewChatBot creates a new ChatBot instance
func NewChatBot(cfg config.Config, api API, logger *slog.Logger, in io.Reader, out io.Writer) *ChatBot {
	if logger == nil {
		logger = slog.Default()
	}
	cb := &ChatBot{
		config: cfg,
		logger: logger,
		in:     in,
		out:    out,
		api:    api,
	}

	cb.chat = panel.NewChatPanel(api, cfg.UseDocuments,
		panel.WithChatLogger(logger),
		panel.OnChatChange(cb.renderChat),
	)
	cb.upload = panel.NewUploadPanel(api,
		panel.WithUploadLogger(logger),
		panel.OnUploaded(cb.recordDocument),
		panel.OnUploadChange(cb.renderUpload),
	)
	return cb
}

// Chat exposes the chat panel
func (cb *ChatBot) Chat() *panel.ChatPanel {
	return cb.chat
}

// Upload exposes the upload panel
func (cb *ChatBot) Upload() *panel.UploadPanel {
	return cb.upload
}

func (cb *ChatBot) printf(format string, args ...interface{}) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	fmt.Fprintf(cb.out, format, args...)
}

// renderChat prints every log entry not shown yet, plus a thinking line
// while a reply is awaited.
func (cb *ChatBot) renderChat(st panel.ChatState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	for _, msg := range st.Messages[min(cb.rendered, len(st.Messages)):] {
		label := "Assistant"
		if msg.Role == session.RoleUser {
			label = "You"
		}
		fmt.Fprintf(cb.out, "%s [%s]: %s\n", label, msg.Timestamp.Local().Format("15:04"), msg.Content)
	}
	cb.rendered = len(st.Messages)

	if st.Awaiting && !cb.thinking {
		fmt.Fprintln(cb.out, "Thinking…")
	}
	cb.thinking = st.Awaiting
}

func (cb *ChatBot) renderUpload(st panel.UploadState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if st.Uploading && !cb.uploading {
		fmt.Fprintf(cb.out, "Uploading %s…\n", filepath.Base(st.File))
	}
	cb.uploading = st.Uploading
}

func (cb *ChatBot) recordDocument(res *backend.UploadResponse) {
	cb.mu.Lock()
	cb.documents = append(cb.documents, *res)
	cb.mu.Unlock()
	cb.logger.Info("document indexed", "doc_id", res.DocID, "filename", res.Filename, "chunks_stored", res.ChunksStored)
}

func (cb *ChatBot) printResult(prefix string, res panel.Result) {
	status := "ok"
	if !res.OK {
		status = "error"
	}
	cb.printf("%s[%s] %s\n", prefix, status, res.Text)
}

// handleCommand handles special commands
func (cb *ChatBot) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/file":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /file <path> (.pdf or .txt)")
		}
		if err := cb.upload.Select(parts[1]); err != nil {
			return false, err
		}
		cb.printf("Selected %s\n", parts[1])
		return false, nil

	case "/subject":
		subject := strings.TrimSpace(strings.TrimPrefix(cmd, "/subject"))
		cb.upload.SetSubject(subject)
		if subject == "" {
			cb.printf("Subject cleared\n")
		} else {
			cb.printf("Subject set to: %s\n", subject)
		}
		return false, nil

	case "/upload":
		if len(parts) >= 2 {
			if err := cb.upload.Select(parts[1]); err != nil {
				return false, err
			}
		}
		if len(parts) >= 3 {
			cb.upload.SetSubject(strings.Join(parts[2:], " "))
		}
		res, ran := cb.upload.Submit(ctx)
		if !ran {
			cb.printf("An upload is already in progress\n")
			return false, nil
		}
		cb.printResult("", res)
		return false, nil

	case "/documents":
		cb.mu.Lock()
		docs := append([]backend.UploadResponse(nil), cb.documents...)
		cb.mu.Unlock()
		if len(docs) == 0 {
			cb.printf("No documents uploaded in this session.\n")
			return false, nil
		}
		var b strings.Builder
		b.WriteString("\nUploaded documents:\n")
		for i, d := range docs {
			subject := ""
			if d.Subject != nil && *d.Subject != "" {
				subject = " [" + *d.Subject + "]"
			}
			fmt.Fprintf(&b, "%d. %s%s - %d chunks (%s)\n", i+1, d.Filename, subject, d.ChunksStored, d.DocID)
		}
		cb.printf("%s\n", b.String())
		return false, nil

	case "/docs":
		if len(parts) < 2 {
			cb.printf("Use uploaded documents: %s\n", onOff(cb.chat.State().UseDocuments))
			return false, nil
		}
		switch parts[1] {
		case "on":
			cb.chat.SetUseDocuments(true)
		case "off":
			cb.chat.SetUseDocuments(false)
		default:
			return false, fmt.Errorf("usage: /docs on|off")
		}
		cb.printf("Use uploaded documents: %s\n", parts[1])
		return false, nil

	case "/provider":
		if len(parts) < 2 {
			cb.printf("LLM: %s (choices: %s)\n", providerLabel(cb.chat.State().Provider), strings.Join(config.Providers, "|"))
			return false, nil
		}
		name := parts[1]
		if !config.ValidProvider(name) {
			return false, fmt.Errorf("unknown provider: %s (%s)", name, strings.Join(config.Providers, "|"))
		}
		if !cb.chat.ChangeProvider(ctx, name) {
			cb.printf("A provider change is already in progress\n")
			return false, nil
		}
		st := cb.chat.State()
		if st.Provider != name {
			cb.printf("Could not switch to %s; backend reports %s\n", name, providerLabel(st.Provider))
			return false, nil
		}
		cb.printf("LLM: %s\n", providerLabel(st.Provider))
		return false, nil

	case "/session":
		if id := cb.chat.State().SessionID; id != "" {
			cb.printf("Session: %s\n", id)
		} else {
			cb.printf("Session: (none yet)\n")
		}
		return false, nil

	case "/help":
		cb.printf("%s", helpText)
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s (type /help)", parts[0])
	}
}

const helpText = `Available commands:
  /quit, /exit                   - Exit
  /file <path>                   - Select a document (.pdf or .txt)
  /subject [text]                - Set or clear the optional subject
  /upload [path [subject...]]    - Upload & index the selected document
  /documents                     - List documents uploaded in this session
  /docs [on|off]                 - Use uploaded documents when answering
  /provider [openai|bytez|local] - Show or switch the LLM provider
  /session                       - Show the conversation session id
  /help                          - Show this help message
Anything else is sent as a chat message.
`

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func providerLabel(tag string) string {
	if tag == "" {
		return "-"
	}
	if label, ok := config.ProviderLabels[tag]; ok {
		return label
	}
	return tag
}

// watchDropFolder uploads files created in dir through a panel of its own,
// one at a time.
func (cb *ChatBot) watchDropFolder(ctx context.Context, dir string) error {
	w, err := watch.New(panel.AcceptedExtensions, cb.logger)
	if err != nil {
		return fmt.Errorf("failed to create drop folder watcher: %w", err)
	}
	paths, err := w.Watch(ctx, dir)
	if err != nil {
		w.Stop()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	dropbox := panel.NewUploadPanel(cb.api,
		panel.WithUploadLogger(cb.logger.With("source", "drop_folder")),
		panel.OnUploaded(cb.recordDocument),
	)

	go func() {
		defer w.Stop()
		for path := range paths {
			if err := dropbox.Select(path); err != nil {
				cb.logger.Warn("drop folder file refused", "path", path, "error", err)
				continue
			}
			res, _ := dropbox.Submit(ctx)
			cb.printResult(fmt.Sprintf("[drop folder] %s: ", filepath.Base(path)), res)
		}
	}()

	cb.logger.Info("watching drop folder", "dir", dir)
	return nil
}

// Run starts the terminal front-end and returns when input ends, /quit is
// entered or ctx is cancelled.
func (cb *ChatBot) Run(ctx context.Context) error {
	cb.printf("=== Document Chat ===\n")
	cb.printf("Backend: %s\n", cb.config.BackendURL)

	cb.chat.Mount(ctx)
	st := cb.chat.State()
	cb.printf("LLM: %s | Use uploaded documents: %s\n", providerLabel(st.Provider), onOff(st.UseDocuments))

	if cb.config.WatchDir != "" {
		if err := cb.watchDropFolder(ctx, cb.config.WatchDir); err != nil {
			cb.printf("Error: %v\n", err)
			cb.logger.Error("drop folder disabled", "error", err)
		} else {
			cb.printf("Watching %s for new .pdf/.txt files\n", cb.config.WatchDir)
		}
	}

	cb.printf("Ask a question. Upload documents first to get answers from your files.\n")
	cb.printf("Type /help for commands, /quit to exit\n\n")

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cb.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			cb.logger.Error("failed to read input", "error", err)
		}
	}()

	for {
		cb.printf("> ")

		var input string
		select {
		case <-ctx.Done():
			cb.printf("\nGoodbye!\n")
			return nil
		case line, ok := <-lines:
			if !ok {
				cb.printf("\nGoodbye!\n")
				return nil
			}
			input = strings.TrimSpace(line)
		}

		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := cb.handleCommand(ctx, input)
			if err != nil {
				cb.printf("Error: %v\n", err)
				cb.logger.Warn("command error", "command", input, "error", err)
			}
			if shouldQuit {
				cb.printf("Goodbye!\n")
				return nil
			}
			continue
		}

		cb.chat.Send(ctx, input)
	}
}

package session

import (
	"sync"
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single chat message
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is the in-memory conversation log. Entries are only ever appended;
// it has no delete, reorder or edit operation.
type Log struct {
	mu       sync.RWMutex
	messages []Message
}

// NewLog creates an empty log
func NewLog() *Log {
	return &Log{}
}

// Append adds a message at the end and returns the new length
func (l *Log) Append(msg Message) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
	return len(l.messages)
}

// Len returns the number of messages
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Messages returns a copy of the log in insertion order
func (l *Log) Messages() []Message {
	return l.Since(0)
}

// Since returns a copy of the messages from index i on
func (l *Log) Since(i int) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 {
		i = 0
	}
	if i >= len(l.messages) {
		return []Message{}
	}
	out := make([]Message, len(l.messages)-i)
	copy(out, l.messages[i:])
	return out
}

package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"lumina/internal/storage"
)

// ErrAlreadyInitialized signals a second attempt to record the baseline room
// state for a session that already holds one.
var ErrAlreadyInitialized = errors.New("session: context already initialized")

// Role labels who authored a context message.
type Role string

const (
	RoleUser     Role = "user"
	RoleDesigner Role = "designer"
)

// Message is one conversational turn. Messages feed the collaborator's
// history rendering.
type Message struct {
	Role      Role
	Text      string
	CreatedAt time.Time
}

// Notice is a display-only status line (progress, failure explanations). It
// is a separate type from Message so it can never leak into the collaborator
// history.
type Notice struct {
	Text      string
	CreatedAt time.Time
}

// ContextStore holds one session's immutable baseline (original photo and
// analysis) plus the growing conversation. Safe for concurrent use.
type ContextStore struct {
	mu          sync.RWMutex
	initialized bool
	image       []byte
	imageMIME   string
	analysis    storage.RoomAnalysis
	roomContext storage.RoomContext
	messages    []Message
	notices     []Notice
}

// NewContextStore returns an empty, uninitialized store.
func NewContextStore() *ContextStore {
	return &ContextStore{}
}

// RecordAnalysis records the original photo, its analysis and the declared room
// context. The baseline is write-once; later edits never touch it.
func (c *ContextStore) RecordAnalysis(image []byte, imageMIME string, analysis storage.RoomAnalysis, roomContext storage.RoomContext) error {
	if len(image) == 0 {
		return fmt.Errorf("session: record analysis: image is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return ErrAlreadyInitialized
	}

	c.image = append([]byte(nil), image...)
	c.imageMIME = imageMIME
	c.analysis = analysis
	c.roomContext = roomContext
	c.initialized = true
	return nil
}

// Initialized reports whether the baseline has been recorded.
func (c *ContextStore) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// OriginalImage returns the baseline photo and its MIME type.
func (c *ContextStore) OriginalImage() ([]byte, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]byte(nil), c.image...), c.imageMIME
}

// Analysis returns a copy of the recorded critique.
func (c *ContextStore) Analysis() storage.RoomAnalysis {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.analysis
}

// RoomContext returns the declared room context.
func (c *ContextStore) RoomContext() storage.RoomContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomContext
}

// AppendMessage records one conversational turn. Empty text is rejected so
// the history never carries blank turns.
func (c *ContextStore) AppendMessage(role Role, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("session: append message: empty text")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{Role: role, Text: trimmed, CreatedAt: time.Now().UTC()})
	return nil
}

// AppendNotice records a display-only status line.
func (c *ContextStore) AppendNotice(text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, Notice{Text: trimmed, CreatedAt: time.Now().UTC()})
}

// Messages returns a copy of the conversational turns in order.
func (c *ContextStore) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Message(nil), c.messages...)
}

// Notices returns a copy of the recorded status lines.
func (c *ContextStore) Notices() []Notice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Notice(nil), c.notices...)
}

// History renders the conversation for the collaborator, newest turns kept
// and oldest dropped until the text fits maxChars. Notices never appear.
func (c *ContextStore) History(maxChars int) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.messages) == 0 {
		return ""
	}

	lines := make([]string, 0, len(c.messages))
	total := 0
	for i := len(c.messages) - 1; i >= 0; i-- {
		msg := c.messages[i]
		label := "User"
		if msg.Role == RoleDesigner {
			label = "Designer"
		}
		line := label + ": " + msg.Text
		if maxChars > 0 && total+len(line)+1 > maxChars {
			break
		}
		total += len(line) + 1
		lines = append(lines, line)
	}

	// Collected newest-first; flip back to chronological order.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n")
}

// Reset drops everything, baseline included. The store can be initialized
// again afterwards.
func (c *ContextStore) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = false
	c.image = nil
	c.imageMIME = ""
	c.analysis = storage.RoomAnalysis{}
	c.roomContext = ""
	c.messages = nil
	c.notices = nil
}

package chat

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultContextTurns is the conversation memory handed to the answer model.
const DefaultContextTurns = 7

// Sender tags a turn.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Turn is one message in a film conversation.
type Turn struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

// Conversation is the append-only history about one selected film. Reset it
// when the film is deselected.
type Conversation struct {
	mu    sync.Mutex
	turns []Turn
}

// Add appends a turn. Unknown senders are rejected.
func (c *Conversation) Add(sender Sender, text string) error {
	switch sender {
	case SenderUser, SenderAssistant:
	default:
		return fmt.Errorf("unknown sender %q", sender)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, Turn{Sender: sender, Text: text})
	return nil
}

// Window returns the last n turns, oldest first.
func (c *Conversation) Window(n int) []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 {
		return nil
	}
	start := max(len(c.turns)-n, 0)
	out := make([]Turn, len(c.turns)-start)
	copy(out, c.turns[start:])
	return out
}

// Context flattens the last n turns for the answer model.
func (c *Conversation) Context(n int) string {
	return Flatten(c.Window(n))
}

// Len is the number of turns so far.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Reset forgets every turn.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
}

// Flatten renders turns as "sender: text" lines joined by newlines.
func Flatten(turns []Turn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = string(t.Sender) + ": " + t.Text
	}
	return strings.Join(lines, "\n")
}

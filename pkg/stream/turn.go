package stream

import (
	"fmt"
	"slices"
	"sync"

	"github.com/japaniel/lexireader/pkg/chat"
)

// State is the lifecycle state of a conversational turn.
type State int

const (
	Idle State = iota
	Sending
	Streaming
	Complete
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Streaming:
		return "streaming"
	case Complete:
		return "complete"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Busy reports whether a turn in this state is still in flight.
func (s State) Busy() bool { return s == Sending || s == Streaming }

var transitions = map[State][]State{
	Idle:      {Sending},
	Sending:   {Streaming, Error, Idle},
	Streaming: {Complete, Error, Idle},
	Complete:  {Sending, Idle},
	Error:     {Sending, Idle},
}

func canTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Conversation is the append-only history sent with each request. It only
// ever holds completed exchanges.
type Conversation struct {
	mu   sync.RWMutex
	msgs []chat.Message
}

// Append adds messages to the end of the history.
func (c *Conversation) Append(msgs ...chat.Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msgs...)
	c.mu.Unlock()
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []chat.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]chat.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// Len returns the number of messages held.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.msgs)
}

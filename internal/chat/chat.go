// Package chat runs streamed question/answer turns against the
// producer assistant. Each turn moves through
// Idle → Sending → Streaming → Completed, or ends in Failed or
// Cancelled. Only one turn runs at a time.
package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nugget/vibeplanner/internal/config"
	"github.com/nugget/vibeplanner/internal/plannerapi"
	"github.com/nugget/vibeplanner/internal/prefs"
)

var (
	// ErrTurnInProgress is returned by Send while another turn is
	// still running.
	ErrTurnInProgress = errors.New("a chat turn is already in progress")

	// ErrEmptyQuestion is returned by Send for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
)

// contextSeparator sits between the context block and the question.
const contextSeparator = "\n\n---\n\nQUESTION: "

// Stream protocol.
const (
	dataPrefix = "data: "

	eventToken = "token"
	eventDone  = "done"
	eventError = "error"
)

// Role identifies who wrote a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// State is the phase of a turn.
type State int

// Turn states.
const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stats is the retrieval summary sent at the end of a stream.
type Stats struct {
	SourcesCount  int     `json:"sources_count"`
	AvgSimilarity float64 `json:"avg_similarity"`
}

// Turn is the outcome of one Send.
type Turn struct {
	Question string
	State    State
	// Reply is the assistant's streamed answer, possibly partial.
	Reply  string
	Tokens int
	// Stats is set when the stream ended with a done event.
	Stats *Stats
	// ServerError holds the message of an error event, if any.
	ServerError string
}

// UpdateFunc receives the assistant message each time its content
// grows. It is called from the goroutine running Send.
type UpdateFunc func(Message)

// Streamer opens the chat event stream. plannerapi.Client satisfies it.
type Streamer interface {
	StreamChat(ctx context.Context, req plannerapi.ChatRequest) (io.ReadCloser, error)
}

// Client holds one conversation.
type Client struct {
	streamer      Streamer
	prefs         *prefs.UserPreferences
	failureNotice string
	threadID      string
	logger        *slog.Logger

	turn sync.Mutex

	mu       sync.Mutex
	messages []Message
	state    State
}

// New creates a conversation. p is read at the start of every turn and
// may be nil. failureNotice is appended as an assistant message when a
// turn fails.
func New(streamer Streamer, p *prefs.UserPreferences, failureNotice string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if failureNotice == "" {
		failureNotice = config.DefaultFailureNotice
	}
	threadID := uuid.NewString()
	return &Client{
		streamer:      streamer,
		prefs:         p,
		failureNotice: failureNotice,
		threadID:      threadID,
		logger:        logger.With("component", "chat", "thread", threadID),
		state:         StateIdle,
	}
}

// ThreadID identifies the conversation to the backend.
func (c *Client) ThreadID() string { return c.threadID }

// Messages returns a copy of the conversation.
func (c *Client) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// State returns the phase of the current or last turn.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Prompt returns what is sent for question: the question alone, or the
// active context, a separator and the question.
func (c *Client) Prompt(question string) string {
	ctxText := strings.TrimSpace(c.prefs.ActiveContext())
	if ctxText == "" {
		return question
	}
	return ctxText + contextSeparator + question
}

// Send runs one turn. The user's question is appended, the prompt is
// sent, and the reply is streamed into a new assistant message.
//
// A network failure or rejected request ends the turn Failed: partial
// reply text is kept and the failure notice is appended as a separate
// assistant message. Cancelling ctx ends the turn Cancelled with no
// notice. In both cases the returned Turn is non-nil alongside the
// error.
func (c *Client) Send(ctx context.Context, question string, onUpdate UpdateFunc) (*Turn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if !c.turn.TryLock() {
		return nil, ErrTurnInProgress
	}
	defer c.turn.Unlock()

	t := &Turn{Question: question}
	c.mu.Lock()
	c.messages = append(c.messages, Message{Role: RoleUser, Content: question})
	c.mu.Unlock()
	c.setState(t, StateSending)

	prompt := c.Prompt(question)
	c.logger.Log(ctx, config.LevelTrace, "chat prompt", "prompt", prompt)

	body, err := c.streamer.StreamChat(ctx, plannerapi.ChatRequest{Message: prompt, ThreadID: c.threadID})
	if err != nil {
		return t, c.end(ctx, t, err)
	}
	defer body.Close()

	c.mu.Lock()
	c.messages = append(c.messages, Message{Role: RoleAssistant})
	c.mu.Unlock()
	c.setState(t, StateStreaming)

	if err := c.stream(ctx, body, t, onUpdate); err != nil {
		return t, c.end(ctx, t, err)
	}

	c.setState(t, StateCompleted)
	c.logger.Debug("turn completed", "tokens", t.Tokens, "chars", len(t.Reply))
	return t, nil
}

type event struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Stats
}

// stream applies events from body in arrival order. Lines without the
// data prefix and payloads that are not valid JSON, including a final
// line cut short, are skipped.
func (c *Client) stream(ctx context.Context, body io.Reader, t *Turn, onUpdate UpdateFunc) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		c.logger.Log(ctx, config.LevelTrace, "stream line", "line", line)

		var ev event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, dataPrefix)), &ev); err != nil {
			c.logger.Debug("skipped malformed stream line", "error", err)
			continue
		}

		switch ev.Type {
		case eventToken:
			if ev.Content == "" {
				continue
			}
			msg := c.appendToken(ev.Content)
			t.Reply = msg.Content
			t.Tokens++
			if onUpdate != nil {
				onUpdate(msg)
			}
		case eventDone:
			stats := ev.Stats
			t.Stats = &stats
		case eventError:
			t.ServerError = ev.Content
			c.logger.Warn("assistant reported an error", "error", ev.Content)
		}
	}
	return scanner.Err()
}

// appendToken grows the last message in place and returns a copy.
func (c *Client) appendToken(text string) Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	last := &c.messages[len(c.messages)-1]
	last.Content += text
	return *last
}

// end finishes a turn that stopped early and returns the error to
// report.
func (c *Client) end(ctx context.Context, t *Turn, err error) error {
	if ctx.Err() != nil {
		c.setState(t, StateCancelled)
		c.logger.Debug("turn cancelled", "tokens", t.Tokens)
		return fmt.Errorf("chat turn: %w", ctx.Err())
	}

	c.mu.Lock()
	c.messages = append(c.messages, Message{Role: RoleAssistant, Content: c.failureNotice})
	c.mu.Unlock()
	c.setState(t, StateFailed)
	c.logger.Warn("turn failed", "tokens", t.Tokens, "error", err)
	return fmt.Errorf("chat turn: %w", err)
}

func (c *Client) setState(t *Turn, s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	t.State = s
}

package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelgate/modelgate/pkg/llm"
)

// Client is a scriptable transport for tests and offline development. It
// implements both the completion and chat streaming interfaces, replaying a
// fixed chunk script with optional per-chunk latency and a trailing error.
type Client struct {
	mu sync.Mutex

	chunks  []string
	err     *llm.Error
	latency time.Duration

	// DoneEvent, when set, makes the client emit its own terminal event
	// instead of leaving that to the caller. Used to exercise host-proxy
	// behavior, where the remote side owns stream termination.
	doneEvent *llm.Interaction

	streams  atomic.Int64
	cleanups atomic.Int64
	closed   atomic.Bool

	lastPrompt   string
	lastMessages []llm.ChatMessage
	lastOptions  llm.CompletionOptions
}

// New creates a client that streams the given chunks in order
func New(chunks ...string) *Client {
	return &Client{chunks: chunks}
}

// WithError makes the stream end with err after all chunks are delivered
func (c *Client) WithError(err *llm.Error) *Client {
	c.err = err
	return c
}

// WithLatency inserts a delay before each chunk
func (c *Client) WithLatency(d time.Duration) *Client {
	c.latency = d
	return c
}

// WithDoneEvent makes the client emit its own terminal event carrying the
// given interaction.
func (c *Client) WithDoneEvent(in *llm.Interaction) *Client {
	c.doneEvent = in
	return c
}

// Streams reports how many streams were started
func (c *Client) Streams() int64 { return c.streams.Load() }

// Cleanups reports how many streams released their resources, whether they
// ran to completion or were cancelled.
func (c *Client) Cleanups() int64 { return c.cleanups.Load() }

// Closed reports whether Close was called
func (c *Client) Closed() bool { return c.closed.Load() }

// LastPrompt returns the prompt of the most recent completion stream
func (c *Client) LastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPrompt
}

// LastMessages returns the messages of the most recent chat stream
func (c *Client) LastMessages() []llm.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMessages
}

// LastOptions returns the effective options of the most recent stream
func (c *Client) LastOptions() llm.CompletionOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOptions
}

func (c *Client) StreamComplete(ctx context.Context, prompt string, opts llm.CompletionOptions) (<-chan llm.StreamEvent, error) {
	c.mu.Lock()
	c.lastPrompt = prompt
	c.lastOptions = opts
	c.mu.Unlock()
	return c.run(ctx), nil
}

func (c *Client) StreamChat(ctx context.Context, messages []llm.ChatMessage, opts llm.CompletionOptions) (<-chan llm.StreamEvent, error) {
	c.mu.Lock()
	c.lastMessages = messages
	c.lastOptions = opts
	c.mu.Unlock()
	return c.run(ctx), nil
}

func (c *Client) run(ctx context.Context) <-chan llm.StreamEvent {
	c.streams.Add(1)
	ch := make(chan llm.StreamEvent)
	go func() {
		defer close(ch)
		defer c.cleanups.Add(1)
		for _, chunk := range c.chunks {
			if c.latency > 0 {
				select {
				case <-time.After(c.latency):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- llm.NewDeltaEvent(llm.RoleAssistant, chunk):
			case <-ctx.Done():
				return
			}
		}
		if c.err != nil {
			select {
			case ch <- llm.NewErrorEvent(c.err):
			case <-ctx.Done():
			}
			return
		}
		if c.doneEvent != nil {
			select {
			case ch <- llm.NewDoneEvent(c.doneEvent):
			case <-ctx.Done():
			}
		}
	}()
	return ch
}

func (c *Client) Close() error {
	c.closed.Store(true)
	return nil
}

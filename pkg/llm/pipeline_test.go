package llm

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport replays a fixed chunk script and records what it was
// asked to stream. It implements both streaming interfaces.
type scriptedTransport struct {
	mu sync.Mutex

	chunks   []string
	errEvent *Error
	startErr error
	latency  time.Duration

	lastPrompt   string
	lastMessages []ChatMessage
	lastOpts     CompletionOptions

	cleanupCh chan struct{}
	closed    bool
}

func newScripted(chunks ...string) *scriptedTransport {
	return &scriptedTransport{chunks: chunks, cleanupCh: make(chan struct{}, 8)}
}

func (s *scriptedTransport) StreamComplete(ctx context.Context, prompt string, opts CompletionOptions) (<-chan StreamEvent, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.mu.Lock()
	s.lastPrompt = prompt
	s.lastOpts = opts
	s.mu.Unlock()
	return s.run(ctx), nil
}

func (s *scriptedTransport) StreamChat(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (<-chan StreamEvent, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.mu.Lock()
	s.lastMessages = messages
	s.lastOpts = opts
	s.mu.Unlock()
	return s.run(ctx), nil
}

func (s *scriptedTransport) run(ctx context.Context) <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer func() { s.cleanupCh <- struct{}{} }()
		for _, chunk := range s.chunks {
			if s.latency > 0 {
				select {
				case <-time.After(s.latency):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- NewDeltaEvent("", chunk):
			case <-ctx.Done():
				return
			}
		}
		if s.errEvent != nil {
			select {
			case ch <- NewErrorEvent(s.errEvent):
			case <-ctx.Done():
			}
		}
	}()
	return ch
}

func (s *scriptedTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptedTransport) prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPrompt
}

func (s *scriptedTransport) messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMessages
}

func (s *scriptedTransport) opts() CompletionOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOpts
}

func collect(t *testing.T, events <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not close in time")
		}
	}
}

func TestNewValidatesModel(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, "missing_model", llmErr.Code)
}

func TestNewStripsTrailingSlash(t *testing.T) {
	l, err := New(Options{Model: "llama2-13b", APIBase: "http://localhost:8080/"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", l.APIBase())

	l2, err := New(Options{Model: "llama2-13b", APIBase: "http://localhost:8080"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", l2.APIBase())
}

func TestNewExposesTransportConfig(t *testing.T) {
	l, err := New(Options{
		Model:   "llama2-13b",
		APIKey:  "sk-test",
		Headers: map[string]string{"X-Title": "demo"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sk-test", l.APIKey())
	assert.Equal(t, map[string]string{"X-Title": "demo"}, l.Headers())

	// The accessor hands out a copy, never the stored map.
	l.Headers()["X-Title"] = "mutated"
	assert.Equal(t, "demo", l.Headers()["X-Title"])
}

func TestStreamCompleteDeliversChunksInOrder(t *testing.T) {
	transport := newScripted("a", "b", "c")
	l, err := New(Options{
		Model:     "llama2-13b",
		Provider:  "ollama",
		Transport: transport,
		LogWriter: discardLog{},
	})
	require.NoError(t, err)

	events, err := l.StreamComplete(context.Background(), "hello", CompletionOptions{Raw: boolPtr(true)})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 4)
	assert.Equal(t, "a", got[0].Delta.Content)
	assert.Equal(t, "b", got[1].Delta.Content)
	assert.Equal(t, "c", got[2].Delta.Content)

	done := got[3]
	require.True(t, done.IsDone())
	require.NotNil(t, done.Interaction)
	assert.Equal(t, "hello", done.Interaction.Prompt)
	assert.Equal(t, "abc", done.Interaction.Completion)
}

func TestStreamCompleteTagsDeltasWithAssistantRole(t *testing.T) {
	transport := newScripted("x")
	l, err := New(Options{Model: "llama2-13b", Transport: transport, LogWriter: discardLog{}})
	require.NoError(t, err)

	events, err := l.StreamComplete(context.Background(), "p", CompletionOptions{Raw: boolPtr(true)})
	require.NoError(t, err)
	got := collect(t, events)
	require.NotEmpty(t, got)
	assert.Equal(t, RoleAssistant, got[0].Delta.Role)
}

func TestStreamCompleteRendersPromptThroughTemplate(t *testing.T) {
	transport := newScripted("ok")
	l, err := New(Options{
		Model:         "llama2-13b",
		Provider:      "ollama",
		SystemMessage: "Be terse.",
		Transport:     transport,
		LogWriter:     discardLog{},
	})
	require.NoError(t, err)

	events, err := l.StreamComplete(context.Background(), "write a haiku", CompletionOptions{})
	require.NoError(t, err)
	collect(t, events)

	sent := transport.prompt()
	assert.Contains(t, sent, "[INST]")
	assert.Contains(t, sent, "<<SYS>>")
	assert.Contains(t, sent, "Be terse.")
	assert.Contains(t, sent, "write a haiku")
}

func TestStreamCompleteRawBypassesTemplate(t *testing.T) {
	transport := newScripted("ok")
	l, err := New(Options{Model: "llama2-13b", Transport: transport, LogWriter: discardLog{}})
	require.NoError(t, err)

	events, err := l.StreamComplete(context.Background(), "verbatim prompt", CompletionOptions{Raw: boolPtr(true)})
	require.NoError(t, err)
	collect(t, events)
	assert.Equal(t, "verbatim prompt", transport.prompt())
}

func TestStreamCompletePropagatesTransportErrorVerbatim(t *testing.T) {
	transport := newScripted("partial")
	transport.errEvent = NewTransportError("rate_limit_error", "too many requests", 429)

	l, err := New(Options{Model: "llama2-13b", Transport: transport, LogWriter: discardLog{}})
	require.NoError(t, err)

	events, err := l.StreamComplete(context.Background(), "p", CompletionOptions{Raw: boolPtr(true)})
	require.NoError(t, err)
	got := collect(t, events)

	// Partial output is delivered, then the error, then nothing.
	require.Len(t, got, 2)
	assert.Equal(t, "partial", got[0].Delta.Content)
	require.True(t, got[1].IsError())
	assert.Equal(t, "rate_limit_error", got[1].Err.Code)
	assert.Equal(t, 429, got[1].Err.StatusCode)
	assert.Equal(t, ErrTypeTransport, got[1].Err.Type)
}

func TestStreamCompleteMissingTransportIsConfigurationError(t *testing.T) {
	l, err := New(Options{Model: "llama2-13b", LogWriter: discardLog{}})
	require.NoError(t, err)

	_, err = l.StreamComplete(context.Background(), "p", CompletionOptions{})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestStreamCompleteCancellationReleasesTransport(t *testing.T) {
	transport := newScripted("1", "2", "3", "4", "5")
	transport.latency = 10 * time.Millisecond

	l, err := New(Options{Model: "llama2-13b", Transport: transport, LogWriter: discardLog{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := l.StreamComplete(ctx, "p", CompletionOptions{Raw: boolPtr(true)})
	require.NoError(t, err)

	received := 0
	for ev := range events {
		if ev.IsDelta() {
			received++
		}
		if received == 2 {
			cancel()
			break
		}
	}
	assert.Equal(t, 2, received)

	select {
	case <-transport.cleanupCh:
		// transport released its stream
	case <-time.After(2 * time.Second):
		t.Fatal("transport stream was not released after cancellation")
	}
	cancel()
}

func TestCompleteDrainsStream(t *testing.T) {
	transport := newScripted("a", "b", "c")
	l, err := New(Options{Model: "llama2-13b", Transport: transport, LogWriter: discardLog{}})
	require.NoError(t, err)

	text, err := l.Complete(context.Background(), "p", CompletionOptions{Raw: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, "abc", text)
}

func TestCompleteSurfacesStreamError(t *testing.T) {
	transport := newScripted()
	transport.errEvent = NewTransportError("server_error", "boom", 500)

	l, err := New(Options{Model: "llama2-13b", Transport: transport, LogWriter: discardLog{}})
	require.NoError(t, err)

	_, err = l.Complete(context.Background(), "p", CompletionOptions{Raw: boolPtr(true)})
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
}

func TestStreamChatUsesTemplateWithCompletionTransport(t *testing.T) {
	transport := newScripted("hi")
	l, err := New(Options{
		Model:     "llama2-13b",
		Provider:  "ollama",
		Transport: transport,
		LogWriter: discardLog{},
	})
	require.NoError(t, err)

	msgs := []ChatMessage{NewTextMessage(RoleUser, "hello there")}
	events, err := l.StreamChat(context.Background(), msgs, CompletionOptions{})
	require.NoError(t, err)
	collect(t, events)

	sent := transport.prompt()
	assert.Contains(t, sent, "[INST]")
	assert.Contains(t, sent, "hello there")
	assert.Nil(t, transport.messages())
}

func TestStreamChatUsesNativeTransportWhenNoTemplate(t *testing.T) {
	transport := newScripted("hi")
	l, err := New(Options{
		Model:         "gpt-4",
		Provider:      "openai",
		SystemMessage: "Be helpful.",
		ChatTransport: transport,
		LogWriter:     discardLog{},
	})
	require.NoError(t, err)

	msgs := []ChatMessage{NewTextMessage(RoleUser, "hello")}
	events, err := l.StreamChat(context.Background(), msgs, CompletionOptions{})
	require.NoError(t, err)
	collect(t, events)

	sent := transport.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, RoleSystem, sent[0].Role)
	assert.Equal(t, "Be helpful.", sent[0].Text())
	assert.Equal(t, "hello", sent[1].Text())
	assert.Empty(t, transport.prompt())
}

func TestStreamChatNoTemplateAndNoChatTransportFails(t *testing.T) {
	transport := newScripted("hi")
	l, err := New(Options{
		Model:     "gpt-4",
		Provider:  "openai",
		Transport: transport, // completion only; gpt models resolve to no template
		LogWriter: discardLog{},
	})
	require.NoError(t, err)

	_, err = l.StreamChat(context.Background(), []ChatMessage{NewTextMessage(RoleUser, "hi")}, CompletionOptions{})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, "no_chat_path", llmErr.Code)
}

func TestStreamChatPrefersNativeTransportWhenOnlyChatAvailable(t *testing.T) {
	transport := newScripted("hi")
	l, err := New(Options{
		Model:         "llama2-13b", // resolves to a template
		Provider:      "ollama",
		ChatTransport: transport, // but only native chat streaming exists
		LogWriter:     discardLog{},
	})
	require.NoError(t, err)

	events, err := l.StreamChat(context.Background(), []ChatMessage{NewTextMessage(RoleUser, "hello")}, CompletionOptions{})
	require.NoError(t, err)
	collect(t, events)
	require.NotEmpty(t, transport.messages())
}

func TestChatReturnsAssistantMessage(t *testing.T) {
	transport := newScripted("hel", "lo")
	l, err := New(Options{Model: "llama2-13b", Transport: transport, LogWriter: discardLog{}})
	require.NoError(t, err)

	msg, err := l.Chat(context.Background(), []ChatMessage{NewTextMessage(RoleUser, "hi")}, CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, "hello", msg.Text())
}

func TestEffectiveOptionsMergeThreeLayers(t *testing.T) {
	transport := newScripted("x")
	l, err := New(Options{
		Model:              "llama2-13b",
		Transport:          transport,
		CompletionDefaults: CompletionOptions{Temperature: floatPtr(0.7), MaxTokens: intPtr(2048)},
		ModelDefaults: map[string]CompletionOptions{
			"llama2-13b": {MaxTokens: intPtr(256)},
		},
		LogWriter: discardLog{},
	})
	require.NoError(t, err)

	events, err := l.StreamComplete(context.Background(), "p", CompletionOptions{
		Raw:  boolPtr(true),
		TopP: floatPtr(0.9),
	})
	require.NoError(t, err)
	collect(t, events)

	eff := transport.opts()
	assert.Equal(t, "llama2-13b", eff.Model)
	assert.Equal(t, 256, *eff.MaxTokens)     // model defaults beat instance defaults
	assert.Equal(t, 0.7, *eff.Temperature)   // instance defaults survive
	assert.Equal(t, 0.9, *eff.TopP)          // call site wins
}

func TestInterceptorSeesFinalPrompt(t *testing.T) {
	transport := newScripted("x")
	var seenModel, seenPrompt string
	l, err := New(Options{
		Model:     "llama2-13b",
		Transport: transport,
		Interceptor: func(model, prompt string) {
			seenModel, seenPrompt = model, prompt
		},
		LogWriter: discardLog{},
	})
	require.NoError(t, err)

	events, err := l.StreamComplete(context.Background(), "observe me", CompletionOptions{Raw: boolPtr(true)})
	require.NoError(t, err)
	collect(t, events)

	assert.Equal(t, "llama2-13b", seenModel)
	assert.Equal(t, "observe me", seenPrompt)
}

func TestCloseClosesTransports(t *testing.T) {
	transport := newScripted()
	l, err := New(Options{Model: "llama2-13b", Transport: transport, ChatTransport: transport, LogWriter: discardLog{}})
	require.NoError(t, err)

	require.NoError(t, l.Close())
	assert.True(t, transport.closed)
}

// recordingHost captures proxied requests and replays a scripted stream
type recordingHost struct {
	mu          sync.Mutex
	completeReq *ProxyCompletionRequest
	chatReq     *ProxyChatRequest
	chunks      []string
	doneEvent   *Interaction
}

func (h *recordingHost) Complete(ctx context.Context, req ProxyCompletionRequest) (string, error) {
	h.mu.Lock()
	h.completeReq = &req
	h.mu.Unlock()
	return strings.Join(h.chunks, ""), nil
}

func (h *recordingHost) StreamComplete(ctx context.Context, req ProxyCompletionRequest) (<-chan StreamEvent, error) {
	h.mu.Lock()
	h.completeReq = &req
	h.mu.Unlock()
	return h.run(), nil
}

func (h *recordingHost) StreamChat(ctx context.Context, req ProxyChatRequest) (<-chan StreamEvent, error) {
	h.mu.Lock()
	h.chatReq = &req
	h.mu.Unlock()
	return h.run(), nil
}

func (h *recordingHost) run() <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		for _, c := range h.chunks {
			ch <- NewDeltaEvent(RoleAssistant, c)
		}
		if h.doneEvent != nil {
			ch <- NewDoneEvent(h.doneEvent)
		}
	}()
	return ch
}

func TestEmbeddedSurfaceProxiesThroughHost(t *testing.T) {
	transport := newScripted("should not be used")
	host := &recordingHost{chunks: []string{"via", " host"}}

	l, err := New(Options{
		Model:     "llama2-13b",
		Transport: transport,
		Host:      host,
		Surface:   SurfaceEmbedded,
		Title:     "proxied-model",
		LogWriter: discardLog{},
	})
	require.NoError(t, err)

	events, err := l.StreamComplete(context.Background(), "raw prompt", CompletionOptions{})
	require.NoError(t, err)
	got := collect(t, events)

	require.NotNil(t, host.completeReq)
	// The host receives the unrendered prompt and the instance title.
	assert.Equal(t, "raw prompt", host.completeReq.Prompt)
	assert.Equal(t, "proxied-model", host.completeReq.Title)
	// The local transport is never touched.
	assert.Empty(t, transport.prompt())

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	require.True(t, last.IsDone())
	assert.Equal(t, "via host", last.Interaction.Completion)
}

func TestHostSuppliedDoneEventPassesThrough(t *testing.T) {
	host := &recordingHost{
		chunks:    []string{"x"},
		doneEvent: &Interaction{Prompt: "host prompt", Completion: "host completion"},
	}
	l, err := New(Options{
		Model:     "llama2-13b",
		Host:      host,
		Surface:   SurfaceEmbedded,
		LogWriter: discardLog{},
	})
	require.NoError(t, err)

	events, err := l.StreamComplete(context.Background(), "p", CompletionOptions{})
	require.NoError(t, err)
	got := collect(t, events)

	doneCount := 0
	for _, ev := range got {
		if ev.IsDone() {
			doneCount++
			assert.Equal(t, "host completion", ev.Interaction.Completion)
		}
	}
	assert.Equal(t, 1, doneCount)
}

func TestExternalSurfaceStaysDirect(t *testing.T) {
	transport := newScripted("direct")
	host := &recordingHost{chunks: []string{"proxied"}}

	l, err := New(Options{
		Model:     "llama2-13b",
		Transport: transport,
		Host:      host,
		Surface:   SurfaceExternal,
		LogWriter: discardLog{},
	})
	require.NoError(t, err)

	text, err := l.Complete(context.Background(), "p", CompletionOptions{Raw: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, "direct", text)
	assert.Nil(t, host.completeReq)
}

// discardLog suppresses log output in tests
type discardLog struct{}

func (discardLog) Write(LogEntry) {}

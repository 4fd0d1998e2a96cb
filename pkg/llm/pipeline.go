// The streaming completion pipeline facade
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Transport is the minimal contract every provider client satisfies. Close
// must release any pooled connections; it is safe to call once per client.
type Transport interface {
	Close() error
}

// CompletionStreamer streams text fragments for a fully rendered prompt.
// The returned channel carries delta events (and at most one error event)
// and is closed when the provider stream ends. Producers must stop promptly
// and release the underlying stream once ctx is done, whether or not the
// channel was drained.
type CompletionStreamer interface {
	Transport
	StreamComplete(ctx context.Context, prompt string, opts CompletionOptions) (<-chan StreamEvent, error)
}

// ChatStreamer streams role-tagged fragments for a structured message
// sequence. Required for providers whose multimodal or role-aware protocols
// cannot be flattened to a string. Channel semantics match CompletionStreamer.
type ChatStreamer interface {
	Transport
	StreamChat(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (<-chan StreamEvent, error)
}

// LLM is the uniform call surface over one model backend. All capability-
// and template-derived fields are computed in New and never change; calls
// share no mutable state beyond the log writer, so independent calls may run
// concurrently.
type LLM struct {
	title         string
	provider      string
	model         string
	contextLength int
	systemMessage string

	apiBase string
	apiKey  string
	headers map[string]string

	templateType    TemplateType
	renderer        MessageRenderer
	promptTemplates map[string]string

	defaults      CompletionOptions
	modelDefaults map[string]CompletionOptions

	caps   *CapabilityRegistry
	engine *TemplateEngine
	router *Router

	transport     CompletionStreamer
	chatTransport ChatStreamer

	logWriter   LogWriter
	interceptor RequestInterceptor
}

// New creates an LLM instance from construction options. The base URL's
// trailing slash is stripped here and the stored value never changes.
func New(opts Options) (*LLM, error) {
	if opts.Model == "" {
		return nil, NewValidationError("missing_model", "model is required")
	}

	contextLength := opts.ContextLength
	if contextLength <= 0 {
		contextLength = DefaultContextLength
	}
	surface := opts.Surface
	if surface == "" {
		surface = SurfaceHeadless
	}
	caps := opts.Capabilities
	if caps == nil {
		caps = DefaultCapabilities()
	}
	engine := NewTemplateEngine(caps)

	renderer, hasRenderer := engine.ResolveMessageRenderer(opts.Model, opts.Provider, opts.TemplateType)
	if opts.ChatRenderer != nil {
		renderer, hasRenderer = opts.ChatRenderer, true
	}
	if !hasRenderer {
		renderer = nil
	}

	templateType := opts.TemplateType
	if templateType == "" {
		templateType = caps.DetectTemplateType(opts.Model)
	}

	promptTemplates := engine.ResolveEditPromptTemplates(opts.Model, opts.TemplateType)
	for name, tmpl := range opts.PromptTemplates {
		promptTemplates[name] = tmpl
	}

	logWriter := opts.LogWriter
	if logWriter == nil {
		logWriter = NewSlogWriter(nil)
	}

	return &LLM{
		title:           opts.Title,
		provider:        opts.Provider,
		model:           opts.Model,
		contextLength:   contextLength,
		systemMessage:   opts.SystemMessage,
		apiBase:         strings.TrimSuffix(opts.APIBase, "/"),
		apiKey:          opts.APIKey,
		headers:         opts.Headers,
		templateType:    templateType,
		renderer:        renderer,
		promptTemplates: promptTemplates,
		defaults:        opts.CompletionDefaults,
		modelDefaults:   opts.ModelDefaults,
		caps:            caps,
		engine:          engine,
		router:          NewRouter(opts.Host, surface),
		transport:       opts.Transport,
		chatTransport:   opts.ChatTransport,
		logWriter:       logWriter,
		interceptor:     opts.Interceptor,
	}, nil
}

// Title returns the instance title used in logs and proxy requests
func (l *LLM) Title() string { return l.title }

// Model returns the model name
func (l *LLM) Model() string { return l.model }

// Provider returns the provider identifier
func (l *LLM) Provider() string { return l.provider }

// ContextLength returns the model's context window size
func (l *LLM) ContextLength() int { return l.contextLength }

// APIBase returns the normalized base URL
func (l *LLM) APIBase() string { return l.apiBase }

// APIKey returns the configured credential; empty when the transport
// manages authentication itself.
func (l *LLM) APIKey() string { return l.apiKey }

// Headers returns a copy of the extra outbound headers
func (l *LLM) Headers() map[string]string {
	out := make(map[string]string, len(l.headers))
	for k, v := range l.headers {
		out[k] = v
	}
	return out
}

// TemplateType returns the resolved template family
func (l *LLM) TemplateType() TemplateType { return l.templateType }

// PromptTemplates returns the resolved named prompt variants, custom
// overrides included.
func (l *LLM) PromptTemplates() map[string]string {
	out := make(map[string]string, len(l.promptTemplates))
	for k, v := range l.promptTemplates {
		out[k] = v
	}
	return out
}

// SupportsImages reports whether this instance accepts image parts
func (l *LLM) SupportsImages() bool {
	return l.caps.SupportsImages(l.provider, l.model)
}

// SupportsParallelGeneration reports the advisory concurrency flag
func (l *LLM) SupportsParallelGeneration() bool {
	return l.caps.SupportsParallelGeneration(l.provider, l.model)
}

// Close releases the underlying transports
func (l *LLM) Close() error {
	var firstErr error
	if l.transport != nil {
		if err := l.transport.Close(); err != nil {
			firstErr = err
		}
	}
	if l.chatTransport != nil && Transport(l.chatTransport) != Transport(l.transport) {
		if err := l.chatTransport.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// effectiveOptions merges the three option layers: global defaults, then
// instance defaults, then per-model defaults, with call-site overrides last.
func (l *LLM) effectiveOptions(call CompletionOptions) CompletionOptions {
	base := CompletionOptions{Model: l.model, MaxTokens: intPtr(DefaultMaxTokens)}
	eff := base.Merge(l.defaults)
	if md, ok := l.modelDefaults[l.model]; ok {
		eff = eff.Merge(md)
	}
	return eff.Merge(call)
}

// Complete sends a flat prompt and returns only the final completion text.
func (l *LLM) Complete(ctx context.Context, prompt string, overrides CompletionOptions) (string, error) {
	if !l.router.ShouldRequestDirectly() {
		eff := l.effectiveOptions(overrides)
		id := uuid.NewString()
		l.logPrompt(id, prompt, eff)
		l.intercept(prompt)
		text, err := l.router.Host().Complete(ctx, ProxyCompletionRequest{Title: l.title, Prompt: prompt, Options: eff})
		if err != nil {
			e := AsTransportError(err)
			l.logError(id, e, eff)
			return "", e
		}
		l.logCompletion(id, text, eff)
		return text, nil
	}

	events, err := l.StreamComplete(ctx, prompt, overrides)
	if err != nil {
		return "", err
	}
	return drainText(events)
}

// StreamComplete sends a flat prompt and yields completion fragments as the
// transport produces them. On the direct path the prompt is pruned to the
// token budget and, unless the raw flag suppresses it, wrapped as a single
// user message and rendered through the chat template before transmission.
// On the proxied path the unrendered prompt is forwarded and the host's
// output relayed unchanged. The terminal done event carries the accumulated
// {prompt, completion} pair.
func (l *LLM) StreamComplete(ctx context.Context, prompt string, overrides CompletionOptions) (<-chan StreamEvent, error) {
	eff := l.effectiveOptions(overrides)
	id := uuid.NewString()

	if !l.router.ShouldRequestDirectly() {
		l.logPrompt(id, prompt, eff)
		l.intercept(prompt)
		src, err := l.router.Host().StreamComplete(ctx, ProxyCompletionRequest{Title: l.title, Prompt: prompt, Options: eff})
		if err != nil {
			e := AsTransportError(err)
			l.logError(id, e, eff)
			return nil, e
		}
		return l.relay(ctx, id, prompt, src, eff), nil
	}

	if l.transport == nil {
		return nil, NewConfigurationError("missing_transport", "no completion transport configured for the direct path")
	}

	pruned := PruneRawPromptFromTop(l.model, l.contextLength, prompt, derefInt(eff.MaxTokens))
	final := pruned
	if !eff.IsRaw() && l.renderer != nil {
		msgs := make([]ChatMessage, 0, 2)
		if l.systemMessage != "" {
			msgs = append(msgs, NewTextMessage(RoleSystem, l.systemMessage))
		}
		msgs = append(msgs, NewTextMessage(RoleUser, pruned))
		final = l.renderer(msgs)
	}

	l.logPrompt(id, final, eff)
	l.intercept(final)

	src, err := l.transport.StreamComplete(ctx, final, eff)
	if err != nil {
		e := AsTransportError(err)
		l.logError(id, e, eff)
		return nil, e
	}
	return l.relay(ctx, id, final, src, eff), nil
}

// Chat fully drains StreamChat and returns one terminal assistant message.
func (l *LLM) Chat(ctx context.Context, messages []ChatMessage, overrides CompletionOptions) (ChatMessage, error) {
	events, err := l.StreamChat(ctx, messages, overrides)
	if err != nil {
		return ChatMessage{}, err
	}
	text, err := drainText(events)
	if err != nil {
		return ChatMessage{}, err
	}
	return NewTextMessage(RoleAssistant, text), nil
}

// StreamChat compiles the conversation into the token budget and streams the
// response. With a chat template available the conversation is rendered to a
// single string and streamed through the completion transport; otherwise the
// structured messages go to the native chat transport. Having neither is a
// configuration error, not a retryable fault.
func (l *LLM) StreamChat(ctx context.Context, messages []ChatMessage, overrides CompletionOptions) (<-chan StreamEvent, error) {
	eff := l.effectiveOptions(overrides)
	id := uuid.NewString()

	compiled, err := CompileChatMessages(l.model, messages, l.contextLength,
		derefInt(eff.MaxTokens), l.SupportsImages(), l.systemMessage)
	if err != nil {
		return nil, err
	}

	direct := l.router.ShouldRequestDirectly()

	useTemplate := l.renderer != nil
	if direct && useTemplate && l.transport == nil && l.chatTransport != nil {
		// A template exists but there is nothing to stream strings through;
		// the native chat transport still serves the call.
		useTemplate = false
	}

	if useTemplate {
		prompt := l.renderer(compiled)
		l.logPrompt(id, prompt, eff)
		l.intercept(prompt)

		var src <-chan StreamEvent
		if direct {
			if l.transport == nil {
				return nil, NewConfigurationError("missing_transport", "no completion transport configured for the direct path")
			}
			src, err = l.transport.StreamComplete(ctx, prompt, eff)
		} else {
			src, err = l.router.Host().StreamComplete(ctx, ProxyCompletionRequest{Title: l.title, Prompt: prompt, Options: eff})
		}
		if err != nil {
			e := AsTransportError(err)
			l.logError(id, e, eff)
			return nil, e
		}
		return l.relay(ctx, id, prompt, src, eff), nil
	}

	logged := flattenMessages(compiled)
	l.logPrompt(id, logged, eff)
	l.intercept(logged)

	var src <-chan StreamEvent
	if direct {
		if l.chatTransport == nil {
			return nil, NewConfigurationError("no_chat_path",
				"model resolves to no chat template and the transport implements no native chat streaming")
		}
		src, err = l.chatTransport.StreamChat(ctx, compiled, eff)
	} else {
		src, err = l.router.Host().StreamChat(ctx, ProxyChatRequest{Title: l.title, Messages: compiled, Options: eff})
	}
	if err != nil {
		e := AsTransportError(err)
		l.logError(id, e, eff)
		return nil, e
	}
	return l.relay(ctx, id, logged, src, eff), nil
}

// relay forwards transport events to the caller, tagging deltas with the
// assistant role, accumulating the completion, and appending the terminal
// done event when the source did not supply one. Forwarding suspends only at
// the send; when the consumer abandons the channel the ctx cancellation
// unblocks it and the transport's own ctx handling releases the stream.
func (l *LLM) relay(ctx context.Context, id, prompt string, src <-chan StreamEvent, eff CompletionOptions) <-chan StreamEvent {
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		var sb strings.Builder
		doneSeen := false
		for ev := range src {
			switch {
			case ev.IsDelta():
				if ev.Delta.Role == "" {
					ev.Delta.Role = RoleAssistant
				}
				sb.WriteString(ev.Delta.Content)
			case ev.IsDone():
				doneSeen = true
				if ev.Interaction == nil {
					ev.Interaction = &Interaction{Prompt: prompt, Completion: sb.String()}
				}
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}

			if ev.IsError() {
				// Propagated verbatim; partial output already delivered is
				// never retracted.
				l.logError(id, ev.Err, eff)
				return
			}
		}

		completion := sb.String()
		if !doneSeen {
			ev := NewDoneEvent(&Interaction{Prompt: prompt, Completion: completion})
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		l.logCompletion(id, completion, eff)
	}()
	return out
}

func (l *LLM) intercept(prompt string) {
	if l.interceptor != nil {
		l.interceptor(l.model, prompt)
	}
}

func (l *LLM) logPrompt(id, prompt string, eff CompletionOptions) {
	if l.logWriter == nil || eff.LoggingDisabled() {
		return
	}
	l.logWriter.Write(LogEntry{
		Kind:          LogKindPrompt,
		InteractionID: id,
		Title:         l.title,
		Model:         l.model,
		Prompt:        prompt,
		Options:       eff,
		Timestamp:     time.Now(),
	})
}

func (l *LLM) logCompletion(id, completion string, eff CompletionOptions) {
	if l.logWriter == nil || eff.LoggingDisabled() {
		return
	}
	l.logWriter.Write(LogEntry{
		Kind:          LogKindCompletion,
		InteractionID: id,
		Title:         l.title,
		Model:         l.model,
		Completion:    completion,
		Options:       eff,
		Timestamp:     time.Now(),
	})
}

func (l *LLM) logError(id string, err *Error, eff CompletionOptions) {
	if l.logWriter == nil || eff.LoggingDisabled() {
		return
	}
	l.logWriter.Write(LogEntry{
		Kind:          LogKindError,
		InteractionID: id,
		Title:         l.title,
		Model:         l.model,
		Err:           err,
		Options:       eff,
		Timestamp:     time.Now(),
	})
}

// drainText consumes a stream to completion, concatenating delta content.
// The first error event aborts the drain and surfaces as the *Error.
func drainText(events <-chan StreamEvent) (string, error) {
	var sb strings.Builder
	for ev := range events {
		switch {
		case ev.IsDelta():
			sb.WriteString(ev.Delta.Content)
		case ev.IsError():
			return sb.String(), ev.Err
		}
	}
	return sb.String(), nil
}

// flattenMessages serializes a conversation for log entries on the native
// chat path, where no rendered prompt string exists.
func flattenMessages(messages []ChatMessage) string {
	var sb strings.Builder
	for i, msg := range messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(string(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(msg.Text())
	}
	return sb.String()
}

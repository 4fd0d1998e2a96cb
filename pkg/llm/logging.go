// Interaction logging hooks
package llm

import (
	"log/slog"
	"time"
)

// LogKind distinguishes the two entries written per call
type LogKind string

const (
	LogKindPrompt     LogKind = "prompt"
	LogKindCompletion LogKind = "completion"
	LogKindError      LogKind = "error"
)

// LogEntry is one record emitted by the pipeline. For every call the prompt
// entry precedes the completion entry; no ordering is guaranteed across
// concurrent calls.
type LogEntry struct {
	Kind          LogKind
	InteractionID string
	Title         string
	Model         string
	Prompt        string
	Completion    string
	Err           *Error
	Options       CompletionOptions
	Timestamp     time.Time
}

// LogWriter receives log entries. Implementations must tolerate concurrent
// writes from independent calls.
type LogWriter interface {
	Write(entry LogEntry)
}

// slogWriter is the default LogWriter, emitting structured records via slog
type slogWriter struct {
	logger *slog.Logger
}

// NewSlogWriter creates a LogWriter backed by the given slog logger; nil
// selects slog.Default.
func NewSlogWriter(logger *slog.Logger) LogWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogWriter{logger: logger}
}

func (w *slogWriter) Write(entry LogEntry) {
	switch entry.Kind {
	case LogKindPrompt:
		w.logger.Info("llm request",
			"interaction_id", entry.InteractionID,
			"title", entry.Title,
			"model", entry.Model,
			"prompt", entry.Prompt,
			"max_tokens", derefInt(entry.Options.MaxTokens),
		)
	case LogKindCompletion:
		w.logger.Info("llm completion",
			"interaction_id", entry.InteractionID,
			"title", entry.Title,
			"model", entry.Model,
			"completion", entry.Completion,
		)
	case LogKindError:
		w.logger.Error("llm transport failure",
			"interaction_id", entry.InteractionID,
			"title", entry.Title,
			"model", entry.Model,
			"error", entry.Err.Message,
			"code", entry.Err.Code,
		)
	}
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

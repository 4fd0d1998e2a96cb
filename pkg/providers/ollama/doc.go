// Package ollama implements streaming transports for an Ollama server. The
// completion path uses /api/generate in raw mode so pre-rendered prompts
// bypass the server-side model template; the chat path uses /api/chat.
package ollama

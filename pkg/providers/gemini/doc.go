// Package gemini implements a native chat streaming transport for the
// Gemini API using the official google.golang.org/genai library. Gemini
// formats conversations server-side, so there is no completion transport.
package gemini

// Package openai implements streaming transports for the OpenAI API and any
// OpenAI-compatible endpoint (LM Studio, text-generation-webui, llamafile).
// Completion streams use the legacy completions endpoint; chat streams use
// chat completions with multimodal content support.
package openai

// Package llm provides a uniform, provider-agnostic surface for driving
// heterogeneous large-language-model backends.
//
// The package hides per-backend variation behind one streaming pipeline:
//
// - LLM: the facade exposing Complete, StreamComplete, Chat and StreamChat
// - CapabilityRegistry: per-model/provider capability flags and template-family detection
// - TemplateEngine: renders ordered chat messages into provider-specific prompt strings
// - Token budget: deterministic truncation of prompts and message sequences
// - Router: decides between a direct network call and delegation to a host process
//
// Provider transports live in separate packages under /pkg/providers/ and
// implement the CompletionStreamer and/or ChatStreamer contracts defined here;
// the core never imports them.
package llm

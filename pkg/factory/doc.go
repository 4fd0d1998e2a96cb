// Package factory provides transport registration and LLM construction from
// declarative model configuration. Providers register constructors at init
// time; CreateLLM resolves the transport by provider name and wires whichever
// streaming interfaces it implements.
package factory

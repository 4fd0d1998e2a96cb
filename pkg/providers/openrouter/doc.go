// Package openrouter implements a native chat streaming transport for the
// OpenRouter aggregation API via the revrost/go-openrouter library.
package openrouter

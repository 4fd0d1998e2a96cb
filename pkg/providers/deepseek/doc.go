// Package deepseek implements a native chat streaming transport for the
// DeepSeek API via the cohesion-org/deepseek-go library.
package deepseek

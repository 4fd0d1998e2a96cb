// Package mock provides a scriptable in-memory transport for tests and
// offline development. Streams replay a fixed chunk script and record
// prompts, options, and resource-release counts for assertions.
package mock

// Request routing between the direct and host-proxied paths
package llm

import "context"

// Surface describes the execution context embedding this library.
type Surface string

const (
	// SurfaceHeadless is a process with no host UI at all, e.g. a CLI or a
	// batch job. Requests always go out directly.
	SurfaceHeadless Surface = "headless"
	// SurfaceEmbedded is the managed UI integration whose host performs
	// network calls on the library's behalf.
	SurfaceEmbedded Surface = "embedded"
	// SurfaceExternal is any other embedding UI; those render results but do
	// not proxy requests.
	SurfaceExternal Surface = "external"
)

// ProxyCompletionRequest is the wire shape of a proxied completion call.
type ProxyCompletionRequest struct {
	Title   string            `json:"title"`
	Prompt  string            `json:"prompt"`
	Options CompletionOptions `json:"options"`
}

// ProxyChatRequest is the wire shape of a proxied chat call.
type ProxyChatRequest struct {
	Title    string            `json:"title"`
	Messages []ChatMessage     `json:"messages"`
	Options  CompletionOptions `json:"options"`
}

// HostProxy is the host-process collaborator used on the proxied path. The
// two paths must be externally indistinguishable in inputs and outputs; only
// the transport differs. Stream channels follow the same contract as
// provider transports: deltas (plus at most one error) then close, except
// that a host may emit its own terminal done event carrying the final
// {prompt, completion} pair.
type HostProxy interface {
	Complete(ctx context.Context, req ProxyCompletionRequest) (string, error)
	StreamComplete(ctx context.Context, req ProxyCompletionRequest) (<-chan StreamEvent, error)
	StreamChat(ctx context.Context, req ProxyChatRequest) (<-chan StreamEvent, error)
}

// Router decides, per call, whether this process performs the network call
// itself or forwards it to the host.
type Router struct {
	host    HostProxy
	surface Surface
}

// NewRouter creates a Router for the given host and surface
func NewRouter(host HostProxy, surface Surface) *Router {
	return &Router{host: host, surface: surface}
}

// ShouldRequestDirectly reports whether the current execution context makes
// the network call itself. Headless processes (no host) always do; embedded
// contexts defer to the host only when the surface is the managed UI
// integration.
func (r *Router) ShouldRequestDirectly() bool {
	if r == nil || r.host == nil {
		return true
	}
	return r.surface != SurfaceEmbedded
}

// Host returns the proxy, or nil when running headless
func (r *Router) Host() HostProxy {
	if r == nil {
		return nil
	}
	return r.host
}

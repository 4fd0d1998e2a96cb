package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// nopHost satisfies HostProxy for routing tests
type nopHost struct{}

func (nopHost) Complete(ctx context.Context, req ProxyCompletionRequest) (string, error) {
	return "", nil
}

func (nopHost) StreamComplete(ctx context.Context, req ProxyCompletionRequest) (<-chan StreamEvent, error) {
	ch := make(chan StreamEvent)
	close(ch)
	return ch, nil
}

func (nopHost) StreamChat(ctx context.Context, req ProxyChatRequest) (<-chan StreamEvent, error) {
	ch := make(chan StreamEvent)
	close(ch)
	return ch, nil
}

func TestRouterShouldRequestDirectly(t *testing.T) {
	tests := []struct {
		name     string
		host     HostProxy
		surface  Surface
		expected bool
	}{
		{"no host is always direct", nil, SurfaceEmbedded, true},
		{"headless with host is direct", nopHost{}, SurfaceHeadless, true},
		{"external surface with host is direct", nopHost{}, SurfaceExternal, true},
		{"embedded surface with host proxies", nopHost{}, SurfaceEmbedded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(tt.host, tt.surface)
			assert.Equal(t, tt.expected, r.ShouldRequestDirectly())
		})
	}
}

func TestRouterNilReceiver(t *testing.T) {
	var r *Router
	assert.True(t, r.ShouldRequestDirectly())
	assert.Nil(t, r.Host())
}

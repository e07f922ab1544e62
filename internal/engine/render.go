package engine

import (
	"context"

	"github.com/hay-kot/dotapply/internal/config"
	"github.com/hay-kot/dotapply/internal/core"
)

// Renderer produces the content of a render destination from the template at
// src and the entry's options. Implementations must not write to the
// filesystem; the executor owns the destination.
type Renderer interface {
	Render(ctx context.Context, src string, opts config.Options) ([]byte, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, src string, opts config.Options) ([]byte, error)

func (f RendererFunc) Render(ctx context.Context, src string, opts config.Options) ([]byte, error) {
	return f(ctx, src, opts)
}

type unavailableRenderer struct{}

func (unavailableRenderer) Render(context.Context, string, config.Options) ([]byte, error) {
	return nil, core.ErrRenderUnavailable
}

package hooks

import (
	"context"

	"github.com/arloliu/subwatch/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(context.Context, types.CanonicalSubscription) error         = (*NopHooks)(nil).OnActivated
	_ func(context.Context, types.CanonicalSubscription, string) error = (*NopHooks)(nil).OnActivationFailed
	_ func(context.Context, error) error                               = (*NopHooks)(nil).OnError
)

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - types.Hooks: Hooks with no-op implementations
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnActivated:        h.OnActivated,
		OnActivationFailed: h.OnActivationFailed,
		OnError:            h.OnError,
	}
}

// Fill returns a copy of hooks with every nil callback replaced by its no-op.
func Fill(hooks *types.Hooks) types.Hooks {
	filled := NewNop()
	if hooks == nil {
		return filled
	}
	if hooks.OnActivated != nil {
		filled.OnActivated = hooks.OnActivated
	}
	if hooks.OnActivationFailed != nil {
		filled.OnActivationFailed = hooks.OnActivationFailed
	}
	if hooks.OnError != nil {
		filled.OnError = hooks.OnError
	}

	return filled
}

// OnActivated is a no-op implementation.
func (h *NopHooks) OnActivated(ctx context.Context, sub types.CanonicalSubscription) error {
	return nil
}

// OnActivationFailed is a no-op implementation.
func (h *NopHooks) OnActivationFailed(ctx context.Context, sub types.CanonicalSubscription, reason string) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(ctx context.Context, err error) error {
	return nil
}

package analytics

import (
	"context"

	"skillup/core"
	"skillup/engine"
)

// BridgeHook bridges an event source to multiple hooks.
type BridgeHook struct{ hooks []Hook }

func NewBridge(hooks ...Hook) *BridgeHook { return &BridgeHook{hooks: hooks} }

func (b *BridgeHook) OnEvent(e core.Event) {
	for _, h := range b.hooks {
		h.OnEvent(e)
	}
}

// Subscriber is satisfied by engine.EventBus and engine.ProgressService.
type Subscriber interface {
	Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func()
}

var _ Subscriber = (*engine.EventBus)(nil)

// Attach subscribes hook to every engine event and returns a detach func.
func Attach(src Subscriber, hook Hook) func() {
	unsubs := make([]func(), 0, len(core.EventTypes))
	for _, typ := range core.EventTypes {
		unsubs = append(unsubs, src.Subscribe(typ, func(_ context.Context, e core.Event) {
			hook.OnEvent(e)
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

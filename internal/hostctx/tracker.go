// Package hostctx tracks the context record the host platform hands to the panel.
package hostctx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/davidahmann/infraweave-panel/pkg/types"
)

// MessageTypeContext is the only pushed message type the tracker acts on.
const MessageTypeContext = "context"

// Message is one pushed host message.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Tracker holds the latest host context. The zero value is not usable; use New.
type Tracker struct {
	mu      sync.Mutex
	current *types.PluginContext
	ready   chan struct{}
	subs    map[int]chan types.PluginContext
	nextSub int
}

func New() *Tracker {
	return &Tracker{
		ready: make(chan struct{}),
		subs:  map[int]chan types.PluginContext{},
	}
}

// Set replaces the current context and notifies subscribers.
func (t *Tracker) Set(pc types.PluginContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := pc
	first := t.current == nil
	t.current = &snapshot
	if first {
		close(t.ready)
	}
	for _, ch := range t.subs {
		offer(ch, snapshot)
	}
}

// Handle applies a pushed message. It reports whether the message changed the
// context; messages of any other type are ignored.
func (t *Tracker) Handle(msg Message) (bool, error) {
	if msg.Type != MessageTypeContext {
		return false, nil
	}
	var pc types.PluginContext
	if err := json.Unmarshal(msg.Data, &pc); err != nil {
		return false, fmt.Errorf("decode context message: %w", err)
	}
	t.Set(pc)
	return true, nil
}

// Current returns the latest context, if one has been delivered.
func (t *Tracker) Current() (types.PluginContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return types.PluginContext{}, false
	}
	return *t.current, true
}

// Wait blocks until a context is available or ctx is done.
func (t *Tracker) Wait(ctx context.Context) (types.PluginContext, error) {
	select {
	case <-t.ready:
		pc, _ := t.Current()
		return pc, nil
	case <-ctx.Done():
		return types.PluginContext{}, ctx.Err()
	}
}

// Subscribe returns a channel receiving every context set after the call.
// A slow reader only ever sees the newest context. Call cancel to release it.
func (t *Tracker) Subscribe() (<-chan types.PluginContext, func()) {
	ch := make(chan types.PluginContext, 1)
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	t.mu.Unlock()
	return ch, func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

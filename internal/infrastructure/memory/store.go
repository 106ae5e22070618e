// Package memory provides in-process repositories used by the memory store
// driver and by tests. Every repository supports a hook that can fail
// operations on demand.
package memory

import "sync"

// Op names passed to a Hook.
const (
	OpInsert = "insert"
	OpUpsert = "upsert"
	OpGet    = "get"
	OpList   = "list"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Hook runs before every repository operation. A non-nil error aborts the
// operation and is returned to the caller.
type Hook func(op string, key any) error

type hooked struct {
	mu   sync.Mutex
	hook Hook
}

// SetHook installs h; nil removes the hook.
func (h *hooked) SetHook(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hook = hook
}

func (h *hooked) before(op string, key any) error {
	h.mu.Lock()
	hook := h.hook
	h.mu.Unlock()
	if hook == nil {
		return nil
	}
	return hook(op, key)
}

// FailTimes returns a hook that fails the first n calls of op with err.
func FailTimes(op string, n int, err error) Hook {
	var mu sync.Mutex
	remaining := n
	return func(got string, _ any) error {
		if got != op {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		if remaining <= 0 {
			return nil
		}
		remaining--
		return err
	}
}

package toys

import (
	"errors"
	"fmt"
	"sync"
)

// Key identifies a key press delivered by the windowing layer. Printable
// keys use their rune value; special keys use the negative constants below.
type Key rune

// Special keys.
const (
	KeyUp Key = -(iota + 1)
	KeyDown
	KeyLeft
	KeyRight
	KeyPageUp
	KeyPageDown
	KeyEscape
)

var keyNames = map[Key]string{
	KeyUp:       "Up",
	KeyDown:     "Down",
	KeyLeft:     "Left",
	KeyRight:    "Right",
	KeyPageUp:   "PageUp",
	KeyPageDown: "PageDown",
	KeyEscape:   "Escape",
}

// String returns the key name.
func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	if k == ' ' {
		return "Space"
	}
	if k > ' ' {
		return string(rune(k))
	}
	return fmt.Sprintf("Key(%d)", int(k))
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	for k, name := range keyNames {
		if name == s {
			return k, nil
		}
	}
	if s == "Space" {
		return ' ', nil
	}
	if r := []rune(s); len(r) == 1 && r[0] > ' ' {
		return Key(r[0]), nil
	}
	return 0, fmt.Errorf("toys: unknown key %q", s)
}

// Handler receives the input events of one window.
type Handler interface {
	HandleKey(k Key) error
	Resize(width, height int) error
}

// WindowID is the opaque handle the windowing layer uses for a window.
type WindowID uint64

// ErrUnknownWindow is returned when an event targets an unregistered window.
var ErrUnknownWindow = errors.New("toys: unknown window")

// WindowTable routes windowing-system callbacks to the toy that owns the
// window. Several toys may run at once, each under its own handle.
//
// WindowTable is safe for concurrent use; callbacks may arrive on the
// windowing layer's thread.
type WindowTable struct {
	mu       sync.RWMutex
	handlers map[WindowID]Handler
}

// Register routes the events of id to h, replacing any prior handler.
func (t *WindowTable) Register(id WindowID, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handlers == nil {
		t.handlers = make(map[WindowID]Handler)
	}
	t.handlers[id] = h
}

// Remove drops the handler of id.
func (t *WindowTable) Remove(id WindowID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, id)
}

// Lookup returns the handler of id.
func (t *WindowTable) Lookup(id WindowID) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handlers[id]
	return h, ok
}

// Len returns the number of registered windows.
func (t *WindowTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers)
}

// DispatchKey delivers a key press to the handler of id.
func (t *WindowTable) DispatchKey(id WindowID, k Key) error {
	h, ok := t.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownWindow, id)
	}
	return h.HandleKey(k)
}

// DispatchResize delivers a resize to the handler of id.
func (t *WindowTable) DispatchResize(id WindowID, width, height int) error {
	h, ok := t.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownWindow, id)
	}
	return h.Resize(width, height)
}

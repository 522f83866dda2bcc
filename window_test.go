package toys

import (
	"errors"
	"sync"
	"testing"
)

type recordingHandler struct {
	keys    []Key
	resizes [][2]int
}

func (h *recordingHandler) HandleKey(k Key) error {
	h.keys = append(h.keys, k)
	return nil
}

func (h *recordingHandler) Resize(w, h2 int) error {
	h.resizes = append(h.resizes, [2]int{w, h2})
	return nil
}

func TestWindowTableRouting(t *testing.T) {
	var table WindowTable
	a, b := &recordingHandler{}, &recordingHandler{}
	table.Register(1, a)
	table.Register(2, b)

	if err := table.DispatchKey(1, 'w'); err != nil {
		t.Fatal(err)
	}
	if err := table.DispatchKey(2, KeyUp); err != nil {
		t.Fatal(err)
	}
	if err := table.DispatchResize(2, 320, 200); err != nil {
		t.Fatal(err)
	}

	if len(a.keys) != 1 || a.keys[0] != 'w' || len(a.resizes) != 0 {
		t.Errorf("handler 1 got keys %v resizes %v", a.keys, a.resizes)
	}
	if len(b.keys) != 1 || b.keys[0] != KeyUp || len(b.resizes) != 1 {
		t.Errorf("handler 2 got keys %v resizes %v", b.keys, b.resizes)
	}

	table.Remove(1)
	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}
	if err := table.DispatchKey(1, 'w'); !errors.Is(err, ErrUnknownWindow) {
		t.Errorf("DispatchKey(removed) error = %v, want ErrUnknownWindow", err)
	}
	if err := table.DispatchResize(9, 1, 1); !errors.Is(err, ErrUnknownWindow) {
		t.Errorf("DispatchResize(unknown) error = %v, want ErrUnknownWindow", err)
	}
}

func TestWindowTableConcurrent(t *testing.T) {
	var table WindowTable
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := WindowID(i)
			table.Register(id, &recordingHandler{})
			if _, ok := table.Lookup(id); !ok {
				t.Errorf("Lookup(%d) failed", id)
			}
		}()
	}
	wg.Wait()
	if table.Len() != 16 {
		t.Errorf("Len() = %d, want 16", table.Len())
	}
}

func TestKeyString(t *testing.T) {
	tests := []struct {
		key  Key
		want string
	}{
		{'w', "w"},
		{'+', "+"},
		{' ', "Space"},
		{KeyPageDown, "PageDown"},
		{KeyLeft, "Left"},
		{Key(3), "Key(3)"},
	}
	for _, tt := range tests {
		if got := tt.key.String(); got != tt.want {
			t.Errorf("Key(%d).String() = %q, want %q", int(tt.key), got, tt.want)
		}
		if tt.key == 3 {
			continue
		}
		back, err := ParseKey(tt.want)
		if err != nil || back != tt.key {
			t.Errorf("ParseKey(%q) = %v, %v", tt.want, back, err)
		}
	}
	if _, err := ParseKey("Hyper"); err == nil {
		t.Error("ParseKey(Hyper) succeeded")
	}
}

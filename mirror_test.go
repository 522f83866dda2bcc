package toys

import (
	"bytes"
	"testing"
)

func TestMirrorSync(t *testing.T) {
	s, b := openSoftware(t)
	mgr := s.Buffers()

	state := []byte{1, 2, 3, 4}
	buf, err := mgr.AllocateReadOnly(state, "State")
	if err != nil {
		t.Fatal(err)
	}
	encode := func() []byte { return append([]byte(nil), state...) }

	tests := []struct {
		name                  string
		opts                  []MirrorOption
		dirty                 bool
		wantUpload, wantReset bool
	}{
		{"clean", nil, false, false, false},
		{"dirty", nil, true, true, true},
		{"blocking", []MirrorOption{BlockingUpload()}, true, true, true},
		{"always dirty", []MirrorOption{AlwaysDirty()}, false, true, false},
		{"always dirty and marked", []MirrorOption{AlwaysDirty()}, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMirror(buf, encode, tt.opts...)
			if tt.dirty {
				m.MarkDirty()
			}
			writes := b.Stats().Writes
			uploaded, restart, err := m.sync(mgr)
			if err != nil {
				t.Fatalf("sync() error = %v", err)
			}
			if uploaded != tt.wantUpload || restart != tt.wantReset {
				t.Errorf("sync() = %v, %v, want %v, %v", uploaded, restart, tt.wantUpload, tt.wantReset)
			}
			if got := b.Stats().Writes - writes; (got == 1) != tt.wantUpload {
				t.Errorf("driver writes = %d", got)
			}
			if m.Dirty() && !tt.wantUpload {
				t.Error("mirror still dirty without upload")
			}
		})
	}
}

func TestMirrorUploadsCurrentState(t *testing.T) {
	s, _ := openSoftware(t)
	mgr := s.Buffers()

	state := []byte{0, 0, 0, 0}
	buf, err := mgr.AllocateReadOnly(state, "State")
	if err != nil {
		t.Fatal(err)
	}
	m := NewMirror(buf, func() []byte { return state })

	state = []byte{9, 8, 7, 6}
	m.MarkDirty()
	if _, _, err := m.sync(mgr); err != nil {
		t.Fatal(err)
	}
	if m.Dirty() || m.Uploads() != 1 {
		t.Errorf("Dirty() = %v, Uploads() = %d", m.Dirty(), m.Uploads())
	}
	got := make([]byte, 4)
	if err := mgr.Download(buf, got, true); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, state) {
		t.Errorf("device state = %v, want %v", got, state)
	}
}

// A mirror whose encoding grows, e.g. after adding a sphere, replaces the
// allocation behind the same handle.
func TestMirrorGrows(t *testing.T) {
	s, _ := openSoftware(t)
	mgr := s.Buffers()

	state := make([]byte, 8)
	buf, err := mgr.AllocateReadOnly(state, "Spheres")
	if err != nil {
		t.Fatal(err)
	}
	m := NewMirror(buf, func() []byte { return state })
	gen := buf.Generation()

	state = make([]byte, 16)
	m.MarkDirty()
	if _, restart, err := m.sync(mgr); err != nil || !restart {
		t.Fatalf("sync() = %v, %v", restart, err)
	}
	if buf.Size() != 16 || buf.Generation() == gen || m.Buffer() != buf {
		t.Errorf("Size() = %d, Generation() = %d (was %d)", buf.Size(), buf.Generation(), gen)
	}
}

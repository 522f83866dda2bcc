package toys

// Mirror ties host state to the device buffer that holds its encoded
// image. Host code calls MarkDirty after every mutation; the pipeline
// uploads dirty mirrors before the next dispatch.
type Mirror struct {
	buf      *Buffer
	encode   func() []byte
	dirty    bool
	always   bool
	blocking bool
	uploads  int
}

// MirrorOption configures a Mirror.
type MirrorOption func(*Mirror)

// AlwaysDirty uploads the mirror before every frame. Such uploads do not
// restart accumulation; they suit toys that redraw from scratch each frame.
func AlwaysDirty() MirrorOption {
	return func(m *Mirror) { m.always = true }
}

// BlockingUpload makes uploads wait for completion.
func BlockingUpload() MirrorOption {
	return func(m *Mirror) { m.blocking = true }
}

// NewMirror returns a clean mirror of buf. encode returns the current
// device image of the host state.
func NewMirror(buf *Buffer, encode func() []byte, opts ...MirrorOption) *Mirror {
	m := &Mirror{buf: buf, encode: encode}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MarkDirty records a host mutation.
func (m *Mirror) MarkDirty() { m.dirty = true }

// Dirty reports whether an upload is pending.
func (m *Mirror) Dirty() bool { return m.dirty || m.always }

// Uploads returns the number of uploads performed.
func (m *Mirror) Uploads() int { return m.uploads }

// Buffer returns the mirrored buffer.
func (m *Mirror) Buffer() *Buffer { return m.buf }

// sync uploads the mirror when dirty. restart reports whether the upload
// invalidates accumulated samples. An encoded image whose size differs from
// the buffer replaces the allocation.
func (m *Mirror) sync(mgr *BufferManager) (uploaded, restart bool, err error) {
	if !m.Dirty() {
		return false, false, nil
	}
	data := m.encode()
	if len(data) != m.buf.Size() {
		err = m.buf.ResizeWith(data)
	} else {
		err = mgr.Upload(m.buf, data, m.blocking)
	}
	if err != nil {
		return false, false, err
	}
	restart = m.dirty
	m.dirty = false
	m.uploads++
	mgr.s.log.Debug("toys: mirror uploaded", "buffer", m.buf.name, "size", len(data))
	return true, restart, nil
}

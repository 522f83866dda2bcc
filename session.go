package toys

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gogpu/toys/backend"
	"github.com/gogpu/toys/gpucore"
)

// SessionConfig selects the driver and devices of a session.
type SessionConfig struct {
	// Backend is the driver to use. When nil the driver is opened from the
	// registry by BackendName, or the best available one when that is empty.
	Backend gpucore.Backend

	// BackendName names a registered driver, e.g. "wgpu".
	BackendName string

	// DeviceType filters the devices considered.
	DeviceType gpucore.DeviceType

	// MaxDevices bounds the working set. 0 means 1; each toy dispatches on
	// a single queue.
	MaxDevices int
}

// Session owns the driver context, the per-device queues and every buffer
// and program created for one toy. It replaces process-wide device state:
// everything is reached through the session and released by Close.
type Session struct {
	id      string
	backend gpucore.Backend
	owned   bool
	devices []gpucore.Device
	ctx     gpucore.Context
	queues  []gpucore.Queue

	buffers  *BufferManager
	programs []*Program
	closed   bool
	log      *slog.Logger
}

// Open selects devices and creates the context and queues. Any failure is
// a *SetupError; resources acquired before the failure are released.
func Open(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, owned := cfg.Backend, false
	if b == nil {
		var err error
		if cfg.BackendName != "" {
			b, err = backend.Get(cfg.BackendName)
		} else {
			b, err = backend.Default()
		}
		if err != nil {
			return nil, &SetupError{Op: "open backend", Err: err}
		}
		owned = true
	}

	s := &Session{
		id:      uuid.NewString(),
		backend: b,
		owned:   owned,
	}
	s.log = Logger().With("session", s.id, "backend", b.Name())
	s.buffers = &BufferManager{s: s, live: make(map[*Buffer]struct{})}
	trackDriver(b)

	maxCount := cfg.MaxDevices
	if maxCount <= 0 {
		maxCount = 1
	}
	devs, err := SelectDevices(b, cfg.DeviceType, maxCount)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.devices = devs

	if s.ctx, err = b.CreateContext(devs); err != nil {
		s.Close()
		return nil, &SetupError{Op: "create context", Err: err}
	}
	for _, d := range devs {
		if err := ctx.Err(); err != nil {
			s.Close()
			return nil, err
		}
		q, err := s.ctx.CreateQueue(d)
		if err != nil {
			s.Close()
			return nil, &SetupError{Op: fmt.Sprintf("create queue for %s", d.Info().Name), Err: err}
		}
		s.queues = append(s.queues, q)
	}

	s.log.InfoContext(ctx, "toys: session open", "devices", len(devs), "device", devs[0].Info().Name)
	return s, nil
}

// ID returns the unique session identifier attached to its log records.
func (s *Session) ID() string { return s.id }

// Backend returns the session's driver.
func (s *Session) Backend() gpucore.Backend { return s.backend }

// Devices returns the selected devices.
func (s *Session) Devices() []gpucore.Device { return s.devices }

// Device returns the i-th selected device.
func (s *Session) Device(i int) gpucore.Device { return s.devices[i] }

// Queue returns the queue of the i-th selected device.
func (s *Session) Queue(i int) gpucore.Queue { return s.queues[i] }

// Buffers returns the session's buffer manager.
func (s *Session) Buffers() *BufferManager { return s.buffers }

// Finish waits for every queue to drain.
func (s *Session) Finish() error {
	for _, q := range s.queues {
		if err := q.Finish(); err != nil {
			return &TransferError{Buffer: "*", Op: "finish", Err: err}
		}
	}
	return nil
}

// Close drains the queues and releases programs, buffers, queues and the
// context, in that order. A driver opened by the session is closed too.
// Close is safe to call more than once.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true

	for _, q := range s.queues {
		if err := q.Finish(); err != nil {
			s.log.Warn("toys: finish before close failed", "err", err)
		}
	}
	for _, p := range s.programs {
		p.Release()
	}
	s.programs = nil
	s.buffers.releaseAll()
	for _, q := range s.queues {
		q.Release()
	}
	s.queues = nil
	if s.ctx != nil {
		s.ctx.Release()
		s.ctx = nil
	}

	untrackDriver(s.backend)
	if c, ok := s.backend.(interface{ Close() }); ok && s.owned {
		c.Close()
	}
	s.log.Info("toys: session closed")
}

func (s *Session) checkOpen() error {
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

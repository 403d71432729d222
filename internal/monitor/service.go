package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/dmdmdm-nz/devdwatch/internal/devd"
	"github.com/dmdmdm-nz/devdwatch/internal/runtime"
)

type Config struct {
	SocketPath     string
	PollTimeout    time.Duration
	ReconnectDelay time.Duration
	// QueueLen bounds each subscriber queue; 0 means unbounded.
	QueueLen int
}

// Service owns the devd connection. It waits for readability, drains the
// socket, reconnects when devd goes away and fans events out to subscribers.
type Service struct {
	cfg      Config
	registry *devd.Registry
	metrics  *Metrics
	unreg    []func()
	now      func() time.Time

	mu        sync.RWMutex
	devices   map[string]Record
	connected bool

	subsMu           sync.Mutex
	subs             map[int]*runtime.SubQueue[Record]
	nextSubscriberID int
	closed           bool
}

// NewService registers catch-all handlers on registry. Other handlers may be
// registered on the same registry and will run on the monitor goroutine.
func NewService(cfg Config, registry *devd.Registry, metrics *Metrics) *Service {
	if cfg.SocketPath == "" {
		cfg.SocketPath = devd.DefaultSocketPath
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	s := &Service{
		cfg:      cfg,
		registry: registry,
		metrics:  metrics,
		now:      time.Now,
		devices:  make(map[string]Record),
		subs:     make(map[int]*runtime.SubQueue[Record]),
	}

	unregDevice, err := registry.RegisterDevice("*", devd.ActionAll, s.handleDevice)
	if err != nil {
		// ActionAll is always a valid mask.
		panic(err)
	}
	unregNotify := registry.RegisterNotify("*", "*", "*", s.handleNotify)
	s.unreg = []func(){unregDevice, unregNotify}

	return s
}

func (s *Service) Metrics() *Metrics { return s.metrics }

// Connected reports whether the devd socket is currently open.
func (s *Service) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Devices returns the currently attached devices sorted by name.
func (s *Service) Devices() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.devices))
	for _, rec := range s.devices {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Subscribe returns a channel that first receives every attached device as an
// Add record and then live records. The func unsubscribes.
func (s *Service) Subscribe() (<-chan Record, func()) {
	snapshot := s.Devices()

	sub := runtime.NewSubQueue[Record](len(snapshot)+8, s.cfg.QueueLen)

	s.subsMu.Lock()
	if s.closed {
		s.subsMu.Unlock()
		sub.Close()
		return sub.Chan(), func() {}
	}
	id := s.nextSubscriberID
	s.nextSubscriberID++
	s.subs[id] = sub
	s.subsMu.Unlock()

	for _, rec := range snapshot {
		sub.SnapshotSend(rec)
	}
	sub.SetPaused(false)

	unsub := func() {
		s.subsMu.Lock()
		if q, ok := s.subs[id]; ok {
			delete(s.subs, id)
			q.Close()
		}
		s.subsMu.Unlock()
	}
	return sub.Chan(), unsub
}

func (s *Service) Start(ctx context.Context) error {
	log.WithField("path", s.cfg.SocketPath).Info("Starting devd monitoring service")
	defer log.Info("Stopping devd monitoring service")

	first := true
	for {
		if !first {
			s.metrics.Reconnects.Inc()
		}
		first = false

		conn, err := devd.Dial(s.cfg.SocketPath, s.registry)
		if err != nil {
			log.WithError(err).WithField("path", s.cfg.SocketPath).Warn("Failed to connect to devd")
		} else {
			log.WithField("path", s.cfg.SocketPath).Info("Connected to devd")
			s.setConnected(true)
			err = s.serve(ctx, conn)
			s.setConnected(false)
			_ = conn.Close()

			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Warn("Lost devd connection")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

func (s *Service) Close() error {
	for _, unreg := range s.unreg {
		unreg()
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id, q := range s.subs {
		q.Close()
		delete(s.subs, id)
	}
	return nil
}

// serve waits for the socket to become readable and drains it until the
// connection closes or ctx ends.
func (s *Service) serve(ctx context.Context, conn *devd.Conn) error {
	conn.OnDrop(func(line string, err error) {
		s.metrics.LinesDropped.WithLabelValues(dropReason(err)).Inc()
	})

	fds := []unix.PollFd{{Fd: int32(conn.Fd()), Events: unix.POLLIN}}
	timeout := int(s.cfg.PollTimeout / time.Millisecond)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := unix.Poll(fds, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll devd socket: %w", err)
		}
		if n == 0 {
			continue
		}

		if err := s.drain(conn); err != nil {
			return err
		}
	}
}

// drain keeps calling ReadAndDispatch while complete lines are buffered.
func (s *Service) drain(conn *devd.Conn) error {
	for {
		err := conn.ReadAndDispatch()
		switch {
		case errors.Is(err, devd.ErrClosed):
			return err
		case errors.Is(err, devd.ErrLineTooLong):
			s.metrics.LinesDropped.WithLabelValues(dropReason(err)).Inc()
		}
		if !conn.Pending() {
			return nil
		}
	}
}

func (s *Service) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()

	if v {
		s.metrics.Connected.Set(1)
	} else {
		s.metrics.Connected.Set(0)
	}
}

func (s *Service) handleDevice(ev devd.DeviceEvent) {
	rec := newDeviceRecord(ev, s.now())
	s.metrics.Events.WithLabelValues(string(KindDevice), rec.Action).Inc()

	s.mu.Lock()
	switch ev.Action {
	case devd.ActionAdd:
		s.devices[ev.Name] = rec
	case devd.ActionRemove:
		delete(s.devices, ev.Name)
	}
	attached := len(s.devices)
	s.mu.Unlock()
	s.metrics.AttachedDevices.Set(float64(attached))

	log.WithFields(log.Fields{
		"action": rec.Action,
		"device": ev.Name,
		"parent": ev.Parent,
	}).Debug("Device event")

	s.broadcast(rec)
}

func (s *Service) handleNotify(ev devd.NotifyEvent) {
	rec := newNotifyRecord(ev, s.now())
	s.metrics.Events.WithLabelValues(string(KindNotify), "").Inc()

	log.WithFields(log.Fields{
		"system":    ev.System,
		"subsystem": ev.Subsystem,
		"type":      ev.Type,
	}).Debug("Notify event")

	s.broadcast(rec)
}

func (s *Service) broadcast(rec Record) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, sub := range s.subs {
		sub.Enqueue(rec)
	}
}

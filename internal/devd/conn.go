package devd

import (
	"bytes"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	// DefaultSocketPath is where devd accepts stream clients.
	DefaultSocketPath = "/var/run/devd.pipe"

	// BufferSize bounds a single devd line, terminator included.
	BufferSize = 1024
)

// DropHandler observes lines that were read but produced no event.
type DropHandler func(line string, err error)

// Conn is a non-blocking connection to devd. It is not safe for concurrent
// use; the owner waits for readability and then calls ReadAndDispatch.
type Conn struct {
	fd         int
	buf        [BufferSize]byte
	off        int
	discarding bool

	registry *Registry
	onDrop   DropHandler
}

// Dial connects to the devd socket at path. Events read from the connection
// are dispatched to registry.
func Dial(path string, registry *Registry) (*Conn, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("devd: socket: %w", err)
	}

	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("devd: connect %s: %w", path, err)
	}

	c, err := newConn(fd, registry)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	log.WithField("path", path).Debug("Connected to devd")
	return c, nil
}

// newConn takes ownership of an already connected stream descriptor.
func newConn(fd int, registry *Registry) (*Conn, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("devd: set non-blocking: %w", err)
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Conn{fd: fd, registry: registry}, nil
}

// Fd returns the descriptor to wait on for readability, or -1 once closed.
func (c *Conn) Fd() int { return c.fd }

// Registry returns the registry events are dispatched to.
func (c *Conn) Registry() *Registry { return c.registry }

// OnDrop installs a hook called for every line that is discarded.
func (c *Conn) OnDrop(h DropHandler) { c.onDrop = h }

// Close releases the descriptor. Calling it again is a no-op.
func (c *Conn) Close() error {
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	c.off = 0
	c.discarding = false
	return err
}

// Pending reports whether a complete line is already buffered.
func (c *Conn) Pending() bool {
	return !c.discarding && bytes.IndexByte(c.buf[:c.off], '\n') >= 0
}

// ReadAndDispatch performs at most one non-blocking read and then processes
// at most one buffered line. It returns nil when the caller should keep
// going, ErrLineTooLong when a line had to be thrown away, and an error
// wrapping ErrClosed once the peer hung up or the read failed.
func (c *Conn) ReadAndDispatch() error {
	if c.fd < 0 {
		return ErrClosed
	}

	if c.off < len(c.buf) {
		n, err := unix.Read(c.fd, c.buf[c.off:])
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			// Nothing new; there may still be a buffered line.
		case err != nil:
			_ = c.Close()
			return fmt.Errorf("%w: %w", ErrClosed, err)
		case n == 0:
			_ = c.Close()
			return ErrClosed
		default:
			c.off += n
		}
	}

	if c.discarding {
		i := bytes.IndexByte(c.buf[:c.off], '\n')
		if i < 0 {
			c.off = 0
			return nil
		}
		c.compact(i + 1)
		c.discarding = false
	}

	i := bytes.IndexByte(c.buf[:c.off], '\n')
	if i < 0 {
		if c.off == len(c.buf) {
			log.WithField("size", len(c.buf)).Warn("Discarding devd line without terminator")
			c.off = 0
			c.discarding = true
			return ErrLineTooLong
		}
		return nil
	}

	line := string(c.buf[:i])
	c.compact(i + 1)
	c.process(line)
	return nil
}

// compact moves everything after n to the start of the buffer.
func (c *Conn) compact(n int) {
	c.off = copy(c.buf[:], c.buf[n:c.off])
}

func (c *Conn) process(line string) {
	ev, err := ParseLine(line)
	if err != nil {
		if errors.Is(err, ErrUnsupportedLine) {
			log.WithField("line", line).Trace("Ignoring devd line")
		} else {
			log.WithError(err).Debug("Dropping malformed devd line")
		}
		if c.onDrop != nil {
			c.onDrop(line, err)
		}
		return
	}

	n := c.registry.Dispatch(ev)
	log.WithFields(log.Fields{
		"line":     line,
		"handlers": n,
	}).Trace("Dispatched devd event")
}

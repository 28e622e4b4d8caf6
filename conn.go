// Package wirecheck verifies that a peer speaks a small framed TCP protocol.
// Each frame is a 4-byte kind tag, an 8-byte payload length and the payload,
// integers little-endian. Two roles run the same exchanges in mirror: the
// requester sends a message and reads a Valid verdict, the responder reads,
// validates and replies.
package wirecheck

import (
	"bufio"
	"io"
	"math"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Default configuration values.
const (
	// defaultMaxPayload bounds text payloads (1MB).
	defaultMaxPayload = 1024 * 1024

	defaultLengthMin = 1024
	defaultLengthMax = 2048
	defaultStepMin   = 2
	defaultStepMax   = 60
)

// Conn carries frames over a byte stream. It is used by one goroutine at a
// time: every exchange is a strict write-then-read turn.
type Conn struct {
	rawConn io.ReadWriteCloser
	reader  *bufio.Reader
	logger  Logger
	remote  string

	opts options

	closed atomic.Bool
}

// NewConn wraps a connection provider. A net.Conn is the usual provider; any
// io.ReadWriteCloser works, which is how tests feed in-memory streams.
func NewConn(conn io.ReadWriteCloser, opt ...Option) (*Conn, error) {
	opts, err := buildOptions(opt)
	if err != nil {
		return nil, err
	}
	return newConnWithOptions(conn, opts), nil
}

func buildOptions(opt []Option) (options, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	return opts, checkOptions(&opts)
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.blockSize < 0 || opts.maxPayload < 0 || opts.idleTimeout < 0 {
		return errors.Wrap(ErrInvalidOption, "negative size or timeout")
	}

	if opts.blockSize == 0 {
		opts.blockSize = BlockSize
	}

	if opts.maxPayload == 0 {
		opts.maxPayload = defaultMaxPayload
	}

	if !opts.lengthSet {
		opts.lengthMin, opts.lengthMax = defaultLengthMin, defaultLengthMax
	}

	if !opts.stepSet {
		opts.stepMin, opts.stepMax = defaultStepMin, defaultStepMax
	}

	if opts.lengthMin < 0 || opts.lengthMin > opts.lengthMax {
		return errors.Wrapf(ErrInvalidOption, "sequence length range [%d, %d]", opts.lengthMin, opts.lengthMax)
	}

	if opts.stepMin > opts.stepMax {
		return errors.Wrapf(ErrInvalidOption, "step range [%d, %d]", opts.stepMin, opts.stepMax)
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

func newConnWithOptions(c io.ReadWriteCloser, opts options) *Conn {
	cc := &Conn{
		rawConn: c,
		reader:  bufio.NewReaderSize(c, opts.blockSize),
		logger:  opts.logger,
		opts:    opts,
	}
	if addr := cc.Addr(); addr != nil {
		cc.remote = addr.String()
	}
	return cc
}

// Addr returns the remote address, or nil when the provider has none.
func (c *Conn) Addr() net.Addr {
	if rc, ok := c.rawConn.(interface{ RemoteAddr() net.Addr }); ok {
		return rc.RemoteAddr()
	}
	return nil
}

// Close closes the underlying stream. Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}
	return c.rawConn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// ReadExact reads exactly n bytes, retrying short and empty reads.
// If the stream ends before the first byte it returns io.EOF, which means the
// peer left; ending part way returns io.ErrUnexpectedEOF.
func (c *Conn) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	read := 0
	for read < n {
		m, err := c.reader.Read(buf[read:])
		read += m
		if err == nil {
			continue
		}
		if err == io.EOF {
			if read == n {
				break
			}
			if read == 0 {
				return nil, io.EOF
			}
			return nil, io.ErrUnexpectedEOF
		}
		return nil, errors.Wrap(err, "read")
	}
	return buf, nil
}

// ReadMessage reads one frame. It returns io.EOF when the peer closed the
// stream between frames and a *ProtocolError when the frame is malformed.
func (c *Conn) ReadMessage() (Message, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	c.setReadDeadline()

	tag, err := c.ReadExact(TagSize)
	if err != nil {
		return nil, err
	}

	kind := Kind(byteOrder.Uint32(tag))
	if !kind.Known() {
		c.logger.Error("invalid message kind", "addr", c.remote, "kind", uint32(kind))
		return nil, &ProtocolError{Op: "read message", Err: errors.Wrapf(ErrUnknownKind, "tag %d", uint32(kind))}
	}

	raw, err := c.ReadExact(LengthSize)
	if err != nil {
		return nil, midFrame(err)
	}
	length := byteOrder.Uint64(raw)

	if kind == KindArbitrary {
		if length > math.MaxInt64 {
			return nil, &ProtocolError{Op: "read message", Err: errors.Wrapf(ErrPayloadTooLarge, "%d filler bytes", length)}
		}
		return c.drain(int64(length))
	}

	if length > uint64(c.opts.maxPayload) {
		c.logger.Error("payload too large", "addr", c.remote, "kind", kind.String(), "length", length)
		return nil, &ProtocolError{Op: "read message", Err: errors.Wrapf(ErrPayloadTooLarge, "%s payload of %d bytes", kind, length)}
	}

	payload, err := c.ReadExact(int(length))
	if err != nil {
		return nil, midFrame(err)
	}

	msg, err := Decode(kind, payload)
	if err != nil {
		c.logger.Error("malformed message", "addr", c.remote, "kind", kind.String(), "error", err)
		return nil, err
	}

	c.logger.Info("received", "addr", c.remote, "message", msg.String())
	return msg, nil
}

// midFrame turns end of stream inside a frame into a truncation error.
func midFrame(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// drain counts Arbitrary filler until the declared length is reached or the
// stream ends. Each read is capped at the bytes still owed, so the next frame
// is left in the buffer.
func (c *Conn) drain(declared int64) (Message, error) {
	buf := make([]byte, c.opts.blockSize)
	start := time.Now()

	var received int64
	for received < declared {
		n, err := c.reader.Read(buf[:min(int64(len(buf)), declared-received)])
		received += int64(n)
		if c.opts.onProgress != nil {
			c.opts.onProgress(received, declared)
		}
		if err == io.EOF {
			c.logger.Warn("stream ended while draining", "addr", c.remote, "declared", declared, "received", received)
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "drain arbitrary payload")
		}
	}

	elapsed := time.Since(start)
	c.logger.Info("drained arbitrary payload", "addr", c.remote,
		"declared", declared,
		"received", received,
		"elapsed", elapsed.String(),
		"mib_per_sec", throughput(received, elapsed))

	return NewArbitraryResult(declared, received), nil
}

// throughput returns MiB per second, 0 when no time has passed.
func throughput(n int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / (1024 * 1024) / elapsed.Seconds()
}

// WriteMessage writes every chunk of the encoded frame in order.
func (c *Conn) WriteMessage(m Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if err := CheckEncodable(m); err != nil {
		c.logger.Error("refusing to send", "addr", c.remote, "message", m.String(), "error", err)
		return err
	}
	c.setWriteDeadline()

	for chunk := range encode(m, c.opts.blockSize) {
		if _, err := c.rawConn.Write(chunk); err != nil {
			c.logger.Debug("write error", "addr", c.remote, "error", err)
			return errors.Wrapf(err, "write %s", m.Kind())
		}
	}

	c.logger.Info("sent", "addr", c.remote, "message", m.String())
	return nil
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

func (c *Conn) setReadDeadline() {
	if c.opts.idleTimeout <= 0 {
		return
	}
	if d, ok := c.rawConn.(readDeadliner); ok {
		_ = d.SetReadDeadline(time.Now().Add(c.opts.idleTimeout))
	}
}

func (c *Conn) setWriteDeadline() {
	if c.opts.idleTimeout <= 0 {
		return
	}
	if d, ok := c.rawConn.(writeDeadliner); ok {
		_ = d.SetWriteDeadline(time.Now().Add(c.opts.idleTimeout))
	}
}

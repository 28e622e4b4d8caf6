package wirecheck

import (
	"math/rand/v2"

	"github.com/pkg/errors"
)

// DefaultArbitrarySize is the filler transferred by the Arbitrary exchange (20MiB).
const DefaultArbitrarySize = 20 * 1024 * 1024

// RequestAck sends an Ack and returns the peer's verdict.
func (c *Conn) RequestAck() (bool, error) {
	return c.request(NewAck())
}

// RequestAlgorithm sends the named algorithm with a random length and step
// and returns the peer's verdict on the precomputed output.
func (c *Conn) RequestAlgorithm(name string) (bool, error) {
	length := c.between(c.opts.lengthMin, c.opts.lengthMax)
	step := c.between(c.opts.stepMin, c.opts.stepMax)

	msg, err := NewAlgorithm(name, length, step)
	if err != nil {
		return false, err
	}
	return c.request(msg)
}

// RequestArbitrary sends n filler bytes and returns whether the peer counted
// exactly n.
func (c *Conn) RequestArbitrary(n int64) (bool, error) {
	if n < 0 {
		return false, errors.Wrapf(ErrInvalidOption, "arbitrary size %d", n)
	}
	return c.request(NewArbitrary(n))
}

// RequestPing sends the current time and returns the peer's verdict.
func (c *Conn) RequestPing() (bool, error) {
	return c.request(NewPing())
}

// RespondAck reads an Ack and replies with its verdict.
func (c *Conn) RespondAck() (bool, error) {
	return c.respond(KindAck)
}

// RespondAlgorithm reads an Algorithm, regenerates its output and replies
// with whether the output matched.
func (c *Conn) RespondAlgorithm() (bool, error) {
	return c.respond(KindAlgorithm)
}

// RespondArbitrary drains an Arbitrary transfer and replies with whether the
// counted bytes equal the declared length.
func (c *Conn) RespondArbitrary() (bool, error) {
	return c.respond(KindArbitrary)
}

// RespondPing reads a Ping and replies with its verdict.
func (c *Conn) RespondPing() (bool, error) {
	return c.respond(KindPing)
}

func (c *Conn) request(m Message) (bool, error) {
	if err := c.WriteMessage(m); err != nil {
		return false, err
	}

	reply, err := c.ReadMessage()
	if err != nil {
		return false, err
	}

	v, ok := reply.(Valid)
	if !ok {
		c.logger.Error("unexpected reply", "addr", c.remote, "want", KindValid.String(), "got", reply.Kind().String())
		return false, nil
	}
	if !v.OK {
		c.logger.Error("peer rejected message", "addr", c.remote, "kind", m.Kind().String())
	}
	return v.OK, nil
}

// respond reads one message of kind want and answers with a Valid verdict.
// Protocol violations are answered with Valid(false) before being returned,
// so the peer learns the outcome before the connection is torn down.
func (c *Conn) respond(want Kind) (bool, error) {
	m, err := c.ReadMessage()
	if err != nil {
		if errors.Is(err, ErrProtocol) {
			c.rejectQuietly()
		}
		return false, err
	}

	if m.Kind() != want {
		c.logger.Error("unexpected message", "addr", c.remote, "want", want.String(), "got", m.Kind().String())
		return false, c.reply(false)
	}

	ok, err := Validate(m)
	if err != nil {
		c.rejectQuietly()
		return false, err
	}
	if !ok {
		c.logger.Error("invalid message", "addr", c.remote, "message", m.String())
	}
	return ok, c.reply(ok)
}

func (c *Conn) reply(ok bool) error {
	return c.WriteMessage(NewValid(ok))
}

func (c *Conn) rejectQuietly() {
	if err := c.reply(false); err != nil {
		c.logger.Debug("reject failed", "addr", c.remote, "error", err)
	}
}

// between returns a uniform integer in [lo, hi].
func (c *Conn) between(lo, hi int) int {
	span := hi - lo + 1
	if c.opts.random != nil {
		return lo + c.opts.random.IntN(span)
	}
	return lo + rand.IntN(span)
}

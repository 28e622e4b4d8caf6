package wirecheck

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Kind identifies a message on the wire. Tags are fixed and must not be renumbered.
type Kind uint32

const (
	KindArbitrary Kind = iota
	KindAlgorithm
	KindAck
	KindPing
	KindValid
)

// Frame layout. All integers are little-endian.
const (
	// TagSize is the width of the kind tag.
	TagSize = 4
	// LengthSize is the width of the payload length.
	LengthSize = 8
	// HeaderSize is the fixed part of every frame.
	HeaderSize = TagSize + LengthSize

	// BlockSize is the default unit for writing and draining Arbitrary filler.
	BlockSize = 8192
)

// byteOrder is part of the wire format, independent of the host.
var byteOrder = binary.LittleEndian

func (k Kind) String() string {
	switch k {
	case KindArbitrary:
		return "ARBITRARY"
	case KindAlgorithm:
		return "ALGORITHM"
	case KindAck:
		return "ACK"
	case KindPing:
		return "PING"
	case KindValid:
		return "VALID"
	}
	return "Kind(" + strconv.FormatUint(uint64(k), 10) + ")"
}

// Known reports whether k is one of the defined kinds.
func (k Kind) Known() bool {
	return k <= KindValid
}

// Message is one of Ack, Ping, Valid, Algorithm or Arbitrary.
// All implementations are comparable values; use Equal to compare them.
type Message interface {
	// Kind returns the wire tag.
	Kind() Kind
	// Args returns the ordered string arguments carried on the wire.
	Args() []string
	// String renders the message for logs.
	String() string
}

// Ack carries no arguments.
type Ack struct{}

// Ping carries the sender's clock reading. The timestamp must be non-empty
// and free of ',' to survive the text payload.
type Ping struct {
	Timestamp string
}

// Valid carries a peer's verdict on the previous message.
type Valid struct {
	OK bool
}

// Algorithm asks the peer to regenerate Output from Name, Length and Step.
type Algorithm struct {
	Name   string
	Length int
	Step   int
	Output string
}

// Arbitrary is a block of filler bytes. On the sending side only Declared matters;
// after receipt Received holds the number of bytes actually counted.
type Arbitrary struct {
	Declared int64
	Received int64
}

func (Ack) Kind() Kind       { return KindAck }
func (Ping) Kind() Kind      { return KindPing }
func (Valid) Kind() Kind     { return KindValid }
func (Algorithm) Kind() Kind { return KindAlgorithm }
func (Arbitrary) Kind() Kind { return KindArbitrary }

func (Ack) Args() []string { return nil }

func (m Ping) Args() []string { return []string{m.Timestamp} }

func (m Valid) Args() []string { return []string{strconv.FormatBool(m.OK)} }

func (m Algorithm) Args() []string {
	return []string{m.Name, strconv.Itoa(m.Length), strconv.Itoa(m.Step), m.Output}
}

func (m Arbitrary) Args() []string {
	return []string{strconv.FormatInt(m.Declared, 10)}
}

func (m Ack) String() string   { return renderArgs(m) }
func (m Ping) String() string  { return renderArgs(m) }
func (m Valid) String() string { return renderArgs(m) }

func (m Algorithm) String() string {
	return fmt.Sprintf("%s<%s,%d,%d,%s>", m.Kind(), m.Name, m.Length, m.Step, truncate(m.Output, 24))
}

func (m Arbitrary) String() string {
	return fmt.Sprintf("%s<declared=%d received=%d>", m.Kind(), m.Declared, m.Received)
}

func renderArgs(m Message) string {
	return fmt.Sprintf("%s<%s>", m.Kind(), strings.Join(m.Args(), ","))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// NewAck returns an Ack.
func NewAck() Ack { return Ack{} }

// NewPing returns a Ping stamped with the current time in Unix seconds.
func NewPing() Ping {
	now := time.Now()
	secs := float64(now.UnixNano()) / float64(time.Second)
	return Ping{Timestamp: strconv.FormatFloat(secs, 'f', 6, 64)}
}

// NewValid returns a verdict.
func NewValid(ok bool) Valid { return Valid{OK: ok} }

// NewAlgorithm computes the expected output of the named algorithm.
func NewAlgorithm(name string, length, step int) (Algorithm, error) {
	f, err := LookupAlgorithm(name)
	if err != nil {
		return Algorithm{}, err
	}
	return Algorithm{Name: name, Length: length, Step: step, Output: f(length, step)}, nil
}

// NewArbitrary returns a request to transfer n filler bytes.
func NewArbitrary(n int64) Arbitrary { return Arbitrary{Declared: n} }

// NewArbitraryResult records how many bytes were counted against the declared length.
func NewArbitraryResult(declared, received int64) Arbitrary {
	return Arbitrary{Declared: declared, Received: received}
}

// Equal reports whether a and b are the same message.
func Equal(a, b Message) bool {
	return a == b
}

// CheckArity reports whether args has the shape kind requires.
func CheckArity(kind Kind, args []string) error {
	want := -1
	switch kind {
	case KindAck:
		want = 0
	case KindPing, KindValid:
		want = 1
	case KindAlgorithm:
		want = 4
	case KindArbitrary:
		if len(args) == 1 || len(args) == 2 {
			return nil
		}
		return &ProtocolError{Op: "check arity", Err: errors.Wrapf(ErrArity, "%s expects 1 or 2 args, got %d", kind, len(args))}
	default:
		return &ProtocolError{Op: "check arity", Err: errors.Wrapf(ErrUnknownKind, "tag %d", uint32(kind))}
	}

	if len(args) != want {
		return &ProtocolError{Op: "check arity", Err: errors.Wrapf(ErrArity, "%s expects %d args, got %d", kind, want, len(args))}
	}
	return nil
}

// FromArgs builds the message of the given kind from its wire arguments.
func FromArgs(kind Kind, args []string) (Message, error) {
	if err := CheckArity(kind, args); err != nil {
		return nil, err
	}

	switch kind {
	case KindAck:
		return Ack{}, nil
	case KindPing:
		return Ping{Timestamp: args[0]}, nil
	case KindValid:
		ok, err := strconv.ParseBool(args[0])
		if err != nil {
			return nil, malformed(kind, "verdict", args[0])
		}
		return Valid{OK: ok}, nil
	case KindAlgorithm:
		length, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, malformed(kind, "length", args[1])
		}
		step, err := strconv.Atoi(args[2])
		if err != nil {
			return nil, malformed(kind, "step", args[2])
		}
		return Algorithm{Name: args[0], Length: length, Step: step, Output: args[3]}, nil
	case KindArbitrary:
		declared, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || declared < 0 {
			return nil, malformed(kind, "declared length", args[0])
		}
		received := int64(0)
		if len(args) == 2 {
			received, err = strconv.ParseInt(args[1], 10, 64)
			if err != nil || received < 0 {
				return nil, malformed(kind, "received length", args[1])
			}
		}
		return Arbitrary{Declared: declared, Received: received}, nil
	}
	return nil, &ProtocolError{Op: "decode", Err: errors.Wrapf(ErrUnknownKind, "tag %d", uint32(kind))}
}

func malformed(kind Kind, field, value string) error {
	return &ProtocolError{Op: "decode", Err: errors.Wrapf(ErrMalformedArgument, "%s %s %q", kind, field, truncate(value, 32))}
}

// CheckEncodable reports whether m's text payload decodes back to the same
// arguments: no argument may contain ',' and a lone argument may not be empty.
// WriteMessage refuses messages that fail it.
func CheckEncodable(m Message) error {
	if _, ok := m.(Arbitrary); ok {
		return nil
	}

	args := m.Args()
	if len(args) == 1 && args[0] == "" {
		return &ProtocolError{Op: "encode", Err: errors.Wrapf(ErrMalformedArgument, "%s argument is empty", m.Kind())}
	}
	for _, arg := range args {
		if strings.Contains(arg, ",") {
			return &ProtocolError{Op: "encode", Err: errors.Wrapf(ErrMalformedArgument, "%s argument %q contains ','", m.Kind(), truncate(arg, 32))}
		}
	}
	return nil
}

// Decode rebuilds a text-payload message. The payload is UTF-8 with arguments
// separated by ','; an empty payload has no arguments. Arbitrary payloads are
// counted by the transport and cannot be decoded here.
func Decode(kind Kind, payload []byte) (Message, error) {
	if kind == KindArbitrary {
		return nil, &ProtocolError{Op: "decode", Err: errors.Wrap(ErrMalformedArgument, "arbitrary payload has no text form")}
	}
	if !utf8.Valid(payload) {
		return nil, &ProtocolError{Op: "decode", Err: errors.Wrapf(ErrMalformedArgument, "%s payload is not UTF-8", kind)}
	}

	var args []string
	if len(payload) > 0 {
		args = strings.Split(string(payload), ",")
	}
	return FromArgs(kind, args)
}

// Validate decides whether a well-formed message is semantically valid.
// A false result is a validation failure; an error is a protocol violation.
func Validate(m Message) (bool, error) {
	switch v := m.(type) {
	case Ack, Ping, Valid:
		return true, nil
	case Algorithm:
		return ValidateAlgorithm(v.Name, v.Length, v.Step, v.Output)
	case Arbitrary:
		return v.Declared == v.Received, nil
	}
	return false, &ProtocolError{Op: "validate", Err: errors.Wrapf(ErrUnknownKind, "%T", m)}
}

// Encode lazily yields the frame for m: header first, then the payload.
// It does not check m; see CheckEncodable.
// Arbitrary filler is yielded in BlockSize chunks that share one backing
// array, so callers must not retain or modify them.
func Encode(m Message) iter.Seq[[]byte] {
	return encode(m, BlockSize)
}

var filler = bytes.Repeat([]byte{' '}, BlockSize)

func encode(m Message, blockSize int) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		header := make([]byte, HeaderSize)
		byteOrder.PutUint32(header[:TagSize], uint32(m.Kind()))

		if a, ok := m.(Arbitrary); ok {
			byteOrder.PutUint64(header[TagSize:], uint64(a.Declared))
			if !yield(header) {
				return
			}

			block := filler
			if blockSize != BlockSize {
				block = bytes.Repeat([]byte{' '}, blockSize)
			}
			for remaining := a.Declared; remaining > 0; {
				n := int64(len(block))
				if remaining < n {
					n = remaining
				}
				if !yield(block[:n]) {
					return
				}
				remaining -= n
			}
			return
		}

		payload := []byte(strings.Join(m.Args(), ","))
		byteOrder.PutUint64(header[TagSize:], uint64(len(payload)))
		if !yield(header) {
			return
		}
		if len(payload) > 0 {
			yield(payload)
		}
	}
}

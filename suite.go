package wirecheck

import (
	"strings"

	"github.com/pkg/errors"
)

// Role selects which half of every exchange a side runs.
type Role int

const (
	// Requester sends each message and reads the verdict.
	Requester Role = iota
	// Responder reads each message, validates it and replies.
	Responder
)

func (r Role) String() string {
	if r == Responder {
		return "responder"
	}
	return "requester"
}

// Names of the built-in steps.
const (
	StepAck       = "ack"
	StepLinear    = "linear"
	StepQuadratic = "quadratic"
	StepArbitrary = "arbitrary"
	StepPing      = "ping"
)

// Step is one named exchange, with both of its halves.
type Step struct {
	Name    string
	Request func(*Conn) (bool, error)
	Respond func(*Conn) (bool, error)
}

// AckStep exchanges an Ack.
func AckStep() Step {
	return Step{
		Name:    StepAck,
		Request: (*Conn).RequestAck,
		Respond: (*Conn).RespondAck,
	}
}

// AlgorithmStep exchanges an Algorithm message for the named algorithm.
func AlgorithmStep(name string) Step {
	return Step{
		Name:    strings.ToLower(name),
		Request: func(c *Conn) (bool, error) { return c.RequestAlgorithm(name) },
		Respond: (*Conn).RespondAlgorithm,
	}
}

// ArbitraryStep transfers n filler bytes.
func ArbitraryStep(n int64) Step {
	return Step{
		Name:    StepArbitrary,
		Request: func(c *Conn) (bool, error) { return c.RequestArbitrary(n) },
		Respond: (*Conn).RespondArbitrary,
	}
}

// PingStep exchanges a Ping.
func PingStep() Step {
	return Step{
		Name:    StepPing,
		Request: (*Conn).RequestPing,
		Respond: (*Conn).RespondPing,
	}
}

// Suite is the ordered list of exchanges run over one session.
// Both roles must run the same suite.
type Suite []Step

// DefaultSuite returns every built-in step.
func DefaultSuite(arbitrarySize int64) Suite {
	return Suite{
		AckStep(),
		AlgorithmStep(AlgorithmLinear),
		AlgorithmStep(AlgorithmQuadratic),
		ArbitraryStep(arbitrarySize),
		PingStep(),
	}
}

// ParseSuite builds a suite from step names.
func ParseSuite(names []string, arbitrarySize int64) (Suite, error) {
	suite := make(Suite, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case StepAck:
			suite = append(suite, AckStep())
		case StepLinear:
			suite = append(suite, AlgorithmStep(AlgorithmLinear))
		case StepQuadratic:
			suite = append(suite, AlgorithmStep(AlgorithmQuadratic))
		case StepArbitrary:
			suite = append(suite, ArbitraryStep(arbitrarySize))
		case StepPing:
			suite = append(suite, PingStep())
		default:
			return nil, errors.Wrapf(ErrInvalidOption, "unknown step %q", name)
		}
	}
	return suite, nil
}

// Run executes every step in order and stops at the first failure, which is
// returned as a *TestFailure.
func (s Suite) Run(c *Conn, role Role) error {
	for _, step := range s {
		c.logger.Info("test started", "test", step.Name, "role", role.String())

		run := step.Request
		if role == Responder {
			run = step.Respond
		}

		ok, err := run(c)
		if err != nil {
			c.logger.Error("test failed", "test", step.Name, "error", err)
			return &TestFailure{Test: step.Name, Err: err}
		}
		if !ok {
			c.logger.Error("test failed", "test", step.Name)
			return &TestFailure{Test: step.Name}
		}

		c.logger.Info("test passed", "test", step.Name)
	}
	return nil
}

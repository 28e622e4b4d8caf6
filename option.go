package wirecheck

import (
	"math/rand/v2"
	"time"
)

// options holds the configuration for a connection.
type options struct {
	logger Logger

	// onProgress is called after every read while draining Arbitrary filler.
	onProgress func(received, declared int64)

	blockSize   int           // read/write unit for Arbitrary filler
	maxPayload  int           // maximum size of a text payload
	idleTimeout time.Duration // read/write deadline per frame, 0 disables

	lengthMin, lengthMax int // inclusive range of Algorithm sequence lengths
	stepMin, stepMax     int // inclusive range of Algorithm steps
	lengthSet, stepSet   bool
	random               *rand.Rand
}

// Option is a function that configures connection options.
type Option func(*options)

// BlockSizeOption returns an Option that sets the unit in which Arbitrary
// filler is written and drained.
func BlockSizeOption(size int) Option {
	return func(o *options) {
		o.blockSize = size
	}
}

// MaxPayloadOption returns an Option that bounds text payloads.
// Frames declaring a larger payload are rejected before it is read.
func MaxPayloadOption(size int) Option {
	return func(o *options) {
		o.maxPayload = size
	}
}

// IdleTimeoutOption returns an Option that sets a deadline for reading or
// writing one frame. The default of zero blocks indefinitely.
func IdleTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = timeout
	}
}

// SequenceLengthOption returns an Option that sets the inclusive range from which
// Algorithm requests pick their sequence length. Any explicit range, 0..0
// included, replaces the default.
func SequenceLengthOption(lo, hi int) Option {
	return func(o *options) {
		o.lengthMin, o.lengthMax = lo, hi
		o.lengthSet = true
	}
}

// StepOption returns an Option that sets the inclusive range from which
// Algorithm requests pick their step.
func StepOption(lo, hi int) Option {
	return func(o *options) {
		o.stepMin, o.stepMax = lo, hi
		o.stepSet = true
	}
}

// RandOption returns an Option that sets the source for Algorithm parameters.
func RandOption(r *rand.Rand) Option {
	return func(o *options) {
		o.random = r
	}
}

// ProgressOption returns an Option that observes Arbitrary drains.
func ProgressOption(cb func(received, declared int64)) Option {
	return func(o *options) {
		o.onProgress = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

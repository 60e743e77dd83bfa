// Package tempsensor implements TempSensor: I2C-tunneled local and
// remote temperature readings for a hashboard, per spec.md §4.8,
// keeping both readings on a Reading the way bosminer's temperature.rs
// does rather than collapsing them into a single scalar.
package tempsensor

import (
	"sync"

	"github.com/rrybarczyk/braiins/internal/errs"
)

// I2CBus is the minimal transport TempSensor needs.
type I2CBus interface {
	WriteCommand(b []byte) error
	ReadCommand(n int) ([]byte, error)
}

const cmdReadTemp byte = 0x10

// Reading holds both the sensor's local-die reading and its remote
// (chip-attached) reading. Either may be Unknown (no sensor wired, or
// the most recent read failed), mirroring bosminer's Option<f32> pair.
type Reading struct {
	LocalC       float64
	LocalKnown   bool
	RemoteC      float64
	RemoteKnown  bool
}

// Max returns the higher of the two readings, treating an Unknown
// side as the identity element (i.e. ignored), matching
// bosminer-antminer's aggregate() Option-combiner semantics. ok is
// false only if both readings are unknown.
func (r Reading) Max() (float64, bool) {
	switch {
	case r.LocalKnown && r.RemoteKnown:
		if r.LocalC > r.RemoteC {
			return r.LocalC, true
		}
		return r.RemoteC, true
	case r.LocalKnown:
		return r.LocalC, true
	case r.RemoteKnown:
		return r.RemoteC, true
	default:
		return 0, false
	}
}

// Sensor reads a hashboard's local and remote temperature over I2C.
type Sensor struct {
	mu  sync.Mutex
	bus I2CBus
}

// New wraps bus with a temperature sensor reader.
func New(bus I2CBus) *Sensor {
	return &Sensor{bus: bus}
}

// Read performs one local+remote temperature read. A failure on
// either channel leaves that side Unknown rather than failing the
// whole read, since a hashboard missing its remote sensor is a
// routine configuration, not an error.
func (s *Sensor) Read() (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r Reading
	if c, err := s.readChannel(0x00); err == nil {
		r.LocalC, r.LocalKnown = c, true
	}
	if c, err := s.readChannel(0x01); err == nil {
		r.RemoteC, r.RemoteKnown = c, true
	}
	if !r.LocalKnown && !r.RemoteKnown {
		return r, errs.New(errs.Sensors, "Read", errNoChannelResponded)
	}
	return r, nil
}

func (s *Sensor) readChannel(channel byte) (float64, error) {
	if err := s.bus.WriteCommand([]byte{cmdReadTemp, channel}); err != nil {
		return 0, err
	}
	resp, err := s.bus.ReadCommand(2)
	if err != nil {
		return 0, err
	}
	if len(resp) < 2 {
		return 0, errNoChannelResponded
	}
	// fixed-point: whole degree in resp[0], 1/256ths in resp[1]
	return float64(resp[0]) + float64(resp[1])/256.0, nil
}

var errNoChannelResponded = sensorError("no temperature channel responded")

type sensorError string

func (e sensorError) Error() string { return string(e) }

// Package fan implements monitor.FanControl: serialized I2C access to
// a hashboard's fan header, driving PWM duty and reading back
// per-fan tachometer counts, grounded on the same I2C-tunnelled
// command idiom as voltage.Control and tempsensor.Sensor.
package fan

import (
	"encoding/binary"
	"sync"

	"github.com/rrybarczyk/braiins/internal/errs"
	"github.com/rrybarczyk/braiins/internal/monitor"
)

// I2CBus is the minimal transport Control needs, satisfied by
// IoCore's command channel tunneled to the fan header's I2C address.
type I2CBus interface {
	WriteCommand(b []byte) error
	ReadCommand(n int) ([]byte, error)
}

const (
	cmdSetSpeed     byte = 0x10
	cmdReadTach     byte = 0x11
	maxFansPerChain      = 4
)

// Control drives one hashboard's fan header. All access is serialized
// through a single mutex so a tachometer poll never interleaves with
// a SetSpeed call mid-transaction.
type Control struct {
	mu    sync.Mutex
	bus   I2CBus
	speed monitor.FanSpeed
}

// New wraps bus with a fan controller.
func New(bus I2CBus) *Control {
	return &Control{bus: bus}
}

// SetSpeed programs every fan on the header to speed, a PWM duty from
// 0 (stopped) to 100 (full speed), per spec.md §6: set_speed(Speed).
func (c *Control) SetSpeed(speed monitor.FanSpeed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.bus.WriteCommand([]byte{cmdSetSpeed, byte(speed)}); err != nil {
		return errs.New(errs.I2C, "SetSpeed", err)
	}
	c.speed = speed
	return nil
}

// CurrentSpeed returns the last duty successfully programmed.
func (c *Control) CurrentSpeed() monitor.FanSpeed {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// ReadFeedback reads back each fan's tachometer count, per spec.md
// §6: read_feedback() -> Feedback{tach_per_fan[], num_fans_running()}.
func (c *Control) ReadFeedback() (monitor.Feedback, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.bus.WriteCommand([]byte{cmdReadTach}); err != nil {
		return monitor.Feedback{}, errs.New(errs.I2C, "ReadFeedback", err)
	}
	resp, err := c.bus.ReadCommand(maxFansPerChain * 2)
	if err != nil {
		return monitor.Feedback{}, errs.New(errs.I2C, "ReadFeedback", err)
	}
	tach := make([]int, len(resp)/2)
	for i := range tach {
		tach[i] = int(binary.BigEndian.Uint16(resp[i*2 : i*2+2]))
	}
	return monitor.Feedback{TachPerFan: tach}, nil
}

// Package voltage implements VoltageControl: serialized I2C access to
// a hashboard's voltage regulator, plus the periodic heartbeat task
// that keeps the regulator's watchdog from cutting power, per spec.md
// §4.6.
package voltage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rrybarczyk/braiins/internal/errs"
)

// I2CBus is the minimal transport VoltageControl needs, satisfied by
// IoCore's command channel tunneled to the regulator's I2C address.
type I2CBus interface {
	WriteCommand(b []byte) error
	ReadCommand(n int) ([]byte, error)
}

const (
	cmdSetVoltage byte = 0x01
	cmdHeartbeat  byte = 0x02
	cmdReadFault  byte = 0x03
	cmdEnable     byte = 0x04
	cmdDisable    byte = 0x05
)

// Control serializes access to a chain's voltage regulator: every
// request goes through a single mutex so a heartbeat tick never
// interleaves with a SetVoltage call mid-transaction.
type Control struct {
	mu          sync.Mutex
	bus         I2CBus
	currentMv   uint16
	heartbeatIv time.Duration
}

// DefaultHeartbeatInterval is how often the regulator's watchdog must
// be kicked to keep power applied.
const DefaultHeartbeatInterval = 2 * time.Second

// New wraps bus with a voltage controller.
func New(bus I2CBus) *Control {
	return &Control{bus: bus, heartbeatIv: DefaultHeartbeatInterval}
}

// SetVoltage programs the regulator to mv millivolts.
func (c *Control) SetVoltage(mv uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	frame := []byte{cmdSetVoltage, byte(mv >> 8), byte(mv)}
	if err := c.bus.WriteCommand(frame); err != nil {
		return errs.New(errs.I2C, "SetVoltage", err)
	}
	c.currentMv = mv
	return nil
}

// EnableVoltage switches the regulator's output on, per spec.md §4.4
// step 3.a's reset/power sequence.
func (c *Control) EnableVoltage() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.bus.WriteCommand([]byte{cmdEnable}); err != nil {
		return errs.New(errs.I2C, "EnableVoltage", err)
	}
	return nil
}

// DisableVoltage switches the regulator's output off.
func (c *Control) DisableVoltage() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.bus.WriteCommand([]byte{cmdDisable}); err != nil {
		return errs.New(errs.I2C, "DisableVoltage", err)
	}
	return nil
}

// CurrentVoltage returns the last voltage successfully programmed.
func (c *Control) CurrentVoltage() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentMv
}

// Heartbeat sends a single watchdog kick.
func (c *Control) Heartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.bus.WriteCommand([]byte{cmdHeartbeat}); err != nil {
		return errs.New(errs.I2C, "Heartbeat", err)
	}
	return nil
}

// Fault reads the regulator's fault register; a non-zero value
// indicates an overcurrent/overtemperature trip the caller should
// treat as a hashboard-level failure.
func (c *Control) Fault() (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.bus.WriteCommand([]byte{cmdReadFault}); err != nil {
		return 0, errs.New(errs.I2C, "Fault", err)
	}
	resp, err := c.bus.ReadCommand(1)
	if err != nil {
		return 0, errs.New(errs.I2C, "Fault", err)
	}
	if len(resp) == 0 {
		return 0, errs.New(errs.I2C, "Fault", fmt.Errorf("no response from regulator"))
	}
	return resp[0], nil
}

// RunHeartbeat is the background task the daemon (cmd/hashboardd)
// starts to kick the regulator watchdog until ctx is cancelled, mirroring bosminer's
// dedicated voltage-heartbeat task.
func (c *Control) RunHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(c.heartbeatIv)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Heartbeat(); err != nil {
				return err
			}
		}
	}
}

package iocore

import (
	"fmt"
	"sync"

	"github.com/google/gousb"
)

// Bitmain's bench bring-up USB bridge VID/PID, matching the teacher's
// cmd/monitor/main.go device open call.
const (
	USBVendorID  = 0x4254
	USBProductID = 0x4153
)

// USBBackend talks to the FPGA bridge over a USB bulk-transfer
// interface, the bench bring-up transport used before a hashboard is
// wired into its production memory-mapped bridge. Adapted from the
// teacher's direct gousb.Context/OpenDeviceWithVIDPID usage in
// cmd/monitor/main.go.
type USBBackend struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	intf   *gousb.Interface
	done   func()
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	mu     sync.Mutex
}

// OpenUSB opens the first Bitmain bring-up bridge found on the bus.
func OpenUSB() (Backend, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(USBVendorID), gousb.ID(USBProductID))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("open USB bridge: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("no USB bridge found for VID:PID %04x:%04x", USBVendorID, USBProductID)
	}

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("claim USB interface: %w", err)
	}

	out, err := intf.OutEndpoint(1)
	if err != nil {
		done()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("open OUT endpoint: %w", err)
	}
	in, err := intf.InEndpoint(1)
	if err != nil {
		done()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("open IN endpoint: %w", err)
	}

	return &USBBackend{ctx: ctx, dev: dev, intf: intf, done: done, in: in, out: out}, nil
}

func (b *USBBackend) Name() string { return "usb-bridge" }

func (b *USBBackend) ReadRegister(addr uint32) (uint32, error) {
	frame := encodeRegisterRead(addr)
	if err := b.WriteCommand(frame); err != nil {
		return 0, err
	}
	resp, err := b.ReadCommand(4)
	if err != nil {
		return 0, err
	}
	return decodeRegisterValue(resp), nil
}

func (b *USBBackend) WriteRegister(addr uint32, value uint32) error {
	return b.WriteCommand(encodeRegisterWrite(addr, value))
}

func (b *USBBackend) WriteCommand(frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.out.Write(frame)
	return err
}

func (b *USBBackend) ReadCommand(n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := make([]byte, n)
	got, err := b.in.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:got], nil
}

func (b *USBBackend) PushWork(frame []byte) error { return b.WriteCommand(frame) }

func (b *USBBackend) PopSolution() ([]byte, bool, error) {
	buf, err := b.ReadCommand(8)
	if err != nil {
		return nil, false, err
	}
	if len(buf) == 0 {
		return nil, false, nil
	}
	return buf, true, nil
}

func (b *USBBackend) Close() error {
	b.done()
	if err := b.dev.Close(); err != nil {
		b.ctx.Close()
		return err
	}
	return b.ctx.Close()
}

func encodeRegisterRead(addr uint32) []byte {
	return []byte{byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr)}
}

func encodeRegisterWrite(addr, value uint32) []byte {
	return []byte{
		byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr),
		byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value),
	}
}

func decodeRegisterValue(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

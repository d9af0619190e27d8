// Package sx1301 drives the control interface of the Semtech SX1301 LoRa
// concentrator: the banked register file behind its page-select register,
// the power-on bring-up sequence, and the two register-mapped serial buses
// through which the chip's radio front-ends are reached.
package sx1301

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Device is one SX1301 concentrator.
//
// A fresh Device only owns its bus and reset line. Attach runs the
// power-on sequence and creates the two radio buses; until then the radio
// accessors return nil.
type Device struct {
	hw    RegIO // as handed to NewDevice, owned for Close
	bus   RegIO // hw with tracing; all register traffic goes through here
	regs  *PagedRegs
	reset ResetLine
	feed  *busFeed
	sleep func(time.Duration)

	mu     sync.RWMutex
	radioA *RadioBus
	radioB *RadioBus
}

// NewDevice wraps an open control bus and reset line. The device takes
// ownership of both; Close releases them.
func NewDevice(bus RegIO, reset ResetLine) *Device {
	feed := newBusFeed()
	traced := &tracedIO{io: bus, feed: feed}
	return &Device{
		hw:    bus,
		bus:   traced,
		regs:  NewPagedRegs(traced),
		reset: reset,
		feed:  feed,
		sleep: time.Sleep,
	}
}

// Attach brings the concentrator up and connects the radio buses. It may
// be called again to re-run the power-on sequence, for example after the
// wiring behind a failed attach has been fixed. A failed attach leaves
// the device detached: the sequence stops at an arbitrary step, so no
// state it half-wrote is safe to drive radio traffic over. No radio
// traffic is possible while the sequence runs.
func (d *Device) Attach() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Radio buses come back only with a fully completed sequence.
	d.radioA, d.radioB = nil, nil

	if err := d.bringUp(); err != nil {
		return err
	}

	radioA, err := NewRadioBus("radio-a", d.regs, RadioBlockA)
	if err != nil {
		return fmt.Errorf("failed to connect radio A bus: %w", err)
	}
	radioB, err := NewRadioBus("radio-b", d.regs, RadioBlockB)
	if err != nil {
		return fmt.Errorf("failed to connect radio B bus: %w", err)
	}
	d.radioA, d.radioB = radioA, radioB
	return nil
}

// Attached reports whether a bring-up has completed.
func (d *Device) Attached() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.radioA != nil
}

// RadioA returns the bus of the first radio front-end, or nil before
// Attach.
func (d *Device) RadioA() *RadioBus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.radioA
}

// RadioB returns the bus of the second radio front-end, or nil before
// Attach.
func (d *Device) RadioB() *RadioBus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.radioB
}

// Version reads the chip version register.
func (d *Device) Version() (uint8, error) {
	return d.regs.ReadOnPage(0, RegVersion)
}

// Regs exposes the shared register store. Callers must go through it for
// every register access so page switches stay serialized with their
// accesses.
func (d *Device) Regs() *PagedRegs {
	return d.regs
}

// BusInfo describes the underlying control bus when its implementation
// offers diagnostics, as the SPI transport does.
func (d *Device) BusInfo() map[string]interface{} {
	if i, ok := d.hw.(interface {
		Info() map[string]interface{}
	}); ok {
		return i.Info()
	}
	return nil
}

// Subscribe starts streaming bus events under the given subscriber id.
// Events are dropped for subscribers that fall behind.
func (d *Device) Subscribe(id string) <-chan BusEvent {
	return d.feed.subscribe(id)
}

// Unsubscribe stops the stream and closes its channel.
func (d *Device) Unsubscribe(id string) {
	d.feed.unsubscribe(id)
}

// Close drops the radio buses and releases the control bus and the reset
// line. The radio buses go first; nothing may reach the register file
// once its channel is gone.
func (d *Device) Close() error {
	d.mu.Lock()
	d.radioA, d.radioB = nil, nil
	d.mu.Unlock()

	var firstErr error
	if c, ok := d.hw.(io.Closer); ok {
		if err := c.Close(); err != nil {
			firstErr = err
		}
	}
	if c, ok := d.reset.(io.Closer); ok {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

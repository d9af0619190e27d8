package sx1301

import (
	"fmt"
	"log/slog"
	"sync"
)

// pageUnknown marks the cached page as stale. It is outside the 2-bit
// page range, so the first switch after it always hits the bus.
const pageUnknown = 0xFF

// PagedRegs mediates every access to the concentrator's banked register
// file. It remembers the page the chip last confirmed and writes the
// page-select register only when a caller asks for a different one.
//
// All users of the control bus share a single PagedRegs. Each operation
// holds an internal lock from page switch through register access, so the
// active page cannot change under a caller even when both radio
// interfaces and the management API are busy at once.
type PagedRegs struct {
	mu  sync.Mutex
	io  RegIO
	cur uint8
}

// NewPagedRegs returns a store with an unknown active page. The first
// access through it always selects its page explicitly.
func NewPagedRegs(io RegIO) *PagedRegs {
	return &PagedRegs{io: io, cur: pageUnknown}
}

// switchPage selects page on the chip if the cache says it is not already
// active. The cache advances only on a confirmed select write: after a
// failed write the chip's state is unknown in the other direction, so
// keeping the old value forces the next access to retry the switch.
// Callers must hold p.mu.
func (p *PagedRegs) switchPage(page uint8) error {
	if p.cur == page {
		return nil
	}
	if err := p.io.WriteRegister(RegPageSelect, page&PageSelectMask); err != nil {
		return fmt.Errorf("failed to switch to page %d: %w", page, err)
	}
	slog.Debug("Register page switched", "page", page)
	p.cur = page
	return nil
}

// SwitchPage makes page the active register bank. Switching to the page
// that is already active is a no-op and touches no hardware.
func (p *PagedRegs) SwitchPage(page uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.switchPage(page)
}

// ReadOnPage reads one register from the given page.
func (p *PagedRegs) ReadOnPage(page, addr uint8) (uint8, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.switchPage(page); err != nil {
		return 0, err
	}
	value, err := p.io.ReadRegister(addr)
	if err != nil {
		return 0, fmt.Errorf("failed to read register 0x%02X on page %d: %w", addr, page, err)
	}
	return value, nil
}

// rawWrite sends one register write on the already selected page. A
// write landing in the page-select register moves the banking logic
// itself, so the cache is kept in step: dropped while the outcome is
// unknown, then set to the page the chip decoded from the value. A reset
// bit in the value leaves it dropped, like SoftReset. Callers must hold
// p.mu.
func (p *PagedRegs) rawWrite(addr, value uint8) error {
	if addr == RegPageSelect {
		p.cur = pageUnknown
	}
	if err := p.io.WriteRegister(addr, value); err != nil {
		return err
	}
	if addr == RegPageSelect && value&SoftResetBit == 0 {
		p.cur = value & PageSelectMask
	}
	return nil
}

// WriteOnPage writes one register on the given page.
func (p *PagedRegs) WriteOnPage(page, addr, value uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.switchPage(page); err != nil {
		return err
	}
	if err := p.rawWrite(addr, value); err != nil {
		return fmt.Errorf("failed to write register 0x%02X on page %d: %w", addr, page, err)
	}
	return nil
}

// UpdateOnPage reads a register, sets and clears the given bits and
// writes the result back, all in one locked section. Bits named in both
// masks end up set. Unnamed bits keep their read value.
func (p *PagedRegs) UpdateOnPage(page, addr, set, clear uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.switchPage(page); err != nil {
		return err
	}
	value, err := p.io.ReadRegister(addr)
	if err != nil {
		return fmt.Errorf("failed to read register 0x%02X on page %d: %w", addr, page, err)
	}
	value = (value &^ clear) | set
	if err := p.rawWrite(addr, value); err != nil {
		return fmt.Errorf("failed to write register 0x%02X on page %d: %w", addr, page, err)
	}
	return nil
}

// SoftReset pulses the chip's soft reset. The page-select register is
// decoded on every page, so no switch is needed first. A reset puts the
// banking hardware back into an unknown state, so the cached page is
// dropped whether or not the write goes through.
func (p *PagedRegs) SoftReset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.rawWrite(RegPageSelect, SoftResetBit); err != nil {
		return fmt.Errorf("soft reset failed: %w", err)
	}
	slog.Debug("Concentrator soft reset issued")
	return nil
}

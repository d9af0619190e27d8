package sx1301

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrInvalidTransfer is returned by RadioBus.Tx for transfer shapes the
// radio interface cannot express. No bus traffic happens in that case.
var ErrInvalidTransfer = errors.New("invalid radio transfer")

// maxTransferLen is the longest transaction the radio interface can carry:
// one address byte, at most one data byte out and one byte clocked back.
const maxTransferLen = 3

// RadioBlock locates one radio interface inside the banked register file.
// Base is the address of the data register; the companion registers sit at
// fixed offsets above it.
type RadioBlock struct {
	Page uint8
	Base uint8
}

// The two radio interface blocks of the SX1301.
var (
	RadioBlockA = RadioBlock{Page: RadioPage, Base: RegRadioAData}
	RadioBlockB = RadioBlock{Page: RadioPage, Base: RegRadioBData}
)

// RadioBus presents one radio's register-mapped interface as an
// independent serial bus. The SX1301 carries two of these, so two radios
// are reachable over the single physical control connection. Both buses
// go through the shared PagedRegs, which keeps their page switches and
// register accesses from interleaving.
type RadioBus struct {
	name  string
	regs  *PagedRegs
	block RadioBlock
}

// NewRadioBus wires a bus controller to one radio block.
func NewRadioBus(name string, regs *PagedRegs, block RadioBlock) (*RadioBus, error) {
	if regs == nil {
		return nil, errors.New("radio bus requires a register store")
	}
	if block.Page&^PageSelectMask != 0 {
		return nil, fmt.Errorf("radio block page %d out of range", block.Page)
	}
	if block.Base == 0 || int(block.Base)+radioRegCS > 0x7F {
		return nil, fmt.Errorf("radio block base 0x%02X out of range", block.Base)
	}
	return &RadioBus{name: name, regs: regs, block: block}, nil
}

// Name identifies the bus in logs and API responses.
func (b *RadioBus) Name() string {
	return b.name
}

func (b *RadioBus) reg(offset uint8) uint8 {
	return b.block.Base + offset
}

// SetChipSelect drives the radio's chip-select line. The radio latches a
// transaction on the assert/deassert edge pair. If the current line state
// cannot be read the radio is treated as deselected, so that a deassert
// still gets attempted; a failed write is reported to the caller.
func (b *RadioBus) SetChipSelect(enable bool) error {
	cs, err := b.regs.ReadOnPage(b.block.Page, b.reg(radioRegCS))
	if err != nil {
		slog.Warn("Failed to read chip select, assuming deselected",
			"radio", b.name, "error", err)
		cs = 0
	}
	if enable {
		cs |= csSelectBit
	} else {
		cs &^= csSelectBit
	}
	if err := b.regs.WriteOnPage(b.block.Page, b.reg(radioRegCS), cs); err != nil {
		return fmt.Errorf("failed to set %s chip select: %w", b.name, err)
	}
	return nil
}

// Tx runs one transaction on the radio bus. w supplies the outgoing
// bytes: w[0] is the radio register address, w[1] the data byte (taken as
// zero when absent). r, when non-empty, receives the byte the radio
// clocked back at r[len(r)-1]; the other positions are left untouched.
// When both buffers are given they must be the same length. Transactions
// run the outgoing phase first, then the incoming phase.
func (b *RadioBus) Tx(w, r []byte) error {
	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	if n == 0 || n > maxTransferLen {
		return fmt.Errorf("%w: %d bytes", ErrInvalidTransfer, n)
	}
	if len(w) > 0 && len(r) > 0 && len(w) != len(r) {
		return fmt.Errorf("%w: %d bytes out, %d bytes in", ErrInvalidTransfer, len(w), len(r))
	}

	if len(w) > 0 {
		if err := b.regs.WriteOnPage(b.block.Page, b.reg(radioRegAddr), w[0]); err != nil {
			return fmt.Errorf("%s address setup failed: %w", b.name, err)
		}
		var data uint8
		if len(w) > 1 {
			data = w[1]
		}
		if err := b.regs.WriteOnPage(b.block.Page, b.reg(radioRegData), data); err != nil {
			return fmt.Errorf("%s data setup failed: %w", b.name, err)
		}
		if err := b.SetChipSelect(true); err != nil {
			return err
		}
		if err := b.SetChipSelect(false); err != nil {
			return err
		}
	}

	if len(r) > 0 {
		value, err := b.regs.ReadOnPage(b.block.Page, b.reg(radioRegReadback))
		if err != nil {
			return fmt.Errorf("%s readback failed: %w", b.name, err)
		}
		r[len(r)-1] = value
	}
	return nil
}

package sx1301

import (
	"fmt"
	"log/slog"
	"time"
)

// Settling times for the bring-up sequence. These come straight from the
// SX1301 reference design; the chip and the attached radios need the full
// interval to reach a defined state, so none of them may be shortened.
const (
	resetHoldTime    = 100 * time.Millisecond // reset line asserted
	resetSettleTime  = 100 * time.Millisecond // chip wake-up after release
	radioPowerUpTime = 500 * time.Millisecond // radio supplies stabilizing
	radioResetTime   = 5 * time.Millisecond   // radio reset line high
)

// UnexpectedDeviceError reports that the chip answering on the control bus
// identified itself with the wrong version. The bus works; whatever is
// wired to it is not an SX1301.
type UnexpectedDeviceError struct {
	Version uint8
}

func (e *UnexpectedDeviceError) Error() string {
	return fmt.Sprintf("unexpected device version %d, want %d", e.Version, ChipVersion)
}

// bringUp walks the concentrator through its power-on sequence: hardware
// reset, identity check, soft reset into a known page, modem and clock
// hold, then radio power and reset. It runs each step once and stops at
// the first failure; the chip is left in whatever state the failing step
// produced, and only a new bring-up may touch it again.
func (d *Device) bringUp() error {
	slog.Info("Starting concentrator bring-up")

	if err := d.reset.Drive(true); err != nil {
		return fmt.Errorf("hardware reset assert failed: %w", err)
	}
	d.sleep(resetHoldTime)
	if err := d.reset.Drive(false); err != nil {
		return fmt.Errorf("hardware reset release failed: %w", err)
	}
	d.sleep(resetSettleTime)

	// The chip answers on page 0 right after reset, so the version can be
	// read before the page cache is primed.
	version, err := d.bus.ReadRegister(RegVersion)
	if err != nil {
		return fmt.Errorf("version check failed: %w", err)
	}
	if version != ChipVersion {
		return &UnexpectedDeviceError{Version: version}
	}
	slog.Debug("Concentrator version verified", "version", version)

	if err := d.regs.SwitchPage(0); err != nil {
		return fmt.Errorf("initial page select failed: %w", err)
	}
	if err := d.regs.SoftReset(); err != nil {
		return err
	}

	// Hold the modem engines and the 32 MHz clock tree until the radios
	// are up and can provide a clean clock.
	if err := d.regs.UpdateOnPage(0, RegGlobalCtrl, 0, GlobalEnBit); err != nil {
		return fmt.Errorf("global disable failed: %w", err)
	}
	if err := d.regs.UpdateOnPage(0, RegClockCtrl, 0, Clk32MEnBit); err != nil {
		return fmt.Errorf("clock disable failed: %w", err)
	}

	// Power both radio front-ends in a single write.
	if err := d.regs.UpdateOnPage(RadioPage, RegRadioCtrl, RadioAEnBit|RadioBEnBit, 0); err != nil {
		return fmt.Errorf("radio power-up failed: %w", err)
	}
	d.sleep(radioPowerUpTime)

	if err := d.regs.UpdateOnPage(RadioPage, RegRadioCtrl, RadioRstBit, 0); err != nil {
		return fmt.Errorf("radio reset assert failed: %w", err)
	}
	d.sleep(radioResetTime)
	if err := d.regs.UpdateOnPage(RadioPage, RegRadioCtrl, 0, RadioRstBit); err != nil {
		return fmt.Errorf("radio reset release failed: %w", err)
	}

	slog.Info("Concentrator bring-up complete")
	return nil
}

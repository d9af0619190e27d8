// Package sx125x drives the Semtech SX1255 and SX1257 radio front-ends.
// The radios do not sit on a host bus of their own; they are reached
// through the serial interfaces a concentrator chip exposes for them, so
// the driver only needs a transfer function to run on.
package sx125x

import (
	"fmt"
	"log/slog"
	"time"
)

// Conn is one radio's serial bus. Transfers follow SPI framing: the
// first outgoing byte addresses a register, with the write bit in the
// top bit, and the last incoming byte carries the response.
type Conn interface {
	Tx(w, r []byte) error
}

// Type selects the chip variant on a radio chain.
type Type int

const (
	SX1255 Type = iota
	SX1257
)

func (t Type) String() string {
	switch t {
	case SX1255:
		return "sx1255"
	case SX1257:
		return "sx1257"
	default:
		return fmt.Sprintf("sx125x(%d)", int(t))
	}
}

// Opts configures a radio chain for Setup.
type Opts struct {
	RxFreq   uint32 // RX PLL frequency in Hz
	ClockOut bool   // drive CLK_OUT; exactly one radio feeds the concentrator clock
}

// PLLStatus is the decoded state of the status register.
type PLLStatus struct {
	TxLocked  bool `json:"tx_locked"`
	RxLocked  bool `json:"rx_locked"`
	XoscReady bool `json:"xosc_ready"`
}

// Radio is one SX125x chain behind a concentrator.
type Radio struct {
	conn  Conn
	name  string
	typ   Type
	sleep func(time.Duration)
}

// New wraps the radio reachable over conn. It performs no bus traffic.
func New(name string, conn Conn, typ Type) *Radio {
	return &Radio{
		conn:  conn,
		name:  name,
		typ:   typ,
		sleep: time.Sleep,
	}
}

// Name identifies the radio chain in logs and API responses.
func (r *Radio) Name() string {
	return r.name
}

// Type returns the configured chip variant.
func (r *Radio) Type() Type {
	return r.typ
}

// ReadRegister reads one radio register.
func (r *Radio) ReadRegister(addr uint8) (uint8, error) {
	var buf [2]byte
	if err := r.conn.Tx([]byte{addr & 0x7F, 0x00}, buf[:]); err != nil {
		return 0, fmt.Errorf("failed to read %s register 0x%02X: %w", r.name, addr, err)
	}
	return buf[1], nil
}

// WriteRegister writes one radio register.
func (r *Radio) WriteRegister(addr uint8, value uint8) error {
	if err := r.conn.Tx([]byte{addr | 0x80, value}, nil); err != nil {
		return fmt.Errorf("failed to write %s register 0x%02X: %w", r.name, addr, err)
	}
	return nil
}

// Version reads the chip revision register.
func (r *Radio) Version() (uint8, error) {
	return r.ReadRegister(RegVersion)
}

// SetMode writes the operating mode register.
func (r *Radio) SetMode(mode uint8) error {
	return r.WriteRegister(RegMode, mode)
}

// Mode reads the operating mode register.
func (r *Radio) Mode() (uint8, error) {
	return r.ReadRegister(RegMode)
}

// PLL reads and decodes the status register.
func (r *Radio) PLL() (PLLStatus, error) {
	stat, err := r.ReadRegister(RegStat)
	if err != nil {
		return PLLStatus{}, err
	}
	return PLLStatus{
		TxLocked:  stat&StatPllLockTx != 0,
		RxLocked:  stat&StatPllLockRx != 0,
		XoscReady: stat&StatXoscReady != 0,
	}, nil
}

// frfParts splits a frequency in Hz into the integer and fractional PLL
// divider words. The SX1255 tunes in steps of the 32 MHz reference over
// 2^20, the SX1257 over 2^19.
func (r *Radio) frfParts(freq uint32) (msb, mid, lsb uint8) {
	var partInt, partFrac uint32
	switch r.typ {
	case SX1257:
		partInt = freq / (pllRefFrac << 8)
		partFrac = ((freq % (pllRefFrac << 8)) << 8) / pllRefFrac
	default:
		partInt = freq / (pllRefFrac << 7)
		partFrac = ((freq % (pllRefFrac << 7)) << 9) / pllRefFrac
	}
	return uint8(partInt), uint8(partFrac >> 8), uint8(partFrac)
}

// frfFreq rebuilds a frequency in Hz from the three divider bytes.
func (r *Radio) frfFreq(msb, mid, lsb uint8) uint32 {
	frf := uint64(msb)<<16 | uint64(mid)<<8 | uint64(lsb)
	if r.typ == SX1257 {
		return uint32(frf * pllRefFrac >> 8)
	}
	return uint32(frf * pllRefFrac >> 9)
}

// SetRxFrequency programs the RX PLL.
func (r *Radio) SetRxFrequency(freq uint32) error {
	msb, mid, lsb := r.frfParts(freq)
	if err := r.WriteRegister(RegFrfRxMsb, msb); err != nil {
		return err
	}
	if err := r.WriteRegister(RegFrfRxMid, mid); err != nil {
		return err
	}
	return r.WriteRegister(RegFrfRxLsb, lsb)
}

// RxFrequency reads back the programmed RX PLL frequency.
func (r *Radio) RxFrequency() (uint32, error) {
	msb, err := r.ReadRegister(RegFrfRxMsb)
	if err != nil {
		return 0, err
	}
	mid, err := r.ReadRegister(RegFrfRxMid)
	if err != nil {
		return 0, err
	}
	lsb, err := r.ReadRegister(RegFrfRxLsb)
	if err != nil {
		return 0, err
	}
	return r.frfFreq(msb, mid, lsb), nil
}

// SetTxFrequency programs the TX PLL.
func (r *Radio) SetTxFrequency(freq uint32) error {
	msb, mid, lsb := r.frfParts(freq)
	if err := r.WriteRegister(RegFrfTxMsb, msb); err != nil {
		return err
	}
	if err := r.WriteRegister(RegFrfTxMid, mid); err != nil {
		return err
	}
	return r.WriteRegister(RegFrfTxLsb, lsb)
}

// TxFrequency reads back the programmed TX PLL frequency.
func (r *Radio) TxFrequency() (uint32, error) {
	msb, err := r.ReadRegister(RegFrfTxMsb)
	if err != nil {
		return 0, err
	}
	mid, err := r.ReadRegister(RegFrfTxMid)
	if err != nil {
		return 0, err
	}
	lsb, err := r.ReadRegister(RegFrfTxLsb)
	if err != nil {
		return 0, err
	}
	return r.frfFreq(msb, mid, lsb), nil
}

// xoscReg returns the oscillator trim register for the chip variant.
func (r *Radio) xoscReg() uint8 {
	if r.typ == SX1257 {
		return regXoscSX1257
	}
	return regXoscSX1255
}

// pllLockSettle is the pause between mode writes and the lock poll.
const pllLockSettle = time.Millisecond

// Setup loads the reference front-end configuration, programs the RX
// frequency and brings the RX chain up until its PLL reports lock. The
// enable/poll cycle is retried a bounded number of times; some chains
// need more than one nudge after power-on.
func (r *Radio) Setup(opts Opts) error {
	version, err := r.Version()
	if err != nil {
		return fmt.Errorf("%s did not answer: %w", r.name, err)
	}
	slog.Info("Radio found", "radio", r.name, "type", r.typ.String(),
		"version", fmt.Sprintf("0x%02X", version))

	clk := uint8(ClkSelTxDacExt)
	if opts.ClockOut {
		clk |= ClkSelOutEnable
	}
	if err := r.WriteRegister(RegClkSel, clk); err != nil {
		return err
	}
	if err := r.WriteRegister(r.xoscReg(), xoscDisable*16+xoscGmStartup); err != nil {
		return err
	}

	if err := r.WriteRegister(RegTxGain, defaultTxDacGain*16+defaultTxMixGain); err != nil {
		return err
	}
	if err := r.WriteRegister(RegTxBw, defaultTxPllBw*32+defaultTxAnaBw); err != nil {
		return err
	}
	if err := r.WriteRegister(RegTxDacBw, defaultTxDacBw); err != nil {
		return err
	}

	if err := r.WriteRegister(RegRxGain, defaultRxLnaGain*32+defaultRxBBGain*2+defaultRxLnaZin); err != nil {
		return err
	}
	if err := r.WriteRegister(RegRxBw, defaultRxAdcBw*32+defaultRxAdcTrim*4+defaultRxBBBw); err != nil {
		return err
	}
	if err := r.WriteRegister(RegRxPllBw, defaultRxPllBw*2+defaultAdcTemp); err != nil {
		return err
	}

	if err := r.SetRxFrequency(opts.RxFreq); err != nil {
		return err
	}

	for attempt := 1; attempt <= pllLockAttempts; attempt++ {
		if err := r.SetMode(ModeOscEnable); err != nil {
			return err
		}
		r.sleep(pllLockSettle)
		if err := r.SetMode(ModeOscEnable | ModeRxEnable); err != nil {
			return err
		}
		r.sleep(pllLockSettle)

		stat, err := r.ReadRegister(RegStat)
		if err != nil {
			return err
		}
		if stat&StatPllLockRx != 0 {
			slog.Info("Radio RX PLL locked", "radio", r.name,
				"freq", opts.RxFreq, "attempts", attempt)
			return nil
		}
		slog.Debug("Radio RX PLL not locked yet", "radio", r.name, "attempt", attempt)
	}
	return fmt.Errorf("%s RX PLL failed to lock after %d attempts", r.name, pllLockAttempts)
}

package sx125x

// SX125x register addresses. The SX1255 and SX1257 share this map; only
// the crystal oscillator trim register moves between the two.
const (
	RegMode     = 0x00 // Operating mode control
	RegFrfRxMsb = 0x01 // RX PLL frequency, bits 23:16
	RegFrfRxMid = 0x02 // RX PLL frequency, bits 15:8
	RegFrfRxLsb = 0x03 // RX PLL frequency, bits 7:0
	RegFrfTxMsb = 0x04 // TX PLL frequency, bits 23:16
	RegFrfTxMid = 0x05 // TX PLL frequency, bits 15:8
	RegFrfTxLsb = 0x06 // TX PLL frequency, bits 7:0
	RegVersion  = 0x07 // Chip revision
	RegTxGain   = 0x08 // TX DAC gain (7:4), TX mixer gain (3:0)
	RegTxBw     = 0x0A // TX PLL bandwidth (6:5), TX analog filter (4:0)
	RegTxDacBw  = 0x0B // TX FIR filter tap count
	RegRxGain   = 0x0C // LNA gain (7:5), baseband gain (4:1), LNA impedance (0)
	RegRxBw     = 0x0D // ADC bandwidth (7:5), ADC trim (4:2), baseband filter (1:0)
	RegRxPllBw  = 0x0E // RX PLL bandwidth (2:1), ADC temperature mode (0)
	RegIoMap    = 0x0F // DIO pin mapping
	RegClkSel   = 0x10 // Clock source and CLK_OUT control
	RegStat     = 0x11 // PLL lock and oscillator status
)

// Crystal oscillator control. The register moved between chip revisions.
const (
	regXoscSX1255 = 0x28
	regXoscSX1257 = 0x26
)

// RegMode bits.
const (
	ModeOscEnable = 1 << 0 // reference oscillator and bias running
	ModeRxEnable  = 1 << 1 // RX chain enabled
	ModeTxEnable  = 1 << 2 // TX chain enabled
	ModePAEnable  = 1 << 3 // PA driver enabled
)

// RegClkSel bits.
const (
	ClkSelTxDacExt  = 1 << 0 // TX DAC clocked externally
	ClkSelOutEnable = 1 << 1 // drive CLK_OUT to the host
)

// RegStat bits.
const (
	StatPllLockTx = 1 << 0
	StatPllLockRx = 1 << 1
	StatXoscReady = 1 << 2
	StatEol       = 1 << 3
)

// Analog front-end defaults from the Semtech reference design.
const (
	defaultTxDacGain = 2  // 0: -9 dBFS, 1: -6, 2: -3, 3: 0
	defaultTxMixGain = 14 // -38 + 2*n dB
	defaultTxPllBw   = 1  // 75 kHz * (n+1)
	defaultTxAnaBw   = 0  // 17.5 MHz / (2 * (41 - n))
	defaultTxDacBw   = 5  // 24 + 8*n FIR taps
	defaultRxLnaGain = 1  // 1 highest .. 6 lowest
	defaultRxBBGain  = 12 // 0 lowest .. 15 highest
	defaultRxLnaZin  = 1  // 0: 50 ohm, 1: 200 ohm
	defaultRxAdcBw   = 7  // 7 for bandwidths above 400 kHz
	defaultRxAdcTrim = 6  // 6 for a 32 MHz reference
	defaultRxBBBw    = 0  // 0: 750 kHz single side band
	defaultRxPllBw   = 0  // 75 kHz * (n+1)
	defaultAdcTemp   = 0  // ADC temperature measurement off

	xoscGmStartup = 13 // crystal startup transconductance steps
	xoscDisable   = 2  // blocks gated while the oscillator starts
)

// pllRefFrac is the 32 MHz PLL reference expressed as its fractional
// divider base: 32 MHz / 2^11.
const pllRefFrac = 15625

// pllLockAttempts bounds the RX enable and lock poll loop.
const pllLockAttempts = 5

package sx1301

// SX1301 register addresses. The chip exposes four banks of 128 registers
// behind a single page-select register; address 0 is decoded on every page.
const (
	RegPageSelect = 0x00 // page select (bits 1:0), soft reset (bit 7)
	RegVersion    = 0x01 // chip version, reads 103 on an SX1301
	RegGlobalCtrl = 0x10 // global state machine enable
	RegClockCtrl  = 0x11 // 32 MHz clock tree control
)

// Page 2 registers for the two radio front-end interfaces.
const (
	RegRadioAData     = 0x21 // radio A outgoing data byte
	RegRadioAReadback = 0x22 // radio A data byte from the last transaction
	RegRadioAAddr     = 0x23 // radio A target register address
	RegRadioACS       = 0x25 // radio A chip select

	RegRadioBData     = 0x26 // radio B outgoing data byte
	RegRadioBReadback = 0x27 // radio B data byte from the last transaction
	RegRadioBAddr     = 0x28 // radio B target register address
	RegRadioBCS       = 0x2A // radio B chip select

	RegRadioCtrl = 0x2B // radio supply and reset control
)

// Offsets of the per-radio interface registers relative to the block base
// (the data register). Both radio blocks use the same layout.
const (
	radioRegData     = 0
	radioRegReadback = 1
	radioRegAddr     = 2
	radioRegCS       = 4
)

// Register bit assignments.
const (
	PageSelectMask = 0x03   // writable page number field in RegPageSelect
	SoftResetBit   = 1 << 7 // self-clearing soft reset in RegPageSelect

	GlobalEnBit = 1 << 3 // RegGlobalCtrl: master enable for the modem engines
	Clk32MEnBit = 1 << 0 // RegClockCtrl: 32 MHz clock tree enable
	RadioAEnBit = 1 << 0 // RegRadioCtrl: radio A supply enable
	RadioBEnBit = 1 << 1 // RegRadioCtrl: radio B supply enable
	RadioRstBit = 1 << 2 // RegRadioCtrl: reset line to both radios
	csSelectBit = 1 << 0 // radio CS registers: chip select asserted
)

// ChipVersion is the value RegVersion reads back on a genuine SX1301.
const ChipVersion = 103

// RadioPage is the register page holding the radio interface blocks.
const RadioPage = 2

package sx1301

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

type busOp struct {
	write bool
	addr  uint8
	value uint8
}

// fakeChip models the register file the way the silicon behaves: four
// banks of 128 registers behind the page-select register, which is
// decoded on every bank. A falling edge on a radio chip select latches
// addr^data into that radio's readback register, so transactions are
// verifiable end to end.
type fakeChip struct {
	mu       sync.Mutex
	pages    [4][128]uint8
	page     uint8
	log      []busOp
	readErr  map[uint8]error
	writeErr map[uint8]error
}

func newFakeChip() *fakeChip {
	c := &fakeChip{
		readErr:  make(map[uint8]error),
		writeErr: make(map[uint8]error),
	}
	c.pages[0][RegVersion] = ChipVersion
	return c
}

func (c *fakeChip) ReadRegister(addr uint8) (uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.readErr[addr]; err != nil {
		return 0, err
	}
	var value uint8
	if addr == RegPageSelect {
		value = c.page
	} else {
		value = c.pages[c.page][addr]
	}
	c.log = append(c.log, busOp{write: false, addr: addr, value: value})
	return value, nil
}

func (c *fakeChip) WriteRegister(addr uint8, value uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writeErr[addr]; err != nil {
		return err
	}
	c.log = append(c.log, busOp{write: true, addr: addr, value: value})

	if addr == RegPageSelect {
		if value&SoftResetBit != 0 {
			c.page = 0
		} else {
			c.page = value & PageSelectMask
		}
		return nil
	}

	old := c.pages[c.page][addr]
	c.pages[c.page][addr] = value

	// Chip select falling edge latches the transaction result.
	for _, base := range []uint8{RegRadioAData, RegRadioBData} {
		if c.page == RadioPage && addr == base+radioRegCS &&
			old&csSelectBit != 0 && value&csSelectBit == 0 {
			c.pages[RadioPage][base+radioRegReadback] =
				c.pages[RadioPage][base+radioRegAddr] ^ c.pages[RadioPage][base+radioRegData]
		}
	}
	return nil
}

func (c *fakeChip) ops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.log))
	for i, op := range c.log {
		if op.write {
			out[i] = fmt.Sprintf("w %02X=%02X", op.addr, op.value)
		} else {
			out[i] = fmt.Sprintf("r %02X", op.addr)
		}
	}
	return out
}

func (c *fakeChip) rawOps() []busOp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]busOp(nil), c.log...)
}

func (c *fakeChip) clearOps() {
	c.mu.Lock()
	c.log = nil
	c.mu.Unlock()
}

func (c *fakeChip) set(page, addr, value uint8) {
	c.mu.Lock()
	c.pages[page][addr] = value
	c.mu.Unlock()
}

// powerOnReset models the chip's hardware reset input: the banking
// logic comes back up on page 0.
func (c *fakeChip) powerOnReset() {
	c.mu.Lock()
	c.page = 0
	c.mu.Unlock()
}

func wantOps(t *testing.T, chip *fakeChip, want []string) {
	t.Helper()
	got := chip.ops()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("bus ops mismatch:\n got %v\nwant %v", got, want)
	}
}

// fakeReset records the levels driven onto the reset line. When wired
// to a chip, a completed assert/release pulse applies the chip's
// power-on reset, so a second bring-up sees the same hardware state as
// the first.
type fakeReset struct {
	mu     sync.Mutex
	levels []bool
	err    error
	chip   *fakeChip
}

func (f *fakeReset) Drive(active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.levels = append(f.levels, active)
	n := len(f.levels)
	if !active && n > 1 && f.levels[n-2] && f.chip != nil {
		f.chip.powerOnReset()
	}
	return nil
}

func (f *fakeReset) driven() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.levels...)
}

// testDevice wires a device to fakes and records sleeps instead of
// waiting them out.
func testDevice(chip *fakeChip, reset *fakeReset) (*Device, *[]time.Duration) {
	if reset.chip == nil {
		reset.chip = chip
	}
	d := NewDevice(chip, reset)
	sleeps := &[]time.Duration{}
	d.sleep = func(dur time.Duration) {
		*sleeps = append(*sleeps, dur)
	}
	return d, sleeps
}

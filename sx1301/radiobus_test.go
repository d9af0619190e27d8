package sx1301

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestTxRejectsBadShapes(t *testing.T) {
	tests := map[string]struct {
		w []byte
		r []byte
	}{
		"empty":             {w: nil, r: nil},
		"write too long":    {w: []byte{1, 2, 3, 4}, r: nil},
		"read too long":     {w: nil, r: make([]byte, 4)},
		"length mismatch":   {w: []byte{1}, r: make([]byte, 2)},
		"mismatch at limit": {w: []byte{1, 2}, r: make([]byte, 3)},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			chip := newFakeChip()
			bus, err := NewRadioBus("radio-a", NewPagedRegs(chip), RadioBlockA)
			if err != nil {
				t.Fatalf("new bus: %v", err)
			}

			if err := bus.Tx(tc.w, tc.r); !errors.Is(err, ErrInvalidTransfer) {
				t.Fatalf("Tx error = %v, want ErrInvalidTransfer", err)
			}
			if ops := chip.ops(); len(ops) != 0 {
				t.Fatalf("rejected transfer still touched the bus: %v", ops)
			}
		})
	}
}

func TestTxWriteReadSequence(t *testing.T) {
	chip := newFakeChip()
	bus, err := NewRadioBus("radio-a", NewPagedRegs(chip), RadioBlockA)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}

	w := []byte{0xAA, 0xBB}
	r := make([]byte, 2)
	if err := bus.Tx(w, r); err != nil {
		t.Fatalf("Tx: %v", err)
	}

	// Outgoing phase first: address, data, then the chip select pulse
	// that runs the transaction. Incoming phase reads the latched byte.
	wantOps(t, chip, []string{
		"w 00=02",
		"w 23=AA",
		"w 21=BB",
		"r 25",
		"w 25=01",
		"r 25",
		"w 25=00",
		"r 22",
	})
	if want := []byte{0x00, 0xAA ^ 0xBB}; !bytes.Equal(r, want) {
		t.Fatalf("r = %#v, want %#v", r, want)
	}
}

func TestTxWriteOnly(t *testing.T) {
	chip := newFakeChip()
	bus, err := NewRadioBus("radio-a", NewPagedRegs(chip), RadioBlockA)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}

	if err := bus.Tx([]byte{0x85, 0x42}, nil); err != nil {
		t.Fatalf("Tx: %v", err)
	}
	wantOps(t, chip, []string{
		"w 00=02",
		"w 23=85",
		"w 21=42",
		"r 25",
		"w 25=01",
		"r 25",
		"w 25=00",
	})
}

func TestTxSingleByteSendsZeroData(t *testing.T) {
	chip := newFakeChip()
	bus, err := NewRadioBus("radio-a", NewPagedRegs(chip), RadioBlockA)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}

	if err := bus.Tx([]byte{0x7F}, nil); err != nil {
		t.Fatalf("Tx: %v", err)
	}
	wantOps(t, chip, []string{
		"w 00=02",
		"w 23=7F",
		"w 21=00",
		"r 25",
		"w 25=01",
		"r 25",
		"w 25=00",
	})
}

func TestTxReadbackLandsAtLastByte(t *testing.T) {
	for _, n := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("len %d", n), func(t *testing.T) {
			chip := newFakeChip()
			chip.set(RadioPage, RegRadioAReadback, 0xCC)
			bus, err := NewRadioBus("radio-a", NewPagedRegs(chip), RadioBlockA)
			if err != nil {
				t.Fatalf("new bus: %v", err)
			}

			r := bytes.Repeat([]byte{0xEE}, n)
			if err := bus.Tx(nil, r); err != nil {
				t.Fatalf("Tx: %v", err)
			}

			if r[n-1] != 0xCC {
				t.Fatalf("r[%d] = 0x%02X, want 0xCC", n-1, r[n-1])
			}
			for i := 0; i < n-1; i++ {
				if r[i] != 0xEE {
					t.Fatalf("r[%d] = 0x%02X, want untouched 0xEE", i, r[i])
				}
			}
		})
	}
}

func TestRadioBUsesItsOwnBlock(t *testing.T) {
	chip := newFakeChip()
	bus, err := NewRadioBus("radio-b", NewPagedRegs(chip), RadioBlockB)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}

	if err := bus.Tx([]byte{0x0F, 0xF0}, nil); err != nil {
		t.Fatalf("Tx: %v", err)
	}
	wantOps(t, chip, []string{
		"w 00=02",
		"w 28=0F",
		"w 26=F0",
		"r 2A",
		"w 2A=01",
		"r 2A",
		"w 2A=00",
	})
}

func TestChipSelectReadFailureDegradesToDeselected(t *testing.T) {
	chip := newFakeChip()
	bus, err := NewRadioBus("radio-a", NewPagedRegs(chip), RadioBlockA)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}

	chip.readErr[RegRadioACS] = errors.New("bus gone")
	if err := bus.SetChipSelect(false); err != nil {
		t.Fatalf("deselect with unreadable line: %v", err)
	}

	// The line state could not be read, so it is written from zero.
	wantOps(t, chip, []string{"w 00=02", "w 25=00"})
}

func TestChipSelectWriteFailureSurfaces(t *testing.T) {
	chip := newFakeChip()
	bus, err := NewRadioBus("radio-a", NewPagedRegs(chip), RadioBlockA)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}

	boom := errors.New("bus gone")
	chip.writeErr[RegRadioACS] = boom
	if err := bus.SetChipSelect(true); !errors.Is(err, boom) {
		t.Fatalf("select error = %v, want %v", err, boom)
	}
}

func TestNewRadioBusRejectsBadBlocks(t *testing.T) {
	regs := NewPagedRegs(newFakeChip())

	tests := map[string]struct {
		regs  *PagedRegs
		block RadioBlock
	}{
		"nil store":     {regs: nil, block: RadioBlockA},
		"page too high": {regs: regs, block: RadioBlock{Page: 4, Base: 0x21}},
		"zero base":     {regs: regs, block: RadioBlock{Page: 2, Base: 0}},
		"base overflow": {regs: regs, block: RadioBlock{Page: 2, Base: 0x7C}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := NewRadioBus("radio-x", tc.regs, tc.block); err == nil {
				t.Fatal("NewRadioBus accepted a bad block")
			}
		})
	}
}

// TestConcurrentAccessKeepsPageWindows drives both radio buses and raw
// page-0 reads from three goroutines over one shared store. Every
// transaction must come back intact, and on the wire every register
// access must fall inside the window opened by its own page select.
func TestConcurrentAccessKeepsPageWindows(t *testing.T) {
	chip := newFakeChip()
	regs := NewPagedRegs(chip)

	busA, err := NewRadioBus("radio-a", regs, RadioBlockA)
	if err != nil {
		t.Fatalf("new bus A: %v", err)
	}
	busB, err := NewRadioBus("radio-b", regs, RadioBlockB)
	if err != nil {
		t.Fatalf("new bus B: %v", err)
	}

	const rounds = 40
	errs := make(chan error, 3)
	var wg sync.WaitGroup

	transfer := func(bus *RadioBus, addr, data uint8) error {
		w := []byte{addr, data}
		r := make([]byte, 2)
		if err := bus.Tx(w, r); err != nil {
			return err
		}
		if r[1] != addr^data {
			return fmt.Errorf("%s readback = 0x%02X, want 0x%02X", bus.Name(), r[1], addr^data)
		}
		return nil
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if err := transfer(busA, uint8(i), uint8(i*3)); err != nil {
				errs <- err
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if err := transfer(busB, uint8(0x80|i), uint8(i*7)); err != nil {
				errs <- err
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, err := regs.ReadOnPage(0, 0x05); err != nil {
				errs <- err
				return
			}
		}
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	pageFor := func(addr uint8) (uint8, bool) {
		switch {
		case addr == 0x05:
			return 0, true
		case addr >= RegRadioAData && addr <= RegRadioCtrl:
			return RadioPage, true
		}
		return 0, false
	}

	page := uint8(pageUnknown)
	for _, op := range chip.rawOps() {
		if op.write && op.addr == RegPageSelect {
			page = op.value & PageSelectMask
			continue
		}
		want, known := pageFor(op.addr)
		if known && page != want {
			t.Fatalf("access to 0x%02X ran on page %d, want %d", op.addr, page, want)
		}
	}
}

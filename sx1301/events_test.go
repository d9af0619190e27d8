package sx1301

import (
	"errors"
	"testing"
)

func TestSubscribeStreamsBusEvents(t *testing.T) {
	chip := newFakeChip()
	d, _ := testDevice(chip, &fakeReset{})

	events := d.Subscribe("watch-1")

	if err := d.Regs().SwitchPage(1); err != nil {
		t.Fatalf("switch: %v", err)
	}
	chip.set(1, 0x10, 0x42)
	if _, err := d.Regs().ReadOnPage(1, 0x10); err != nil {
		t.Fatalf("read: %v", err)
	}

	ev := <-events
	if ev.Seq != 1 || ev.Op != "write" || ev.Addr != RegPageSelect || ev.Value != 1 {
		t.Fatalf("first event = %+v, want the page select write", ev)
	}
	ev = <-events
	if ev.Seq != 2 || ev.Op != "read" || ev.Addr != 0x10 || ev.Value != 0x42 {
		t.Fatalf("second event = %+v, want the register read", ev)
	}
	if ev.Error != "" {
		t.Fatalf("clean read carries error %q", ev.Error)
	}

	d.Unsubscribe("watch-1")
	if _, ok := <-events; ok {
		t.Fatal("event channel still open after unsubscribe")
	}
}

func TestEventsCarryBusErrors(t *testing.T) {
	chip := newFakeChip()
	d, _ := testDevice(chip, &fakeReset{})

	events := d.Subscribe("watch-err")
	defer d.Unsubscribe("watch-err")

	chip.readErr[0x20] = errors.New("bus gone")
	if _, err := d.Regs().ReadOnPage(0, 0x20); err == nil {
		t.Fatal("read through broken bus succeeded")
	}

	// First event is the page select, second the failed read.
	<-events
	ev := <-events
	if ev.Op != "read" || ev.Addr != 0x20 || ev.Error == "" {
		t.Fatalf("failure event = %+v, want read error", ev)
	}
}

func TestSlowSubscriberLosesEventsNotBus(t *testing.T) {
	chip := newFakeChip()
	d, _ := testDevice(chip, &fakeReset{})

	events := d.Subscribe("slow")

	// One page select plus far more writes than the backlog holds. None
	// of them may block even though nobody is draining.
	for i := 0; i < eventBacklog+10; i++ {
		if err := d.Regs().WriteOnPage(0, 0x05, uint8(i)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	d.Unsubscribe("slow")

	var got []BusEvent
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != eventBacklog {
		t.Fatalf("received %d events, want the backlog of %d", len(got), eventBacklog)
	}
	for i, ev := range got {
		if ev.Seq != uint64(i+1) {
			t.Fatalf("event %d has seq %d; the oldest events must be kept", i, ev.Seq)
		}
	}
}

func TestSubscribersAreIndependent(t *testing.T) {
	chip := newFakeChip()
	d, _ := testDevice(chip, &fakeReset{})

	first := d.Subscribe("one")
	second := d.Subscribe("two")

	if err := d.Regs().SwitchPage(3); err != nil {
		t.Fatalf("switch: %v", err)
	}

	evFirst := <-first
	evSecond := <-second
	if evFirst != evSecond {
		t.Fatalf("subscribers saw different events: %+v vs %+v", evFirst, evSecond)
	}

	d.Unsubscribe("one")
	if err := d.Regs().SwitchPage(2); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if ev := <-second; ev.Value != 2 {
		t.Fatalf("remaining subscriber missed an event: %+v", ev)
	}
	d.Unsubscribe("two")
}

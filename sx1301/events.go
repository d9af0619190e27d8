package sx1301

import "sync"

// BusEvent describes one register transaction on the control bus.
type BusEvent struct {
	Seq   uint64 `json:"seq"`
	Op    string `json:"op"`
	Addr  uint8  `json:"addr"`
	Value uint8  `json:"value"`
	Error string `json:"error,omitempty"`
}

// subscriber channel capacity. A slow consumer loses events rather than
// stalling bus traffic.
const eventBacklog = 64

type busFeed struct {
	mu   sync.Mutex
	seq  uint64
	subs map[string]chan BusEvent
}

func newBusFeed() *busFeed {
	return &busFeed{subs: make(map[string]chan BusEvent)}
}

func (f *busFeed) publish(op string, addr, value uint8, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	ev := BusEvent{Seq: f.seq, Op: op, Addr: addr, Value: value}
	if err != nil {
		ev.Error = err.Error()
	}
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (f *busFeed) subscribe(id string) <-chan BusEvent {
	ch := make(chan BusEvent, eventBacklog)
	f.mu.Lock()
	f.subs[id] = ch
	f.mu.Unlock()
	return ch
}

func (f *busFeed) unsubscribe(id string) {
	f.mu.Lock()
	if ch, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(ch)
	}
	f.mu.Unlock()
}

// tracedIO mirrors every register access into the bus feed on its way to
// the underlying channel.
type tracedIO struct {
	io   RegIO
	feed *busFeed
}

func (t *tracedIO) ReadRegister(addr uint8) (uint8, error) {
	value, err := t.io.ReadRegister(addr)
	t.feed.publish("read", addr, value, err)
	return value, err
}

func (t *tracedIO) WriteRegister(addr uint8, value uint8) error {
	err := t.io.WriteRegister(addr, value)
	t.feed.publish("write", addr, value, err)
	return err
}

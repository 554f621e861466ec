package storage

import "sync"

// hub delivers changes to subscriptions in write order. Each subscription
// drains its own queue on a dedicated goroutine so a listener may take locks
// held by a concurrent writer without deadlocking it.
type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]*subscription
}

func newHub() *hub {
	return &hub{subs: map[string]map[int]*subscription{}}
}

type subscription struct {
	origin string
	fn     Listener

	mu     sync.Mutex
	queue  []Change
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (h *hub) subscribe(key, origin string, fn Listener) func() {
	sub := &subscription{
		origin: origin,
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.subs[key] == nil {
		h.subs[key] = map[int]*subscription{}
	}
	h.subs[key][id] = sub
	h.mu.Unlock()

	go sub.run()

	return func() {
		h.mu.Lock()
		delete(h.subs[key], id)
		if len(h.subs[key]) == 0 {
			delete(h.subs, key)
		}
		h.mu.Unlock()
		sub.stop()
	}
}

func (h *hub) dispatch(change Change) {
	h.mu.Lock()
	targets := make([]*subscription, 0, len(h.subs[change.Key]))
	for _, sub := range h.subs[change.Key] {
		if sub.origin != "" && sub.origin == change.Origin {
			continue
		}
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		sub.push(change)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	all := h.subs
	h.subs = map[string]map[int]*subscription{}
	h.mu.Unlock()

	for _, subs := range all {
		for _, sub := range subs {
			sub.stop()
		}
	}
}

func (s *subscription) push(change Change) {
	change.Value = cloneBytes(change.Value)
	s.mu.Lock()
	s.queue = append(s.queue, change)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
			s.mu.Lock()
			batch := s.queue
			s.queue = nil
			s.mu.Unlock()
			for _, change := range batch {
				select {
				case <-s.done:
					return
				default:
				}
				s.fn(change)
			}
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

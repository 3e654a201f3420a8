package orchestrator

import "sync"

const statusBufferSize = 8

type statusBroker struct {
	mu          sync.RWMutex
	subscribers map[chan Status]struct{}
}

func newStatusBroker() *statusBroker {
	return &statusBroker{subscribers: make(map[chan Status]struct{})}
}

func (b *statusBroker) subscribe() chan Status {
	ch := make(chan Status, statusBufferSize)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *statusBroker) unsubscribe(ch chan Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

func (b *statusBroker) broadcast(status Status) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- status:
		default:
		}
	}
}

func (b *statusBroker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}

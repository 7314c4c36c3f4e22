package socket

import (
	"testing"
	"time"
)

func newTestHub(buffer int) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan frame, buffer),
		quit:       make(chan struct{}),
	}
}

func TestBroadcastBlocksInsteadOfDropping(t *testing.T) {
	h := newTestHub(1)

	// 填滿緩衝
	h.BroadcastEvent(EventNewMessage, map[string]string{"message": "first"})

	done := make(chan struct{})
	go func() {
		h.BroadcastEvent(EventNewMessage, map[string]string{"message": "second"})
		close(done)
	}()

	// 緩衝滿時生產者應等待，而不是丟棄事件
	select {
	case <-done:
		t.Fatal("broadcast returned while buffer was full")
	case <-time.After(50 * time.Millisecond):
	}

	// 主循環消費一幀後，等待中的事件必須送入
	<-h.broadcast
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast still blocked after buffer drained")
	}

	if len(h.broadcast) != 1 {
		t.Errorf("expected queued frame, got %d", len(h.broadcast))
	}
}

func TestBroadcastReleasedOnShutdown(t *testing.T) {
	h := newTestHub(1)

	h.BroadcastEvent(EventNewMessage, map[string]string{"message": "first"})

	done := make(chan struct{})
	go func() {
		h.BroadcastEvent(EventNewMessage, map[string]string{"message": "second"})
		close(done)
	}()

	h.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast not released by shutdown")
	}
}

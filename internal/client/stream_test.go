package client

import (
	"testing"

	"github.com/nyxwell/wormhole/internal/protocol"
)

func TestStreamConnReadDrainsFedChunksInOrder(t *testing.T) {
	sc := newStreamConn(protocol.NewStreamId(), &Client{})
	sc.feed([]byte("hello "))
	sc.feed([]byte("world"))
	sc.end()

	buf := make([]byte, 3)
	var got []byte
	for {
		n, err := sc.Read(buf)
		got = append(got, buf[:n]...)
		if err != nil {
			break
		}
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

func TestStreamConnFeedAfterCloseIsNoop(t *testing.T) {
	sc := newStreamConn(protocol.NewStreamId(), &Client{})
	sc.discard()
	sc.feed([]byte("late")) // must not panic on a closed channel

	if _, err := sc.Read(make([]byte, 4)); err == nil {
		t.Fatalf("expected EOF from a discarded stream")
	}
}

package debug

import (
	"strings"
	"testing"

	"github.com/ctagard/jdb-mcp/pkg/types"
)

func TestRelayOutputChunks(t *testing.T) {
	text := strings.Repeat("x", outputChunkSize) + "tail"
	var chunks []string
	relayOutput("stdout", strings.NewReader(text), func(s string) {
		chunks = append(chunks, s)
	})

	if strings.Join(chunks, "") != text {
		t.Fatalf("relayed output does not round-trip")
	}
	for _, c := range chunks {
		if len(c) > outputChunkSize {
			t.Errorf("chunk larger than %d bytes", outputChunkSize)
		}
	}
}

func TestBroadcasterBacklogAndSubscribe(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe(4)
	defer cancel()

	b.Emit(types.DebugEvent{Kind: types.EventOutput, Text: "a"})
	b.Emit(types.DebugEvent{Kind: types.EventOutput, Text: "b"})

	got := b.Drain()
	if len(got) != 2 || got[0].Text != "a" {
		t.Fatalf("Drain = %+v", got)
	}
	if len(b.Drain()) != 0 {
		t.Errorf("Drain did not clear the backlog")
	}

	select {
	case ev := <-ch:
		if ev.Text != "a" {
			t.Errorf("subscriber got %+v first", ev)
		}
	default:
		t.Fatalf("subscriber channel empty")
	}
}

func TestBroadcasterBacklogBounded(t *testing.T) {
	b := NewBroadcaster()
	for i := 0; i < backlogCap+10; i++ {
		b.Emit(types.DebugEvent{Kind: types.EventOutput})
	}
	if got := len(b.Drain()); got != backlogCap {
		t.Errorf("backlog length = %d, want %d", got, backlogCap)
	}
}

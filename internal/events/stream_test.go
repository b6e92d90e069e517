package events

import (
	"context"
	"testing"
	"time"

	"github.com/golang/geo/r3"
)

func TestStreamDeliversInOrder(t *testing.T) {
	//1.- Arrange a stream with two handlers and record the order they observe.
	stream := NewStream(Config{Retain: 8})
	var seen []uint64
	stream.Subscribe(func(c Change) { seen = append(seen, c.Sequence) })
	var names []string
	stream.Subscribe(func(c Change) { names = append(names, c.ViewpointName) })

	stream.Publish(Change{ViewpointID: 0, ViewpointName: "a"})
	stream.Publish(Change{ViewpointID: 1, ViewpointName: "b"})

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("unexpected sequences %v", seen)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestUnsubscribeIsExplicitAndIdempotent(t *testing.T) {
	stream := NewStream(Config{})
	calls := 0
	sub := stream.Subscribe(func(Change) { calls++ })
	stream.Publish(Change{})
	sub.Unsubscribe()
	sub.Unsubscribe()
	stream.Publish(Change{})
	if calls != 1 {
		t.Fatalf("expected exactly one delivery before unsubscribe, got %d", calls)
	}
}

func TestHandlerMayUnsubscribeItself(t *testing.T) {
	stream := NewStream(Config{})
	calls := 0
	var sub *Subscription
	sub = stream.Subscribe(func(Change) {
		calls++
		sub.Unsubscribe()
	})
	stream.Publish(Change{})
	stream.Publish(Change{})
	if calls != 1 {
		t.Fatalf("expected handler to detach itself, got %d calls", calls)
	}
}

func TestWatchReceivesAndClosesOnCancel(t *testing.T) {
	stream := NewStream(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := stream.Watch(ctx, 2)
	stream.Publish(Change{ViewpointName: "north"})
	select {
	case change := <-ch:
		if change.ViewpointName != "north" || change.Sequence != 1 {
			t.Fatalf("unexpected change %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for watched change")
	}
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to close after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("watcher was not closed")
	}
}

func TestHistoryRetention(t *testing.T) {
	stream := NewStream(Config{Retain: 3})
	for i := 0; i < 5; i++ {
		stream.Publish(Change{ViewpointID: i})
	}
	history := stream.History(0)
	if len(history) != 3 || history[0].ViewpointID != 2 || history[2].Sequence != 5 {
		t.Fatalf("unexpected history %+v", history)
	}
	if recent := stream.History(1); len(recent) != 1 || recent[0].ViewpointID != 4 {
		t.Fatalf("unexpected limited history %+v", recent)
	}
	if last, ok := stream.Last(); !ok || last.ViewpointID != 4 {
		t.Fatalf("unexpected last change %+v", last)
	}
}

func TestChangeProtoRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 8000, time.UTC)
	change := Change{
		Sequence: 9, ViewpointID: 2, ViewpointName: "west", PreviousID: NoViewpoint,
		Reason: ReasonRefocus, At: at, Position: r3.Vector{X: 1, Y: 2, Z: 3}, Yaw: 45, Pitch: -10, FieldOfView: 38.5,
	}
	data, err := change.MarshalProto()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := UnmarshalProto(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.At.Equal(change.At) {
		t.Fatalf("timestamp mismatch: got %v want %v", decoded.At, change.At)
	}
	decoded.At = change.At
	if decoded != change {
		t.Fatalf("decoded change differs:\n got %+v\nwant %+v", decoded, change)
	}
	encoded, err := change.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	parsed, err := ParseJSON(encoded)
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	parsed.At = change.At
	if parsed != change {
		t.Fatalf("json round trip differs:\n got %+v\nwant %+v", parsed, change)
	}
	if _, err := ParseJSON([]byte("{")); err == nil {
		t.Fatalf("expected malformed json to fail")
	}
}

package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/yolodesk/internal/postprocess"
)

func TestRouter_ListenersSeeEverything(t *testing.T) {
	r := New()

	var got []Event
	remove := r.AddListener(ListenerFunc(func(ev Event) {
		got = append(got, ev)
	}))

	r.PublishStatus("Detecting")
	r.PublishProgress(500)
	r.PublishFPS("fps：30")

	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Seq <= got[i-1].Seq {
			t.Errorf("sequence not increasing: %d then %d", got[i-1].Seq, got[i].Seq)
		}
	}
	if got[0].Kind != Status || got[0].Message != "Detecting" {
		t.Errorf("unexpected first event: %+v", got[0])
	}

	remove()
	r.PublishStatus("Stop")
	if len(got) != 3 {
		t.Errorf("removed listener still called")
	}
}

func TestMailbox_LatestWins(t *testing.T) {
	r := New()
	mb := r.Subscribe(Progress)
	defer mb.Close()

	for p := 1; p <= 5; p++ {
		r.PublishProgress(p * 100)
	}
	r.PublishStatus("ignored")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ev, err := mb.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if ev.Progress != 500 {
		t.Errorf("Progress = %d, want 500", ev.Progress)
	}
	if mb.Drops() != 4 || r.Drops() != 4 {
		t.Errorf("drops = %d/%d, want 4", mb.Drops(), r.Drops())
	}

	// nothing left: Next blocks until the context expires
	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	if _, err := mb.Next(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() on empty mailbox = %v, want deadline exceeded", err)
	}
}

func TestMailbox_CausalOrder(t *testing.T) {
	r := New()
	mb := r.Subscribe()
	defer mb.Close()

	r.PublishProgress(10)
	r.PublishResult("a.jpg", postprocess.ClassCounts{"cat": 1})
	r.PublishStatus("Finished")

	ctx := context.Background()
	want := []Kind{Progress, Result, Status}
	for _, k := range want {
		ev, err := mb.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if ev.Kind != k {
			t.Errorf("got %v, want %v", ev.Kind, k)
		}
	}
}

func TestMailbox_FramesAreCloned(t *testing.T) {
	r := New()
	mb := r.Subscribe(Output)
	defer mb.Close()

	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	r.PublishOutput("a.jpg", &frame)
	frame.Close()

	ev, err := mb.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	defer ev.Close()

	if ev.Frame == nil || ev.Frame.Empty() {
		t.Fatal("expected a private copy of the frame")
	}
	if ev.Frame.Rows() != 4 || ev.Path != "a.jpg" {
		t.Errorf("unexpected event: rows=%d path=%q", ev.Frame.Rows(), ev.Path)
	}
}

func TestMailbox_CloseWakesConsumer(t *testing.T) {
	r := New()
	mb := r.Subscribe(Status)

	var wg sync.WaitGroup
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err = mb.Next(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	r.Unsubscribe(mb)
	wg.Wait()

	if !errors.Is(err, ErrClosed) {
		t.Errorf("Next() after Unsubscribe = %v, want ErrClosed", err)
	}

	// publishing after close is a no-op
	r.PublishStatus("Stop")
	mb.Close()
}

func TestMailbox_WakesOnPublish(t *testing.T) {
	r := New()
	mb := r.Subscribe(Status)
	defer mb.Close()

	done := make(chan Event, 1)
	go func() {
		ev, err := mb.Next(context.Background())
		if err == nil {
			done <- ev
		}
	}()

	time.Sleep(20 * time.Millisecond)
	r.PublishStatus("Pause")

	select {
	case ev := <-done:
		if ev.Message != "Pause" {
			t.Errorf("Message = %q, want Pause", ev.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken")
	}
}

package loader_test

import (
	"sync"
	"testing"

	"github.com/seantiz/modloader/internal/loader"
	"github.com/seantiz/modloader/internal/model"
)

func event(name string, to model.State) loader.Event {
	return loader.Event{Module: name, From: model.StateUnresolved, To: to}
}

func TestBrokerSingleSubscriber(t *testing.T) {
	b := loader.NewBroker()
	ch, unsub := b.Subscribe()
	defer unsub()

	names := []string{"a.js", "b.js", "c.js"}
	for _, n := range names {
		b.Publish(event(n, model.StateFetching))
	}
	b.Close()

	var got []string
	for e := range ch {
		got = append(got, e.Module)
	}
	if len(got) != len(names) {
		t.Fatalf("got %d events, want %d", len(got), len(names))
	}
	for i, n := range got {
		if n != names[i] {
			t.Errorf("event[%d] = %q, want %q", i, n, names[i])
		}
	}
}

func TestBrokerMultipleSubscribers(t *testing.T) {
	b := loader.NewBroker()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Publish(event("x.js", model.StateReady))
	b.Close()

	for i, ch := range []<-chan loader.Event{ch1, ch2} {
		var got []loader.Event
		for e := range ch {
			got = append(got, e)
		}
		if len(got) != 1 || got[0].Module != "x.js" || got[0].To != model.StateReady {
			t.Errorf("subscriber %d got %+v", i+1, got)
		}
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := loader.NewBroker()
	ch, unsub := b.Subscribe()
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	b.Publish(event("x.js", model.StateReady))
}

func TestBrokerLateSubscriberGetsClosed(t *testing.T) {
	b := loader.NewBroker()
	b.Publish(event("early.js", model.StateReady))
	b.Close()

	ch, unsub := b.Subscribe()
	defer unsub()
	if _, ok := <-ch; ok {
		t.Error("late subscriber should get a closed channel")
	}
}

func TestBrokerDropsWhenFull(t *testing.T) {
	b := loader.NewBroker()
	ch, unsub := b.Subscribe()
	defer unsub()

	for range 1000 {
		b.Publish(event("x.js", model.StateFetching))
	}
	b.Close()

	n := 0
	for range ch {
		n++
	}
	if n == 0 || n >= 1000 {
		t.Errorf("received %d events, want a bounded non-zero count", n)
	}
}

func TestBrokerConcurrentPublish(t *testing.T) {
	b := loader.NewBroker()
	ch, unsub := b.Subscribe()
	defer unsub()

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			for range 10 {
				b.Publish(event("x.js", model.StateReady))
			}
		})
	}
	wg.Wait()
	b.Close()

	n := 0
	for range ch {
		n++
	}
	if n != 40 {
		t.Errorf("received %d events, want 40", n)
	}
}

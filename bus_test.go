package event

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mobilib/event/transport"
	"github.com/mobilib/event/transport/channel"
	"github.com/mobilib/event/transport/manual"
	"syreclabs.com/go/faker"
)

func init() {
	faker.Seed(time.Now().UnixNano())
}

const flushTimeout = 5 * time.Second

func flush(t *testing.T, bus *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := bus.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}

func TestNewBus(t *testing.T) {
	t.Run("transport is required", func(t *testing.T) {
		_, err := NewBus("no-transport")
		if !errors.Is(err, ErrTransportRequired) {
			t.Errorf("expected ErrTransportRequired, got %v", err)
		}
	})

	t.Run("default name", func(t *testing.T) {
		bus, err := NewBus("", WithBusTransport(manual.New()))
		if err != nil {
			t.Fatalf("NewBus failed: %v", err)
		}
		if bus.Name() != DefaultBusName {
			t.Errorf("expected name %q, got %q", DefaultBusName, bus.Name())
		}
		if bus.ID() == "" {
			t.Error("bus id is empty")
		}
		if !bus.Running() {
			t.Error("new bus is not running")
		}
	})
}

func TestAddListenerTwiceDeliversOnce(t *testing.T) {
	tr := manual.New()
	bus := TestBus(tr)
	rec := NewRecorder("l", nil)

	AddListener(bus, rec, "x")
	AddListener(bus, rec, "x")

	if err := bus.PostEvent(context.Background(), nil, "x"); err != nil {
		t.Fatalf("PostEvent failed: %v", err)
	}
	tr.RunPending()

	if n := rec.Count(); n != 1 {
		t.Errorf("expected 1 delivery, got %d", n)
	}
}

func TestAddListenerMultipleNames(t *testing.T) {
	tr := manual.New()
	bus := TestBus(tr)
	rec := NewRecorder("l", nil)

	AddListener(bus, rec, NetworkOn, NetworkOff)
	bus.PostEvent(context.Background(), nil, NetworkOn)
	bus.PostEvent(context.Background(), nil, NetworkOff)
	bus.PostEvent(context.Background(), nil, KeyboardShown)
	tr.RunPending()

	if rec.CountFor(NetworkOn) != 1 || rec.CountFor(NetworkOff) != 1 {
		t.Errorf("unexpected deliveries: %+v", rec.Deliveries())
	}
	if rec.CountFor(KeyboardShown) != 0 {
		t.Error("delivered an event the listener did not register for")
	}

	// No-ops
	var nilRec *Recorder
	AddListener(bus, nilRec, "x")
	AddListener(bus, rec)
	if bus.Registry().Set("x") != nil {
		t.Error("nil listener was registered")
	}
}

func addTransientRecorder(bus *Bus, name string) {
	AddListener(bus, NewRecorder("transient", nil), name)
}

func TestUnreferencedListenerIsDropped(t *testing.T) {
	tr := manual.New()
	bus := TestBus(tr)
	addTransientRecorder(bus, "x")

	if !eventually(func() bool { return bus.Registry().IsEmpty("x") }) {
		t.Fatal("unreferenced listener is still registered")
	}
	if err := bus.PostEvent(context.Background(), nil, "x"); err != nil {
		t.Fatalf("PostEvent failed: %v", err)
	}
	if n := tr.Pending(); n != 0 {
		t.Errorf("expected no batch for reclaimed listener, got %d", n)
	}
	if bus.Registry().Set("x") != nil {
		t.Error("empty set was not pruned by PostEvent")
	}
}

func TestDeliveryOrderFollowsRegistration(t *testing.T) {
	tr := manual.New()
	bus := TestBus(tr)
	log := &DeliveryLog{}
	l1 := NewRecorder("L1", log)
	l2 := NewRecorder("L2", log)
	l3 := NewRecorder("L3", log)

	AddListener(bus, l1, "x")
	AddListener(bus, l2, "x")
	AddListener(bus, l3, "x")
	bus.PostEvent(context.Background(), nil, "x")
	tr.RunPending()

	if diff := cmp.Diff([]string{"L1", "L2", "L3"}, log.Labels()); diff != "" {
		t.Errorf("delivery order mismatch (-want +got):\n%s", diff)
	}
}

func TestPostToNobody(t *testing.T) {
	tr := NewRecordingTransport(manual.New())
	bus := TestBus(tr)

	if err := bus.PostEvent(context.Background(), "sender", "unregistered-name"); err != nil {
		t.Fatalf("PostEvent failed: %v", err)
	}
	if n := tr.Submitted(); n != 0 {
		t.Errorf("expected no batch, got %d", n)
	}
}

func TestPostEventPayload(t *testing.T) {
	tr := manual.New()
	bus := TestBus(tr)
	rec := NewRecorder("l", nil)
	AddListener(bus, rec, "x")

	sender := &namedListener{"sender"}
	args := []any{"a", 2}
	bus.PostEvent(context.Background(), sender, "x", args...)
	args[0] = "changed"
	tr.RunPending()

	got := rec.Deliveries()
	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	if got[0].Sender != sender {
		t.Errorf("expected sender %v, got %v", sender, got[0].Sender)
	}
	if diff := cmp.Diff(Args{"a", 2}, got[0].Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if got[0].BatchID == "" {
		t.Error("delivery context has no batch id")
	}
}

type contextProbe struct {
	mu     sync.Mutex
	name   string
	source string
	sender any
}

func (p *contextProbe) OnEvent(ctx context.Context, sender any, name string, args Args) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = ContextEventName(ctx)
	p.source = ContextSource(ctx)
	p.sender = ContextSender(ctx)
}

func TestDeliveryContext(t *testing.T) {
	tr := manual.New()
	bus := TestBus(tr)
	probe := &contextProbe{}
	AddListener(bus, probe, GoToForeground)

	bus.PostEvent(context.Background(), "observer", GoToForeground)
	tr.RunPending()

	if probe.name != GoToForeground {
		t.Errorf("expected name %q, got %q", GoToForeground, probe.name)
	}
	if probe.source != bus.ID() {
		t.Errorf("expected source %q, got %q", bus.ID(), probe.source)
	}
	if probe.sender != "observer" {
		t.Errorf("expected sender observer, got %v", probe.sender)
	}
	if ContextEventName(context.Background()) != "" {
		t.Error("plain context has an event name")
	}
}

func TestSnapshotIsTakenAtPost(t *testing.T) {
	tr := manual.New()
	bus := TestBus(tr)
	early := NewRecorder("early", nil)
	late := NewRecorder("late", nil)
	removed := NewRecorder("removed", nil)
	AddListener(bus, early, "x")
	AddListener(bus, removed, "x")

	bus.PostEvent(context.Background(), nil, "x")
	AddListener(bus, late, "x")
	bus.RemoveListenerFromEvent(removed, "x")
	tr.RunPending()

	if early.Count() != 1 {
		t.Errorf("early: expected 1 delivery, got %d", early.Count())
	}
	if late.Count() != 0 {
		t.Errorf("late: expected 0 deliveries, got %d", late.Count())
	}
	if removed.Count() != 1 {
		t.Errorf("removed: expected the in-flight delivery, got %d", removed.Count())
	}
}

// reposter posts another event from inside OnEvent.
type reposter struct {
	bus  *Bus
	next string
	rec  *Recorder
}

func (r *reposter) OnEvent(ctx context.Context, sender any, name string, args Args) {
	r.rec.OnEvent(ctx, sender, name, args)
	r.bus.PostEvent(ctx, r, r.next)
}

func TestPostFromListenerIsQueued(t *testing.T) {
	tr := manual.New()
	bus := TestBus(tr)
	log := &DeliveryLog{}
	first := &reposter{bus: bus, next: "pong", rec: NewRecorder("ping-1", log)}
	second := NewRecorder("ping-2", log)
	pong := NewRecorder("pong", log)
	AddListener(bus, first, "ping")
	AddListener(bus, second, "ping")
	AddListener(bus, pong, "pong")

	bus.PostEvent(context.Background(), nil, "ping")
	if !tr.RunOne() {
		t.Fatal("no batch queued for ping")
	}
	if diff := cmp.Diff([]string{"ping-1", "ping-2"}, log.Labels()); diff != "" {
		t.Errorf("ping batch mismatch (-want +got):\n%s", diff)
	}
	if n := tr.Pending(); n != 1 {
		t.Fatalf("expected the nested post to be queued, pending=%d", n)
	}
	tr.RunPending()
	if diff := cmp.Diff([]string{"ping-1", "ping-2", "pong"}, log.Labels()); diff != "" {
		t.Errorf("delivery order mismatch (-want +got):\n%s", diff)
	}
}

type selfRemover struct {
	bus   *Bus
	calls int
}

func (s *selfRemover) OnEvent(ctx context.Context, sender any, name string, args Args) {
	s.calls++
	s.bus.RemoveListenerFromAllEvents(s)
}

func TestListenerRemovesItselfDuringDelivery(t *testing.T) {
	tr := manual.New()
	bus := TestBus(tr)
	s := &selfRemover{bus: bus}
	after := NewRecorder("after", nil)
	AddListener(bus, s, "x", "y")
	AddListener(bus, after, "x")

	bus.PostEvent(context.Background(), nil, "x")
	tr.RunPending()
	bus.PostEvent(context.Background(), nil, "x")
	bus.PostEvent(context.Background(), nil, "y")
	tr.RunPending()

	if s.calls != 1 {
		t.Errorf("expected 1 call, got %d", s.calls)
	}
	if after.Count() != 2 {
		t.Errorf("sibling listener: expected 2 deliveries, got %d", after.Count())
	}
	if bus.Registry().Set("y") != nil {
		t.Error("y still registered after self removal")
	}
}

type panicker struct {
	value any
}

func (p *panicker) OnEvent(ctx context.Context, sender any, name string, args Args) {
	panic(p.value)
}

func TestListenerPanicDoesNotAbortBatch(t *testing.T) {
	tr := manual.New()
	var mu sync.Mutex
	var reported []error
	bus := TestBus(tr, WithBusErrorHandler(func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}))

	boom := errors.New("boom")
	before := NewRecorder("before", nil)
	p := &panicker{value: boom}
	after := NewRecorder("after", nil)
	AddListener(bus, before, "x")
	AddListener(bus, p, "x")
	AddListener(bus, after, "x")

	bus.PostEvent(context.Background(), nil, "x")
	tr.RunPending()

	if before.Count() != 1 || after.Count() != 1 {
		t.Errorf("siblings not delivered: before=%d after=%d", before.Count(), after.Count())
	}
	if len(reported) != 1 {
		t.Fatalf("expected 1 reported panic, got %d", len(reported))
	}
	if !IsPanic(reported[0]) {
		t.Errorf("expected a PanicError, got %T", reported[0])
	}
	if !errors.Is(reported[0], boom) {
		t.Errorf("expected PanicError to unwrap to the panic value, got %v", reported[0])
	}
	var pe *PanicError
	if errors.As(reported[0], &pe) && pe.Event != "x" {
		t.Errorf("expected event x, got %q", pe.Event)
	}
}

func TestPostEventTransportRejects(t *testing.T) {
	tr := manual.New()
	bus := TestBus(tr)
	rec := NewRecorder("l", nil)
	AddListener(bus, rec, "x")

	tr.Close(context.Background())
	err := bus.PostEvent(context.Background(), nil, "x")
	if !errors.Is(err, transport.ErrTransportClosed) {
		t.Errorf("expected ErrTransportClosed, got %v", err)
	}
}

func TestFlushFromListener(t *testing.T) {
	tr := manual.New()
	bus := TestBus(tr)
	var got error
	l := ListenerFunc(func(ctx context.Context, sender any, name string, args Args) {
		got = bus.Flush(ctx)
	})
	AddListener(bus, &l, "x")

	bus.PostEvent(context.Background(), nil, "x")
	tr.RunPending()
	if !errors.Is(got, ErrFlushFromDelivery) {
		t.Errorf("expected ErrFlushFromDelivery, got %v", got)
	}
	runtime.KeepAlive(&l)
}

func TestBusClose(t *testing.T) {
	ctx := context.Background()
	tr := channel.New()
	bus := TestBus(tr)
	rec := NewRecorder("l", nil)
	AddListener(bus, rec, "x")
	bus.Listen(func(context.Context, any, string, Args) {}, "x")

	bus.PostEvent(ctx, nil, "x")
	if err := bus.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if rec.Count() != 1 {
		t.Errorf("queued batch not drained on close, got %d deliveries", rec.Count())
	}
	if bus.managedCount() != 0 {
		t.Error("managed listeners still referenced after close")
	}
	if err := bus.PostEvent(ctx, nil, "x"); !errors.Is(err, ErrBusClosed) {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}
	if err := bus.Flush(ctx); !errors.Is(err, ErrBusClosed) {
		t.Errorf("expected ErrBusClosed from Flush, got %v", err)
	}
	if err := bus.Close(ctx); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if bus.Running() {
		t.Error("closed bus reports running")
	}
}

func TestBusStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy with channel transport", func(t *testing.T) {
		bus := TestBus(channel.New())
		defer bus.Close(ctx)
		rec := NewRecorder("l", nil)
		AddListener(bus, rec, "x", "y")

		status := bus.Status(ctx)
		if !status.IsHealthy() {
			t.Errorf("expected healthy, got %s: %s", status.Code, status.Message)
		}
		if status.Details["events"] != 2 {
			t.Errorf("expected 2 events, got %v", status.Details["events"])
		}
		if status.Components["transport"] == nil {
			t.Error("transport status missing")
		}
		if err := bus.Health(ctx); err != nil {
			t.Errorf("Health failed: %v", err)
		}
	})

	t.Run("transport without health check", func(t *testing.T) {
		bus := TestBus(manual.New())
		status := bus.Status(ctx)
		if !status.IsHealthy() {
			t.Errorf("expected healthy, got %s", status.Code)
		}
		if _, ok := status.Components["transport"]; ok {
			t.Error("unexpected transport component")
		}
	})

	t.Run("closed bus is unhealthy", func(t *testing.T) {
		bus := TestBus(manual.New())
		bus.Close(ctx)
		if status := bus.Status(ctx); status.Code != StatusUnhealthy {
			t.Errorf("expected unhealthy, got %s", status.Code)
		}
		if err := bus.Health(ctx); err == nil {
			t.Error("expected Health error for closed bus")
		}
	})
}

func TestBatchesAreNotInterleaved(t *testing.T) {
	bus := TestBus(channel.New())
	defer bus.Close(context.Background())

	const perName = 3
	const posts = 200
	log := &DeliveryLog{}
	var keep []*Recorder
	for _, name := range []string{"a", "b"} {
		for i := 0; i < perName; i++ {
			rec := NewRecorder(name, log)
			keep = append(keep, rec)
			AddListener(bus, rec, name)
		}
	}

	var wg sync.WaitGroup
	for _, name := range []string{"a", "b"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			for i := 0; i < posts; i++ {
				if err := bus.PostEvent(context.Background(), nil, name, i); err != nil {
					t.Errorf("PostEvent failed: %v", err)
					return
				}
			}
		}(name)
	}
	wg.Wait()
	flush(t, bus)

	got := log.Deliveries()
	if len(got) != 2*posts*perName {
		t.Fatalf("expected %d deliveries, got %d", 2*posts*perName, len(got))
	}
	for i := 0; i < len(got); i += perName {
		group := got[i : i+perName]
		for _, d := range group[1:] {
			if d.BatchID != group[0].BatchID || d.Name != group[0].Name {
				t.Fatalf("batch interleaved at delivery %d: %+v", i, group)
			}
		}
	}
	runtime.KeepAlive(keep)
}

func TestConcurrentRegistrationAndPosting(t *testing.T) {
	bus := TestBus(channel.New())
	defer bus.Close(context.Background())

	names := []string{faker.Lorem().Word() + "-0", faker.Lorem().Word() + "-1", faker.Lorem().Word() + "-2"}
	recorders := make([]*Recorder, 6)
	for i := range recorders {
		recorders[i] = NewRecorder(faker.Name().FirstName(), nil)
	}

	var wg sync.WaitGroup
	for i, rec := range recorders {
		wg.Add(1)
		go func(i int, rec *Recorder) {
			defer wg.Done()
			for j := 0; j < 300; j++ {
				name := names[(i+j)%len(names)]
				switch j % 3 {
				case 0:
					AddListener(bus, rec, name)
				case 1:
					bus.RemoveListenerFromEvent(rec, name)
				default:
					AddListener(bus, rec, names...)
				}
			}
		}(i, rec)
	}
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for j := 0; j < 300; j++ {
				if err := bus.PostEvent(context.Background(), p, names[j%len(names)], j); err != nil {
					t.Errorf("PostEvent failed: %v", err)
					return
				}
			}
		}(p)
	}
	wg.Wait()
	flush(t, bus)

	for _, name := range names {
		seen := make(map[Listener]bool)
		for _, l := range bus.Registry().Snapshot(name) {
			if seen[l] {
				t.Errorf("%s: duplicate listener", name)
			}
			seen[l] = true
		}
	}
	runtime.KeepAlive(recorders)
}

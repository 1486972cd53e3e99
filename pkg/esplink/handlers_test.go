package esplink

import "testing"

func TestHandlers_NilCallbacksAreSkipped(t *testing.T) {
	l := Handlers{}.Listener()
	events := []Event{
		StatusUpdateEvent{}, ButtonPressedEvent{}, CategoryChangedEvent{}, HeartbeatEvent{},
		TransferProgressEvent{}, TransferCompleteEvent{}, ConnectionChangedEvent{}, ErrorEvent{},
		ButtonConfiguredEvent{}, PongEvent{}, RawEvent{},
	}
	for _, e := range events {
		l(e)
	}
}

func TestCreateEventTypeFilter(t *testing.T) {
	var r recorder
	l := CreateEventTypeFilter(EventPong, r.listen)

	l(PongEvent{Timestamp: 1})
	l(ButtonPressedEvent{Button: 1})
	l(PongEvent{Timestamp: 2})

	if got := r.all(); len(got) != 2 {
		t.Fatalf("events=%+v", got)
	}
}

func TestCreateConditionalListener(t *testing.T) {
	var r recorder
	l := CreateConditionalListener(func(e Event) bool {
		b, ok := e.(ButtonPressedEvent)
		return ok && b.Button == 3
	}, r.listen)

	l(ButtonPressedEvent{Button: 1})
	l(ButtonPressedEvent{Button: 3})

	if got := r.all(); len(got) != 1 || got[0].(ButtonPressedEvent).Button != 3 {
		t.Fatalf("events=%+v", got)
	}
}

func TestSequentialListeners(t *testing.T) {
	var order []string
	l := SequentialListeners(
		func(Event) { order = append(order, "first") },
		nil,
		func(Event) { order = append(order, "second") },
	)

	l(PongEvent{})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order=%v", order)
	}
}

func TestCreateTransferListener(t *testing.T) {
	var progress []int
	var outcome *TransferCompleteEvent
	l := CreateTransferListener(
		func(e TransferProgressEvent) { progress = append(progress, e.Progress) },
		func(e TransferCompleteEvent) { outcome = &e },
	)

	l(TransferProgressEvent{Filename: "001.wav", Progress: 10})
	l(ButtonPressedEvent{Button: 1})
	l(TransferCompleteEvent{Filename: "001.wav", Success: true})

	if len(progress) != 1 || progress[0] != 10 {
		t.Fatalf("progress=%v", progress)
	}
	if outcome == nil || !outcome.Success {
		t.Fatalf("outcome=%+v", outcome)
	}
}

func TestCreateConnectionStatusListener(t *testing.T) {
	var seen []bool
	l := CreateConnectionStatusListener(NopLogger(), func(ok bool) { seen = append(seen, ok) })

	l(ConnectionChangedEvent{Connected: true})
	l(PongEvent{})
	l(ConnectionChangedEvent{Connected: false})

	if len(seen) != 2 || !seen[0] || seen[1] {
		t.Fatalf("seen=%v", seen)
	}
}

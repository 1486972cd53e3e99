package esplink

import "time"

// Handlers routes each event type to its own optional callback. Nil callbacks
// are skipped.
type Handlers struct {
	OnStatusUpdate      func(StatusUpdateEvent)
	OnButtonPressed     func(ButtonPressedEvent)
	OnCategoryChanged   func(CategoryChangedEvent)
	OnHeartbeat         func(HeartbeatEvent)
	OnTransferProgress  func(TransferProgressEvent)
	OnTransferComplete  func(TransferCompleteEvent)
	OnConnectionChanged func(ConnectionChangedEvent)
	OnError             func(ErrorEvent)
	OnButtonConfigured  func(ButtonConfiguredEvent)
	OnPong              func(PongEvent)
	OnRaw               func(RawEvent)
}

// Listener adapts h to a bus listener.
func (h Handlers) Listener() Listener {
	return func(e Event) {
		switch ev := e.(type) {
		case StatusUpdateEvent:
			if h.OnStatusUpdate != nil {
				h.OnStatusUpdate(ev)
			}
		case ButtonPressedEvent:
			if h.OnButtonPressed != nil {
				h.OnButtonPressed(ev)
			}
		case CategoryChangedEvent:
			if h.OnCategoryChanged != nil {
				h.OnCategoryChanged(ev)
			}
		case HeartbeatEvent:
			if h.OnHeartbeat != nil {
				h.OnHeartbeat(ev)
			}
		case TransferProgressEvent:
			if h.OnTransferProgress != nil {
				h.OnTransferProgress(ev)
			}
		case TransferCompleteEvent:
			if h.OnTransferComplete != nil {
				h.OnTransferComplete(ev)
			}
		case ConnectionChangedEvent:
			if h.OnConnectionChanged != nil {
				h.OnConnectionChanged(ev)
			}
		case ErrorEvent:
			if h.OnError != nil {
				h.OnError(ev)
			}
		case ButtonConfiguredEvent:
			if h.OnButtonConfigured != nil {
				h.OnButtonConfigured(ev)
			}
		case PongEvent:
			if h.OnPong != nil {
				h.OnPong(ev)
			}
		case RawEvent:
			if h.OnRaw != nil {
				h.OnRaw(ev)
			}
		}
	}
}

// Factory functions for common listeners

func CreateLoggingListener(log *Logger, verbose bool) Listener {
	if log == nil {
		log = DefaultLogger()
	}
	return func(e Event) {
		if verbose {
			log.WithField("event", string(e.EventType())).Infof("%+v", e)
			return
		}
		log.WithField("event", string(e.EventType())).Info("Event received")
	}
}

func CreateConnectionStatusListener(log *Logger, callback func(bool)) Listener {
	if log == nil {
		log = DefaultLogger()
	}
	return Handlers{
		OnConnectionChanged: func(ev ConnectionChangedEvent) {
			log.Infof("Connection changed: connected=%t at %s", ev.Connected, time.Now().Format(time.RFC3339))
			if callback != nil {
				callback(ev.Connected)
			}
		},
	}.Listener()
}

func CreateTransferListener(onProgress func(TransferProgressEvent), onComplete func(TransferCompleteEvent)) Listener {
	return Handlers{
		OnTransferProgress: onProgress,
		OnTransferComplete: onComplete,
	}.Listener()
}

func CreateEventTypeFilter(eventType EventType, l Listener) Listener {
	return func(e Event) {
		if e.EventType() == eventType {
			l(e)
		}
	}
}

func CreateConditionalListener(condition func(Event) bool, l Listener) Listener {
	return func(e Event) {
		if condition(e) {
			l(e)
		}
	}
}

// SequentialListeners calls each listener in order on the broadcasting
// goroutine.
func SequentialListeners(listeners ...Listener) Listener {
	return func(e Event) {
		for _, l := range listeners {
			if l != nil {
				l(e)
			}
		}
	}
}

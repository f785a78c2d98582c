package session

import "github.com/1ureka/smproxy/internal/protocol"

// Event is one decoded packet on its way through a session. Observers may
// replace Packet or set Suppressed; the session forwards whatever Packet
// holds afterwards unless the event was suppressed. Key exchange packets are
// reported too, but they are always handled by the session itself.
type Event struct {
	Session    *Session
	Direction  protocol.Direction
	Packet     protocol.Packet
	Suppressed bool
}

// Suppress keeps the packet from reaching the other side.
func (e *Event) Suppress() { e.Suppressed = true }

// Observer is notified about session lifecycle and every packet. Calls come
// from the session's pump goroutine and must return promptly.
type Observer interface {
	SessionStarted(s *Session)
	PacketReceived(e *Event)
	SessionClosed(s *Session, err error)
}

// Observers fans notifications out to each observer in order. A packet
// suppressed by one observer is still shown to the ones after it.
type Observers []Observer

func (o Observers) SessionStarted(s *Session) {
	for _, obs := range o {
		obs.SessionStarted(s)
	}
}

func (o Observers) PacketReceived(e *Event) {
	for _, obs := range o {
		obs.PacketReceived(e)
	}
}

func (o Observers) SessionClosed(s *Session, err error) {
	for _, obs := range o {
		obs.SessionClosed(s, err)
	}
}

// NopObserver ignores everything. Embed it to implement only part of
// Observer.
type NopObserver struct{}

func (NopObserver) SessionStarted(*Session)       {}
func (NopObserver) PacketReceived(*Event)         {}
func (NopObserver) SessionClosed(*Session, error) {}

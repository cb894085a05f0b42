package www

import (
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/angas/spotprice/publish"
)

// Publisher is the read side of a running publish loop.
type Publisher interface {
	Name() string
	State() publish.State
	Online() bool
}

type PublisherStatus struct {
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	State         string          `json:"state"`
	Online        bool            `json:"online"`
	LastMessage   json.RawMessage `json:"lastMessage,omitempty"`
	LastPublished *time.Time      `json:"lastPublished,omitempty"`
}

type event struct {
	Type    string          `json:"type"`
	Source  string          `json:"source"`
	Time    time.Time       `json:"time"`
	Online  *bool           `json:"online,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type lastMessage struct {
	payload []byte
	at      time.Time
}

// Status collects what the publishers do and forwards it to websocket
// clients. It is the publish.Observer of every loop.
type Status struct {
	logger     *slog.Logger
	hub        *Hub
	now        func() time.Time
	mu         sync.RWMutex
	publishers []Publisher
	kinds      map[string]string
	last       map[string]lastMessage
}

var _ publish.Observer = (*Status)(nil)

// NewStatus creates a status, hub may be nil.
func NewStatus(hub *Hub) *Status {
	return &Status{
		logger: slog.Default().With("module", "www"),
		hub:    hub,
		now:    time.Now,
		kinds:  make(map[string]string),
		last:   make(map[string]lastMessage),
	}
}

func (s *Status) Add(p Publisher, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishers = append(s.publishers, p)
	s.kinds[p.Name()] = kind
}

func (s *Status) Published(name string, payload []byte) {
	now := s.now()
	s.mu.Lock()
	s.last[name] = lastMessage{payload: slices.Clone(payload), at: now}
	s.mu.Unlock()

	s.send(event{Type: "published", Source: name, Time: now, Payload: payload})
}

func (s *Status) Availability(name string, online bool) {
	s.send(event{Type: "availability", Source: name, Time: s.now(), Online: &online})
}

func (s *Status) send(e event) {
	if s.hub == nil {
		return
	}
	buf, err := json.Marshal(e)
	if err != nil {
		s.logger.Error("failed to encode event", slog.Any("error", err))
		return
	}
	s.hub.Send(buf)
}

// Snapshot returns the publishers sorted by name.
func (s *Status) Snapshot() []PublisherStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PublisherStatus, 0, len(s.publishers))
	for _, p := range s.publishers {
		ps := PublisherStatus{
			Name:   p.Name(),
			Type:   s.kinds[p.Name()],
			State:  p.State().String(),
			Online: p.Online(),
		}
		if m, ok := s.last[p.Name()]; ok {
			at := m.at
			ps.LastMessage = m.payload
			ps.LastPublished = &at
		}
		out = append(out, ps)
	}
	slices.SortFunc(out, func(a, b PublisherStatus) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Package presence tracks connected players and routes server events to them:
// direct notifications, topic broadcasts and a pending queue for players
// who are offline when a lasting event happens.
package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/mill-arena/internal/obslog"
	"github.com/park285/mill-arena/pkg/milldto"
)

const peerBuffer = 64

// Forwarder mirrors broadcasts to an outside system. *relay.Client satisfies it.
type Forwarder interface {
	Forward(ctx context.Context, topic string, env milldto.Envelope) error
}

// Peer is one live connection. Out is closed when the peer is detached.
type Peer struct {
	Player string

	mu     sync.Mutex
	out    chan []byte
	closed bool
}

func (p *Peer) Out() <-chan []byte { return p.out }

func (p *Peer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.out)
	}
}

// send never blocks; a slow peer drops frames.
func (p *Peer) send(raw []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.out <- raw:
		return true
	default:
		return false
	}
}

type Hub struct {
	mu     sync.RWMutex
	peers  map[string]*Peer
	topics map[string]map[string]struct{}

	pending   *PendingQueue
	keep      map[string]bool
	forwarder Forwarder
	forwardTO time.Duration
}

type Option func(*Hub)

func WithPendingQueue(q *PendingQueue) Option { return func(h *Hub) { h.pending = q } }

func WithForwarder(f Forwarder) Option { return func(h *Hub) { h.forwarder = f } }

// DefaultPendingEvents are queued for offline players.
var DefaultPendingEvents = []string{
	milldto.EventGameOver,
	milldto.EventRatingUpdate,
	milldto.EventTournamentResult,
	milldto.EventAnnouncement,
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		peers:     make(map[string]*Peer),
		topics:    make(map[string]map[string]struct{}),
		keep:      make(map[string]bool),
		forwardTO: 5 * time.Second,
	}
	for _, e := range DefaultPendingEvents {
		h.keep[e] = true
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach registers a connection for player, replacing an older one, and
// returns the events queued while it was offline.
func (h *Hub) Attach(ctx context.Context, player string) (*Peer, [][]byte) {
	p := &Peer{Player: player, out: make(chan []byte, peerBuffer)}
	h.mu.Lock()
	old := h.peers[player]
	h.peers[player] = p
	h.mu.Unlock()
	if old != nil {
		old.close()
	}
	obslog.L().Info("peer_attached", zap.String("player", player), zap.Bool("replaced", old != nil))

	if h.pending == nil {
		return p, nil
	}
	queued, err := h.pending.Drain(ctx, player)
	if err != nil {
		obslog.L().Warn("pending_drain_failed", zap.String("player", player), zap.Error(err))
		return p, nil
	}
	return p, queued
}

// Detach removes p if it is still the player's current connection.
func (h *Hub) Detach(p *Peer) {
	h.mu.Lock()
	if h.peers[p.Player] == p {
		delete(h.peers, p.Player)
	}
	h.mu.Unlock()
	p.close()
	obslog.L().Info("peer_detached", zap.String("player", p.Player))
}

func (h *Hub) Online(player string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.peers[player]
	return ok
}

func (h *Hub) Subscribe(topic, player string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[topic]
	if subs == nil {
		subs = make(map[string]struct{})
		h.topics[topic] = subs
	}
	subs[player] = struct{}{}
}

func (h *Hub) Unsubscribe(topic, player string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[topic]
	delete(subs, player)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Notify sends an event to one player. Offline players get lasting events
// queued for their next connection.
func (h *Hub) Notify(player, event string, payload any) {
	env, raw, ok := encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	p := h.peers[player]
	h.mu.RUnlock()
	if p != nil {
		if !p.send(raw) {
			obslog.L().Warn("peer_slow_drop", zap.String("player", player), zap.String("event", event))
		}
		return
	}
	if h.pending == nil || !h.keep[env.Type] {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.pending.Push(ctx, player, raw); err != nil {
		obslog.L().Warn("pending_push_failed", zap.String("player", player), zap.String("event", event), zap.Error(err))
	}
}

// Broadcast sends an event to every connected subscriber of topic.
func (h *Hub) Broadcast(topic, event string, payload any) {
	env, raw, ok := encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	targets := make([]*Peer, 0, len(h.topics[topic]))
	for player := range h.topics[topic] {
		if p := h.peers[player]; p != nil {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()
	for _, p := range targets {
		p.send(raw)
	}
	h.forward(topic, env)
}

// Announce reaches every connected player and queues for nobody.
func (h *Hub) Announce(event string, payload any) int {
	env, raw, ok := encode(event, payload)
	if !ok {
		return 0
	}
	h.mu.RLock()
	targets := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		targets = append(targets, p)
	}
	h.mu.RUnlock()
	n := 0
	for _, p := range targets {
		if p.send(raw) {
			n++
		}
	}
	h.forward("all", env)
	return n
}

func (h *Hub) forward(topic string, env milldto.Envelope) {
	if h.forwarder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.forwardTO)
		defer cancel()
		if err := h.forwarder.Forward(ctx, topic, env); err != nil {
			obslog.L().Warn("relay_forward_failed", zap.String("topic", topic), zap.String("event", env.Type), zap.Error(err))
		}
	}()
}

func encode(event string, payload any) (milldto.Envelope, []byte, bool) {
	env := milldto.Envelope{Type: event}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			obslog.L().Error("event_encode_failed", zap.String("event", event), zap.Error(err))
			return env, nil, false
		}
		env.Payload = body
	}
	raw, err := json.Marshal(env)
	if err != nil {
		obslog.L().Error("event_encode_failed", zap.String("event", event), zap.Error(err))
		return env, nil, false
	}
	return env, raw, true
}

// Frame encodes one event as it is written to a connection.
func Frame(event string, payload any) ([]byte, bool) {
	_, raw, ok := encode(event, payload)
	return raw, ok
}

package game

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// Client is a connected peer, per spec.md §3. It owns its event queue and
// byte buffers exclusively; the worldstate builder only borrows them for the
// duration of one tick (spec.md §5).
type Client struct {
	CN    int // numeric handle, 0..MaxClients
	Owner int // bot ownership; equals CN for humans

	SessionID int // random 24-bit per-connection token

	ConnectedAt time.Time
	Name        string
	Team        Team
	Model       int
	Privilege   Privilege
	Connected   bool
	Local       bool

	AuthReqID int // pending zero-knowledge challenge, 0 if none outstanding

	Ping        int
	Permissions map[byte]bool // capability letters, e.g. 'a'=admin, 's'=scripting

	IP       string
	Hostname string
	Country  string

	State GameState

	Events []Event

	PosBuf []byte // unreliable position stream, this tick's accumulation
	MsgBuf []byte // reliable message stream, this tick's accumulation

	GameOffset    int64 // server_millis - client_millis, time reconciliation anchor
	HaveOffset    bool
	LastEventWait time.Time

	Guards ClientGuards

	IsBot bool
}

// NewClient allocates a fresh registry slot. Session ID is drawn uniformly
// from crypto/rand rather than reproducing the legacy biased formula spec.md
// flags in its Open Questions.
func NewClient(cn int) *Client {
	return &Client{
		CN:          cn,
		Owner:       cn,
		SessionID:   randomSessionID(),
		ConnectedAt: time.Now(),
		Permissions: make(map[byte]bool),
		Guards:      NewClientGuards(),
	}
}

func randomSessionID() int {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return int(binary.LittleEndian.Uint32(b[:]) & 0xFFFFFF)
}

// HasPermission reports whether the client's permission set contains c.
func (c *Client) HasPermission(letter byte) bool { return c.Permissions[letter] }

// EnqueueEvent appends an event to the client's queue, dropping it per
// spec.md §3 if the queue is at capacity or the client is a spectator (the
// dispatcher is responsible for the "Alive only" gate for Shot/Explode; this
// just enforces the length cap and spectator drop uniformly for all kinds).
func (c *Client) EnqueueEvent(e Event) bool {
	if c.State.State == StateSpectator {
		return false
	}
	if len(c.Events) >= MaxEventQueue {
		return false
	}
	c.Events = append(c.Events, e)
	return true
}

// DrainEvents removes and returns all pending events, discarding
// non-keepable ones is the caller's responsibility on death; this just
// empties the queue for processing.
func (c *Client) DrainEvents() []Event {
	ev := c.Events
	c.Events = nil
	return ev
}

// ClearNonKeepableEvents drops everything except Keepable (Explode) events,
// called on death per spec.md §3/§9.
func (c *Client) ClearNonKeepableEvents() {
	kept := c.Events[:0]
	for _, e := range c.Events {
		if e.Keepable {
			kept = append(kept, e)
		}
	}
	c.Events = kept
}

// ReconcileServerMillis implements spec.md §4.4's time-sync anchor: the
// offset is (re)computed on the first event or once the wait has expired
// with an empty queue, otherwise reused so relative ordering from the
// client is preserved.
func (c *Client) ReconcileServerMillis(nowServerMillis, clientMillis int64, waitExpired bool) int64 {
	if !c.HaveOffset || (waitExpired && len(c.Events) == 0) {
		c.GameOffset = nowServerMillis - clientMillis
		c.HaveOffset = true
	}
	return c.GameOffset + clientMillis
}

package game

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// Registry owns the client slots: a "connecting" set created on
// transport-accept, and an "active" set a client moves into on successful
// CONNECT. Grounded on the teacher's Server.clients map plus
// game_state_handlers.go's login slot allocation (server/websocket.go,
// server/game_state_handlers.go).
type Registry struct {
	connecting map[int]*Client
	active     map[int]*Client
	nextCN     int

	savedScores map[string]SavedScore

	Bans       []Ban
	Blacklist  []Notice
	Whitelist  []Notice

	MasterMode MasterMode
	allowList  map[string]bool // populated on entry to MMPrivate
}

// NewRegistry creates an empty client registry.
func NewRegistry() *Registry {
	return &Registry{
		connecting:  make(map[int]*Client),
		active:      make(map[int]*Client),
		savedScores: make(map[string]SavedScore),
		allowList:   make(map[string]bool),
	}
}

// BeginConnect allocates a CN and places a new Client into the connecting
// set (transport-accept time, before CONNECT is processed).
func (r *Registry) BeginConnect() (*Client, error) {
	cn := -1
	for i := 0; i < MaxClients; i++ {
		if _, busy := r.active[i]; busy {
			continue
		}
		if _, busy := r.connecting[i]; busy {
			continue
		}
		cn = i
		break
	}
	if cn < 0 {
		return nil, fmt.Errorf("server full")
	}
	c := NewClient(cn)
	r.connecting[cn] = c
	return c, nil
}

// CompleteConnect moves a client from connecting to active on a successful
// CONNECT message, restoring any SavedScore keyed by (ip,name).
func (r *Registry) CompleteConnect(c *Client) {
	delete(r.connecting, c.CN)
	r.active[c.CN] = c
	c.Connected = true
	if saved, ok := r.savedScores[savedScoreKey(c.IP, c.Name)]; ok {
		c.State.Frags = saved.Frags
		c.State.Deaths = saved.Deaths
		c.State.Teamkills = saved.Teamkills
		c.State.Flags = saved.Flags
		c.State.TimePlayed = saved.TimePlayed
		delete(r.savedScores, savedScoreKey(c.IP, c.Name))
	}
}

// Abandon removes a client that never completed CONNECT.
func (r *Registry) Abandon(cn int) {
	delete(r.connecting, cn)
}

// Disconnect removes an active client, saving its score for possible
// reconnect within the match, and cancels its pending events (spec.md §5:
// disconnects cancel all pending events for the client).
func (r *Registry) Disconnect(cn int) {
	c, ok := r.active[cn]
	if !ok {
		return
	}
	if !c.IsBot {
		r.savedScores[savedScoreKey(c.IP, c.Name)] = SavedScore{
			IP: c.IP, Name: c.Name,
			Frags: c.State.Frags, Deaths: c.State.Deaths,
			Teamkills: c.State.Teamkills, Flags: c.State.Flags,
			TimePlayed: c.State.TimePlayed,
		}
	}
	c.Events = nil
	delete(r.active, cn)
}

// Get returns an active client by CN.
func (r *Registry) Get(cn int) (*Client, bool) {
	c, ok := r.active[cn]
	return c, ok
}

// Connecting returns a connecting (not yet authorized) client by CN.
func (r *Registry) Connecting(cn int) (*Client, bool) {
	c, ok := r.connecting[cn]
	return c, ok
}

// Active returns all currently active clients ordered by CN, per spec.md
// §5's "broadcasts for a tick are ordered by client index" requirement. The
// slice is a snapshot; callers must not mutate the map during iteration.
func (r *Registry) Active() []*Client {
	out := make([]*Client, 0, len(r.active))
	for _, c := range r.active {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CN < out[j].CN })
	return out
}

// Count returns the number of active clients.
func (r *Registry) Count() int { return len(r.active) }

// ResetScores zeroes every active client's scoring history for a map
// change, per spec.md §4.6.
func (r *Registry) ResetScores() {
	for _, c := range r.active {
		c.State.ResetForMapChange()
	}
}

// matches reports whether pattern (a glob over '*'/'?') matches any of the
// subject strings, grounded on gameserver.cpp's fnmatch-based is_blacklisted
// (original_source), ported to path.Match-style glob semantics.
func matches(pattern string, subjects ...string) bool {
	for _, s := range subjects {
		if ok, _ := path.Match(pattern, s); ok {
			return true
		}
		if strings.EqualFold(pattern, s) {
			return true
		}
	}
	return false
}

// IsBanned reports whether a client identified by ip/hostname/name matches
// any active ban, per spec.md §3's Ban pattern and §10 supplement 3.
func (r *Registry) IsBanned(ip, hostname, name string, nowAbsMillis int64) bool {
	for _, b := range r.Bans {
		if b.Expiry.Expired(nowAbsMillis) {
			continue
		}
		if matches(b.Match, ip, hostname, name) {
			return true
		}
	}
	return false
}

// AddBan appends a ban pattern; negative duration means permanent, matching
// spec.md §3's legacy sentinel convention collapsed into the Expiry sum type.
func (r *Registry) AddBan(pattern, name string, nowAbsMillis int64, durationMillis int64) {
	e := Expiry{Permanent: true}
	if durationMillis >= 0 {
		e = Expiry{At: nowAbsMillis + durationMillis}
	}
	r.Bans = append(r.Bans, Ban{Match: pattern, Expiry: e, Name: name})
}

// ClearBans empties the ban list (the ClearBans protocol message).
func (r *Registry) ClearBans() { r.Bans = nil }

// IsBlacklisted reports whether ip/hostname/name matches a blacklist notice.
func (r *Registry) IsBlacklisted(ip, hostname, name string) (bool, string) {
	for _, n := range r.Blacklist {
		if matches(n.Match, ip, hostname, name) {
			return true, n.Reason
		}
	}
	return false, ""
}

// IsWhitelisted reports whether ip/hostname matches a whitelist notice (used
// under MMPrivate in addition to the dynamic allow-list).
func (r *Registry) IsWhitelisted(ip, hostname string) bool {
	for _, n := range r.Whitelist {
		if matches(n.Match, ip, hostname) {
			return true
		}
	}
	return false
}

// EnterPrivateMode populates the allow-list from currently connected IPs,
// per spec.md §4.9 ("requires IP be in an allow-list, populated on entry to
// Private").
func (r *Registry) EnterPrivateMode() {
	r.allowList = make(map[string]bool)
	for _, c := range r.active {
		r.allowList[c.IP] = true
	}
	r.MasterMode = MMPrivate
}

// AllowedUnderPrivate reports whether ip may connect while mastermode is Private.
func (r *Registry) AllowedUnderPrivate(ip string) bool { return r.allowList[ip] }

// AllowPrivate adds an IP to the Private-mode allow-list (e.g. a client that
// authenticates after mode entry).
func (r *Registry) AllowPrivate(ip string) { r.allowList[ip] = true }

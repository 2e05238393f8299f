package protocol

import (
	"fmt"
	"strings"

	"github.com/lab1702/skirmishd/internal/game"
	"github.com/lab1702/skirmishd/internal/wire"
)

// DisconnectReason enumerates spec.md §4.2's peer-visible disconnect codes.
type DisconnectReason int

const (
	ReasonEndOfPacket DisconnectReason = iota
	ReasonBadClientNum
	ReasonKicked
	ReasonBadTag
	ReasonBanned
	ReasonPrivate
	ReasonFull
	ReasonTimeout
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonEndOfPacket:
		return "EndOfPacket"
	case ReasonBadClientNum:
		return "BadClientNum"
	case ReasonKicked:
		return "Kicked"
	case ReasonBadTag:
		return "BadTag"
	case ReasonBanned:
		return "Banned"
	case ReasonPrivate:
		return "Private"
	case ReasonFull:
		return "Full"
	case ReasonTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// FatalError carries a disconnect reason up from the dispatcher, per spec.md
// §7 tier 2 ("disconnect with reason").
type FatalError struct {
	Reason DisconnectReason
	Detail string
}

func (e *FatalError) Error() string { return fmt.Sprintf("%s: %s", e.Reason, e.Detail) }

// Sink receives outbound effects the dispatcher produces: per-client replies,
// broadcasts, and log lines. Kept narrow so internal/protocol has no
// transport dependency.
type Sink interface {
	SendTo(cn int, data []byte)
	SendBulk(cn int, data []byte)
	Broadcast(excludeCN int, data []byte)
	LogDrop(cn int, tag MsgType, reason string)
}

// DemoControl lets the dispatcher drive the server's demo recorder and
// library (SPEC_FULL.md §10 supplement 4) without internal/protocol
// importing internal/demo directly.
type DemoControl interface {
	SetRecording(on bool)
	ListDemos() []string
	GetDemo(num int) ([]byte, bool)
	ClearDemos(n int)
}

// AuthRelay forwards the external zero-knowledge auth round trip to the
// master server (spec.md §4.9/§6), without internal/protocol importing
// internal/master directly.
type AuthRelay interface {
	RequestAuth(id int, name string) bool
	AnswerChallenge(id int, answer string) bool
}

// Dispatcher reads one packet's worth of tagged messages and authorizes/
// routes each against the registry, per spec.md §4.3.
type Dispatcher struct {
	reg    *game.Registry
	sink   Sink
	demos  DemoControl
	auth   AuthRelay
	local  map[int]bool // CNs the dispatcher trusts as "local" (loopback admin tools)
	mapCRC uint32       // 0 until SetMapCRC is called by the map-change path
}

// NewDispatcher constructs a Dispatcher bound to a client registry.
func NewDispatcher(reg *game.Registry, sink Sink, demos DemoControl) *Dispatcher {
	return &Dispatcher{reg: reg, sink: sink, demos: demos, local: make(map[int]bool)}
}

// SetMapCRC records the currently loaded map's CRC, checked against every
// incoming MapCRC message (SPEC_FULL.md §10 supplement 5).
func (d *Dispatcher) SetMapCRC(crc uint32) { d.mapCRC = crc }

// SetAuthRelay wires the master-server auth round trip. Left unset, AuthTry
// and AuthAns are answered with "not connected to authentication server",
// the same failure gameserver.cpp's requestmasterf path reports when no
// master link exists.
func (d *Dispatcher) SetAuthRelay(a AuthRelay) { d.auth = a }

// MarkLocal flags cn as a local/trusted connection, exempting it from the
// server-only tag rejection (spec.md §4.3: "a server-only tag from a
// non-local client is fatal").
func (d *Dispatcher) MarkLocal(cn int) { d.local[cn] = true }

// Dispatch processes every message in buf sent by senderCN, returning a
// *FatalError if the peer must be disconnected. senderCN identifies the
// connection, not necessarily the subject of every message (e.g. a bot's
// owner sends Pos on the bot's behalf).
func (d *Dispatcher) Dispatch(senderCN int, buf *wire.Buffer, nowGameMillis int64) error {
	for !buf.Empty() {
		tagInt := buf.GetInt()
		if buf.Overread {
			return &FatalError{Reason: ReasonEndOfPacket, Detail: "truncated tag"}
		}
		tag := MsgType(tagInt)
		size, variable, known := BodySize(tag)
		if !known {
			return &FatalError{Reason: ReasonBadTag, Detail: fmt.Sprintf("unknown tag %d", tagInt)}
		}
		if IsServerOnly(tag) && !d.local[senderCN] {
			return &FatalError{Reason: ReasonBadTag, Detail: fmt.Sprintf("server-only tag %d from client", tagInt)}
		}

		sender, ok := d.reg.Get(senderCN)
		if !ok {
			return &FatalError{Reason: ReasonBadClientNum, Detail: "sender not active"}
		}

		if err := d.handle(sender, tag, buf, nowGameMillis); err != nil {
			return err
		}
		if buf.Overread {
			return &FatalError{Reason: ReasonEndOfPacket, Detail: "truncated body"}
		}
		_ = size
		_ = variable
	}
	return nil
}

// handle authorizes and applies one message's effect. Unhandled-but-known
// tags fall through to skipBody so a forward-compatible client can still be
// served without the dispatcher understanding every message kind.
func (d *Dispatcher) handle(sender *game.Client, tag MsgType, buf *wire.Buffer, now int64) error {
	switch tag {
	case Text:
		return d.handleText(sender, buf, now)
	case SayTeam:
		return d.handleSayTeam(sender, buf, now)
	case Pos:
		return d.handlePos(sender, buf)
	case Shoot:
		return d.handleShoot(sender, buf, now)
	case Explode:
		return d.handleExplode(sender, buf, now)
	case Suicide:
		return d.handleSuicide(sender, now)
	case TrySpawn:
		return d.handleTrySpawn(sender, now)
	case SetMaster:
		return d.handleSetMaster(sender, buf)
	case MasterMode:
		return d.handleMasterMode(sender, buf)
	case Kick:
		return d.handleKick(sender, buf)
	case Spectator:
		return d.handleSpectator(sender, buf)
	case RecordDemo:
		return d.handleRecordDemo(sender, buf)
	case StopDemo:
		return d.handleStopDemo(sender)
	case ClearDemos:
		return d.handleClearDemos(sender, buf)
	case ListDemos:
		return d.handleListDemos(sender)
	case GetDemo:
		return d.handleGetDemo(sender, buf)
	case MapCRC:
		return d.handleMapCRC(sender, buf)
	case AuthTry:
		return d.handleAuthTry(sender, buf)
	case AuthAns:
		return d.handleAuthAns(sender, buf)
	default:
		if IsEditMessage(tag) {
			return d.handleEdit(sender, tag, buf)
		}
		return skipBody(buf, tag)
	}
}

func skipBody(buf *wire.Buffer, tag MsgType) error {
	size, variable, _ := BodySize(tag)
	if variable {
		// Variable-size bodies are self-delimiting on the wire (a length
		// prefix or terminator the specific handler would consume); since
		// this dispatcher has no handler for this tag, treat the rest of
		// the packet as unparseable and drop it rather than guessing a
		// framing it doesn't own.
		buf.Skip(buf.Remaining())
		return nil
	}
	for i := 0; i < size; i++ {
		buf.GetInt()
	}
	return nil
}

func (d *Dispatcher) handleText(sender *game.Client, buf *wire.Buffer, now int64) error {
	text := wire.FilterText(buf.GetString())
	v := sender.Guards.CheckChatSpam(now, game.DefaultGuardConfig())
	if v.Drop {
		if v.Warn {
			d.sink.SendTo(sender.CN, EncodeServMsg(v.Message))
		}
		d.sink.LogDrop(sender.CN, Text, "chat spam")
		return nil
	}
	d.sink.Broadcast(sender.CN, encodeText(sender.CN, text))
	return nil
}

func (d *Dispatcher) handleSayTeam(sender *game.Client, buf *wire.Buffer, now int64) error {
	text := wire.FilterText(buf.GetString())
	v := sender.Guards.CheckChatSpam(now, game.DefaultGuardConfig())
	if v.Drop {
		d.sink.LogDrop(sender.CN, SayTeam, "chat spam")
		return nil
	}
	d.sink.Broadcast(sender.CN, encodeText(sender.CN, text))
	return nil
}

// handlePos enforces spec.md §4.3: position messages for pcn are accepted
// only from pcn itself or pcn's declared owner.
func (d *Dispatcher) handlePos(sender *game.Client, buf *wire.Buffer) error {
	pcn := buf.GetInt()
	target, ok := d.reg.Get(pcn)
	if !ok {
		return &FatalError{Reason: ReasonBadClientNum, Detail: "pos for unknown client"}
	}
	if target.Owner != sender.CN && target.CN != sender.CN {
		d.sink.LogDrop(sender.CN, Pos, "not owner of position subject")
		buf.Skip(buf.Remaining())
		return nil
	}
	target.PosBuf = append(target.PosBuf, encodePosBody(buf)...)
	return nil
}

func encodePosBody(buf *wire.Buffer) []byte {
	// Pos occupies the rest of this message's declared span; variable-size
	// messages are self-delimiting by the client's framing, so the
	// dispatcher forwards everything still unread and advances the cursor
	// past it.
	data := buf.Remainder()
	buf.Skip(len(data))
	return data
}

func (d *Dispatcher) handleShoot(sender *game.Client, buf *wire.Buffer, now int64) error {
	if !sender.State.IsAlive(now) || sender.State.State == game.StateSpectator {
		return nil
	}
	id := buf.GetInt()
	gun := buf.GetInt()
	ev := game.Event{Kind: game.EventShot, ProjectileID: id, Gun: gun, ClientMillis: now}
	nHits := buf.GetInt()
	for i := 0; i < nHits && !buf.Overread; i++ {
		target := buf.GetInt()
		lifeSeq := buf.GetInt()
		dist := float64(buf.GetInt())
		ev.Hits = append(ev.Hits, game.Hit{Target: target, LifeSeq: lifeSeq, Dist: dist})
	}
	sender.EnqueueEvent(ev)
	return nil
}

func (d *Dispatcher) handleExplode(sender *game.Client, buf *wire.Buffer, now int64) error {
	id := buf.GetInt()
	gun := buf.GetInt()
	ev := game.Event{Kind: game.EventExplode, ProjectileID: id, Gun: gun, ClientMillis: now, Keepable: true}
	sender.EnqueueEvent(ev)
	return nil
}

func (d *Dispatcher) handleSuicide(sender *game.Client, now int64) error {
	if !sender.State.IsAlive(now) {
		return nil
	}
	sender.EnqueueEvent(game.Event{Kind: game.EventSuicide, ClientMillis: now})
	return nil
}

func (d *Dispatcher) handleTrySpawn(sender *game.Client, now int64) error {
	if !game.CanTrySpawn(sender, now) {
		return nil
	}
	game.SendSpawn(sender, now, 100, 0)
	d.sink.Broadcast(-1, EncodeSpawnState(sender.CN))
	return nil
}

func (d *Dispatcher) handleSetMaster(sender *game.Client, buf *wire.Buffer) error {
	password := buf.GetString()
	res := game.ClaimMaster(d.reg, sender, password, "", "")
	if !res.OK {
		d.sink.SendTo(sender.CN, EncodeServMsg(res.Reason))
	}
	return nil
}

// handleAuthTry implements gameserver.cpp's tryauth: desc is reserved for a
// future auth domain and must be empty for this server's single external
// auth service, matching the original's `if(!desc[0]) tryauth(ci, name)`.
func (d *Dispatcher) handleAuthTry(sender *game.Client, buf *wire.Buffer) error {
	desc := buf.GetString()
	name := buf.GetString()
	if desc != "" {
		return nil
	}
	reqID := game.BeginAuthChallenge(sender)
	if d.auth == nil || !d.auth.RequestAuth(reqID, name) {
		sender.AuthReqID = 0
		d.sink.SendTo(sender.CN, EncodeServMsg("not connected to authentication server"))
	}
	return nil
}

// handleAuthAns implements gameserver.cpp's answerchallenge: forwards the
// client's response to the outstanding challenge on to the master server.
func (d *Dispatcher) handleAuthAns(sender *game.Client, buf *wire.Buffer) error {
	desc := buf.GetString()
	id := buf.GetInt()
	ans := buf.GetString()
	if desc != "" || id != sender.AuthReqID {
		return nil
	}
	if d.auth == nil || !d.auth.AnswerChallenge(id, ans) {
		sender.AuthReqID = 0
		d.sink.SendTo(sender.CN, EncodeServMsg("not connected to authentication server"))
	}
	return nil
}

func (d *Dispatcher) handleMasterMode(sender *game.Client, buf *wire.Buffer) error {
	mode := game.MasterMode(buf.GetInt())
	if err := game.ChangeMasterMode(d.reg, sender, mode); err != nil {
		d.sink.SendTo(sender.CN, EncodeServMsg(err.Error()))
	}
	return nil
}

// handleKick implements both paths of SPEC_FULL.md §10 supplement 2:
// privileged clients kick immediately (non-admin masters subject to the
// mass-kick guard), unprivileged requests are always logged and dropped.
func (d *Dispatcher) handleKick(sender *game.Client, buf *wire.Buffer) error {
	victimCN := buf.GetInt()
	_ = buf.GetString() // reason, currently only logged

	victim, ok := d.reg.Get(victimCN)
	if !ok {
		return nil
	}
	if sender.Privilege >= game.PrivMaster {
		if sender.Privilege >= game.PrivAdmin || !sender.Guards.CheckMassKick().Drop {
			d.reg.Disconnect(victim.CN)
			d.sink.Broadcast(-1, EncodeServMsg(fmt.Sprintf("%s was kicked", victim.Name)))
		}
		return nil
	}
	d.sink.LogDrop(sender.CN, Kick, "unprivileged kick request")
	return nil
}

func (d *Dispatcher) handleSpectator(sender *game.Client, buf *wire.Buffer) error {
	targetCN := buf.GetInt()
	flag := buf.GetInt()
	target, ok := d.reg.Get(targetCN)
	if !ok {
		return nil
	}
	if target.CN != sender.CN && sender.Privilege < game.PrivMaster {
		d.sink.LogDrop(sender.CN, Spectator, "insufficient privilege to spectate another client")
		return nil
	}
	if flag != 0 {
		target.State.State = game.StateSpectator
	} else if target.State.State == game.StateSpectator {
		target.State.State = game.StateDead
	}
	return nil
}

// handleRecordDemo and its siblings implement SPEC_FULL.md §10 supplement
// 4's demo trio. Starting, stopping, and clearing recordings is restricted
// to master+ the same way MasterMode changes are; listing and fetching a
// finished demo is open to any connected client, matching
// gameserver.cpp's listdemos/senddemo (no privilege check there).
func (d *Dispatcher) handleRecordDemo(sender *game.Client, buf *wire.Buffer) error {
	on := buf.GetInt() != 0
	if sender.Privilege < game.PrivMaster {
		d.sink.LogDrop(sender.CN, RecordDemo, "insufficient privilege")
		return nil
	}
	d.demos.SetRecording(on)
	return nil
}

func (d *Dispatcher) handleStopDemo(sender *game.Client) error {
	if sender.Privilege < game.PrivMaster {
		d.sink.LogDrop(sender.CN, StopDemo, "insufficient privilege")
		return nil
	}
	d.demos.SetRecording(false)
	return nil
}

func (d *Dispatcher) handleClearDemos(sender *game.Client, buf *wire.Buffer) error {
	n := buf.GetInt()
	if sender.Privilege < game.PrivMaster {
		d.sink.LogDrop(sender.CN, ClearDemos, "insufficient privilege")
		return nil
	}
	d.demos.ClearDemos(n)
	return nil
}

func (d *Dispatcher) handleListDemos(sender *game.Client) error {
	list := d.demos.ListDemos()
	if len(list) == 0 {
		d.sink.SendTo(sender.CN, EncodeServMsg("no demos recorded"))
		return nil
	}
	d.sink.SendTo(sender.CN, EncodeServMsg(strings.Join(list, "; ")))
	return nil
}

// handleGetDemo streams a finished recording's raw gzip bytes back over the
// bulk channel rather than wire-encoding them int-at-a-time, per
// gameserver.cpp's senddemo pushing the file verbatim on its own channel.
func (d *Dispatcher) handleGetDemo(sender *game.Client, buf *wire.Buffer) error {
	num := buf.GetInt()
	data, ok := d.demos.GetDemo(num)
	if !ok {
		d.sink.SendTo(sender.CN, EncodeServMsg("no such demo"))
		return nil
	}
	d.sink.SendBulk(sender.CN, data)
	return nil
}

// handleMapCRC compares a client's reported map CRC against the server's,
// warning rather than kicking on mismatch, per gameserver.cpp
// (SPEC_FULL.md §10 supplement 5). A zero d.mapCRC means no map is loaded
// yet and the check is skipped.
func (d *Dispatcher) handleMapCRC(sender *game.Client, buf *wire.Buffer) error {
	clientCRC := uint32(buf.GetInt())
	if d.mapCRC == 0 || clientCRC == d.mapCRC {
		return nil
	}
	d.sink.SendTo(sender.CN, EncodeServMsg("warning: your map file doesn't match the server's"))
	return nil
}

// handleEdit gates every edit message on the sender, per spec.md
// §4.3/§4.8: master/local/non-spectator may edit; others are silently
// dropped (tier 1). The active mode is not consulted.
func (d *Dispatcher) handleEdit(sender *game.Client, tag MsgType, buf *wire.Buffer) error {
	if sender.State.State == game.StateSpectator && sender.Privilege < game.PrivMaster && !d.local[sender.CN] {
		d.sink.LogDrop(sender.CN, tag, "spectator may not edit")
		buf.Skip(buf.Remaining())
		return nil
	}
	d.sink.Broadcast(sender.CN, encodeEdit(sender.CN, tag, buf))
	return nil
}

func encodeText(cn int, text string) []byte {
	var b wire.Buffer
	b.PutInt(int(Text))
	b.PutInt(cn)
	b.PutString(text)
	return b.Bytes()
}

// EncodeServMsg builds the server->client SV_SERVMSG informational text
// message (exported so callers outside the dispatcher, like the master-
// server auth callbacks, can report results to a client directly).
func EncodeServMsg(msg string) []byte {
	var b wire.Buffer
	b.PutInt(int(ServMsg))
	b.PutString(msg)
	return b.Bytes()
}

// EncodeAuthChal builds the server->client SV_AUTHCHAL message gameserver.cpp's
// authchallenged sends: an empty reserved desc, the outstanding request id,
// and the challenge value from the master server.
func EncodeAuthChal(reqID int, val string) []byte {
	var b wire.Buffer
	b.PutInt(int(AuthChal))
	b.PutString("")
	b.PutInt(reqID)
	b.PutString(val)
	return b.Bytes()
}

// EncodeSpawnState builds the server->client SV_SPAWNSTATE message (exported
// so callers outside the dispatcher, like a map-change respawn sweep, can
// announce a spawn without routing through a client-submitted TRYSPAWN).
func EncodeSpawnState(cn int) []byte {
	var b wire.Buffer
	b.PutInt(int(SpawnState))
	b.PutInt(cn)
	return b.Bytes()
}

// encodeEdit forwards an edit message opaquely: it does not interpret cube
// geometry (spec.md's non-goal: no map-file-format internals), it just
// re-tags the unread remainder of buf with the sender's cn and rebroadcasts
// it, consuming the remainder from buf in the process.
func encodeEdit(cn int, tag MsgType, buf *wire.Buffer) []byte {
	payload := buf.Remainder()
	buf.Skip(len(payload))

	var b wire.Buffer
	b.PutInt(int(tag))
	b.PutInt(cn)
	out := append(b.Bytes(), payload...)
	return out
}

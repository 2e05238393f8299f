// Package protocol defines the game wire protocol's message tag
// enumeration and the static msgsizes table the dispatcher uses to skip or
// reject unknown/malformed bodies, per spec.md §4.3 and §6.
package protocol

// MsgType enumerates every message tag in the game protocol.
type MsgType int

const (
	ServInfo MsgType = iota
	Welcome
	ClientConn
	Disconnect
	Text
	SayTeam
	InitClient
	Pos
	Shoot
	Explode
	Damage
	Died
	HitPush
	ShotFX
	SpawnState
	ForceDeath
	ItemList
	ItemSpawn
	ItemAcc
	TimeUp
	Resume
	Announce
	MapChange
	MapReload
	Ping
	Pong
	ClientPing
	TrySpawn
	GunSelect
	Spawn
	Suicide
	EditEnt
	EditF
	EditT
	EditM
	Flip
	Copy
	Paste
	Rotate
	Replace
	DelCube
	Remip
	NewMap
	MapCRC
	CheckMaps
	SetMaster
	MasterMode
	Kick
	ClearBans
	Spectator
	SetTeam
	ForceIntermission
	RecordDemo
	StopDemo
	ClearDemos
	ListDemos
	GetDemo
	SendDemo
	SendMap
	GetMap
	PauseGame
	AuthTry
	AuthChal
	AuthAns
	AddBot
	DelBot
	BotLimit
	BotBalance
	FromAI
	InitAI
	CDIS
	CurrentMaster
	ServMsg
	Client
	EditVar
	SwitchName
	SwitchModel
	SwitchTeam
	MapVote
	numMsgTypes
)

// bodySize is the fixed number of additional wire ints in a message body.
// -1 means variable-length (the handler itself consumes the rest);
// -2 means unknown to this server build — a fatal disconnect if seen.
const (
	variableSize = -1
	unknownSize  = -2
)

// msgsizes mirrors Sauerbraten's static per-tag body-size table: the
// dispatcher uses it to skip bodies of message kinds it doesn't specifically
// handle, and to reject tags it has never heard of.
var msgsizes = [numMsgTypes]int{
	ServInfo:           variableSize,
	Welcome:            0,
	ClientConn:         1,
	Disconnect:         1,
	Text:               variableSize,
	SayTeam:            variableSize,
	InitClient:         variableSize,
	Pos:                variableSize,
	Shoot:              variableSize,
	Explode:            variableSize,
	Damage:             5,
	Died:               3,
	HitPush:            variableSize,
	ShotFX:             variableSize,
	SpawnState:         variableSize,
	ForceDeath:         1,
	ItemList:           variableSize,
	ItemSpawn:          1,
	ItemAcc:            2,
	TimeUp:             1,
	Resume:             variableSize,
	Announce:           1,
	MapChange:          variableSize,
	MapReload:          0,
	Ping:               1,
	Pong:               1,
	ClientPing:         1,
	TrySpawn:           0,
	GunSelect:          1,
	Spawn:              variableSize,
	Suicide:            0,
	EditEnt:            variableSize,
	EditF:              variableSize,
	EditT:              variableSize,
	EditM:              variableSize,
	Flip:               variableSize,
	Copy:               variableSize,
	Paste:              variableSize,
	Rotate:             variableSize,
	Replace:            variableSize,
	DelCube:            variableSize,
	Remip:              0,
	NewMap:             1,
	MapCRC:             variableSize,
	CheckMaps:          0,
	SetMaster:          variableSize,
	MasterMode:         1,
	Kick:               variableSize,
	ClearBans:          0,
	Spectator:          2,
	SetTeam:            variableSize,
	ForceIntermission:  0,
	RecordDemo:         1,
	StopDemo:           0,
	ClearDemos:         1,
	ListDemos:          0,
	GetDemo:            1,
	SendDemo:           variableSize,
	SendMap:            variableSize,
	GetMap:             0,
	PauseGame:          1,
	AuthTry:            variableSize,
	AuthChal:           variableSize,
	AuthAns:            variableSize,
	AddBot:             1,
	DelBot:             0,
	BotLimit:           1,
	BotBalance:         1,
	FromAI:             1,
	InitAI:             variableSize,
	CDIS:               1,
	CurrentMaster:      variableSize,
	ServMsg:            variableSize,
	Client:             variableSize,
	EditVar:            variableSize,
	SwitchName:         variableSize,
	SwitchModel:        1,
	SwitchTeam:         1,
	MapVote:            variableSize,
}

// BodySize returns the fixed body size for a tag, whether it is variable, and
// whether it's a tag this server build recognizes at all.
func BodySize(t MsgType) (size int, variable bool, known bool) {
	if t < 0 || int(t) >= len(msgsizes) {
		return 0, false, false
	}
	size = msgsizes[t]
	return size, size == variableSize, true
}

// serverOnly lists tags a non-local client must never originate; seeing one
// from the wire is a fatal BadTag disconnect per spec.md §4.3.
var serverOnly = map[MsgType]bool{
	Welcome: true, Damage: true, Died: true, HitPush: true, ShotFX: true,
	SpawnState: true, ForceDeath: true, ItemList: true, ItemSpawn: true,
	ItemAcc: true, TimeUp: true, Resume: true, Announce: true, MapChange: true,
	MapReload: true, Pong: true, CDIS: true, CurrentMaster: true, ServMsg: true,
	Client: true, SendDemo: true, AuthChal: true,
}

// IsServerOnly reports whether t may only be emitted by the server.
func IsServerOnly(t MsgType) bool { return serverOnly[t] }

// editMessages require a master, local, or non-spectator sender; the active
// mode is not checked.
var editMessages = map[MsgType]bool{
	EditEnt: true, EditF: true, EditT: true, EditM: true, Flip: true,
	Copy: true, Paste: true, Rotate: true, Replace: true, DelCube: true,
	Remip: true, NewMap: true,
}

// IsEditMessage reports whether t is subject to the edit-authorization rule.
func IsEditMessage(t MsgType) bool { return editMessages[t] }

// Package modes implements the mode-plugin capability-set interface spec.md's
// Design Notes call for, restructured from the teacher's if/switch-per-mode
// win-condition branches (server/tournament.go, server/victory.go) into one
// polymorphic interface with FFA/CTF/Capture/CoopEdit implementations.
package modes

import "github.com/lab1702/skirmishd/internal/game"

// Mode is the capability set a match plugin implements, per spec.md's Design
// Notes enumeration.
type Mode interface {
	Name() string
	EnterGame(c *game.Client)
	LeaveGame(c *game.Client)
	Moved(c *game.Client, x, y, z float64)
	CanSpawn(c *game.Client) bool
	Spawned(c *game.Client)
	FragValue(actorCN, targetCN int, teamkill bool) int
	Died(target, actor *game.Client)
	CanChangeTeam(c *game.Client, to game.Team) bool
	ChangeTeam(c *game.Client, to game.Team)
	InitClient(c *game.Client)
	Update(deltaMillis int64)
	Reset()
	Intermission() bool
	HideFrags() bool
	GetTeamScore(t game.Team) int
	TeamMode() bool
}

// Base supplies the neutral defaults every mode embeds and overrides
// selectively, mirroring the teacher's pattern of a shared base ruleset with
// mode-specific overrides layered on (server/tournament.go's common scoring
// helpers reused by each mode branch).
type Base struct {
	interm bool
}

func (b *Base) Name() string                                    { return "base" }
func (b *Base) EnterGame(c *game.Client)                         {}
func (b *Base) LeaveGame(c *game.Client)                         {}
func (b *Base) Moved(c *game.Client, x, y, z float64)            {}
func (b *Base) CanSpawn(c *game.Client) bool                     { return true }
func (b *Base) Spawned(c *game.Client)                           {}
func (b *Base) FragValue(actorCN, targetCN int, teamkill bool) int {
	if actorCN == targetCN || teamkill {
		return -1
	}
	return 1
}
func (b *Base) Died(target, actor *game.Client)                  {}
func (b *Base) CanChangeTeam(c *game.Client, to game.Team) bool  { return true }
func (b *Base) ChangeTeam(c *game.Client, to game.Team)          { c.Team = to }
func (b *Base) InitClient(c *game.Client)                        {}
func (b *Base) Update(deltaMillis int64)                         {}
func (b *Base) Reset()                                           { b.interm = false }
func (b *Base) Intermission() bool                                { return b.interm }
func (b *Base) HideFrags() bool                                  { return false }
func (b *Base) GetTeamScore(t game.Team) int                     { return 0 }
func (b *Base) TeamMode() bool                                   { return false }

// FFA is a free-for-all mode with no team structure: spec.md's default.
type FFA struct{ Base }

// NewFFA constructs the free-for-all mode.
func NewFFA() *FFA { return &FFA{} }

func (m *FFA) Name() string                                 { return "ffa" }
func (m *FFA) CanChangeTeam(c *game.Client, to game.Team) bool { return false }

// CTF is capture-the-flag: two teams, flag-touch scoring, teamkills penalized
// harder than the base rule.
type CTF struct {
	Base
	scoreGood, scoreEvil int
}

// NewCTF constructs a capture-the-flag mode.
func NewCTF() *CTF { return &CTF{} }

func (m *CTF) Name() string     { return "ctf" }
func (m *CTF) TeamMode() bool   { return true }

func (m *CTF) FragValue(actorCN, targetCN int, teamkill bool) int {
	if actorCN == targetCN {
		return -1
	}
	if teamkill {
		return -2
	}
	return 1
}

// FlagCaptured is called by the dispatcher when a client returns an enemy
// flag to their own base, per the flag-capture rule CTF adds over FFA.
func (m *CTF) FlagCaptured(c *game.Client) {
	c.State.Flags++
	switch c.Team {
	case game.TeamGood:
		m.scoreGood++
	case game.TeamEvil:
		m.scoreEvil++
	}
}

func (m *CTF) GetTeamScore(t game.Team) int {
	switch t {
	case game.TeamGood:
		return m.scoreGood
	case game.TeamEvil:
		return m.scoreEvil
	default:
		return 0
	}
}

// Capture is the domination-style mode: teams hold map bases over time
// instead of carrying a flag; GetTeamScore accumulates held-time via Update.
type Capture struct {
	Base
	scoreGood, scoreEvil int
	heldByGood, heldByEvil int // number of bases currently held, set externally
}

// NewCapture constructs a base-capture mode.
func NewCapture() *Capture { return &Capture{} }

func (m *Capture) Name() string   { return "capture" }
func (m *Capture) TeamMode() bool { return true }

// SetHeld records how many bases each team currently holds (the dispatcher
// owns base-trigger geometry; this mode only accumulates score from it).
func (m *Capture) SetHeld(good, evil int) {
	m.heldByGood, m.heldByEvil = good, evil
}

func (m *Capture) Update(deltaMillis int64) {
	ticks := deltaMillis / 1000
	m.scoreGood += m.heldByGood * int(ticks)
	m.scoreEvil += m.heldByEvil * int(ticks)
}

func (m *Capture) GetTeamScore(t game.Team) int {
	switch t {
	case game.TeamGood:
		return m.scoreGood
	case game.TeamEvil:
		return m.scoreEvil
	default:
		return 0
	}
}

// CoopEdit is the cooperative map-editing mode (SPEC_FULL.md §10 supplement
// 1, from gameserver.h's m_edit/m_coop flags): every client may always
// spawn, and frags are worth 0 and hidden. Damage is still processed as in
// the other modes.
type CoopEdit struct{ Base }

// NewCoopEdit constructs the cooperative-edit mode.
func NewCoopEdit() *CoopEdit { return &CoopEdit{} }

func (m *CoopEdit) Name() string                                   { return "coopedit" }
func (m *CoopEdit) CanSpawn(c *game.Client) bool                    { return true }
func (m *CoopEdit) FragValue(actorCN, targetCN int, teamkill bool) int { return 0 }
func (m *CoopEdit) HideFrags() bool                                 { return true }

// NewByName constructs the mode plugin named by a map vote's Mode field or
// the MapVote protocol message, falling back to FFA for an empty or
// unrecognized name rather than rejecting the vote outright.
func NewByName(name string) Mode {
	switch name {
	case "ctf":
		return NewCTF()
	case "capture":
		return NewCapture()
	case "coopedit":
		return NewCoopEdit()
	default:
		return NewFFA()
	}
}

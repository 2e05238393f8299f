package game

// FragMode lets a mode plugin override the default ±1 frag value, per
// spec.md §4.4 ("mode plugin may override") and the Design Notes'
// capability-set polymorphism.
type FragMode interface {
	FragValue(actorCN, targetCN int, teamkill bool) int
}

// DefaultFragMode is the neutral FFA scoring rule: -1 on self/teamkill, +1 otherwise.
type DefaultFragMode struct{}

func (DefaultFragMode) FragValue(actorCN, targetCN int, teamkill bool) int {
	if actorCN == targetCN || teamkill {
		return -1
	}
	return 1
}

// DeathEvent is what the worldstate builder needs to announce a kill.
type DeathEvent struct {
	Target, Actor   int
	ActorFrags      int
	FirstBlood      bool
	MultiFragCount  int   // actor's current multi-frag streak count (1 on a fresh streak)
	SpreeEnded      bool
	SpreeEndSelf    bool
	SpreeCount      int
	SpreeEndedName  string
}

// MinSpreeFrags and MultiFragMillis are the tunables spec.md §4.4/§8 name.
const (
	MinSpreeFrags   = 5
	MultiFragMillis = 2000
	MinMultiKill    = 2
)

// Match carries the process-scoped first-blood flag and mode plugin.
type Match struct {
	FirstBloodFired bool
	Mode            FragMode
}

// NewMatch creates a Match with the neutral FFA frag rule.
func NewMatch() *Match {
	return &Match{Mode: DefaultFragMode{}}
}

// OnDeath applies spec.md §4.4's "on death" rules: frag/death counters,
// effectiveness, killstreak bookkeeping, and first blood, then marks the
// target dead. It does not auto-respawn — the client must send TrySpawn
// after DeathMillis (spec.md §4.4). active is the current client roster,
// needed to weigh effectiveness by team composition.
func (m *Match) OnDeath(target, actor *Client, teamkill bool, active []*Client, nowGameMillis int64) DeathEvent {
	target.State.Deaths++
	fv := m.Mode.FragValue(actor.CN, target.CN, teamkill)
	actor.State.Frags += fv

	ev := DeathEvent{Target: target.CN, Actor: actor.CN, ActorFrags: actor.State.Frags}

	if !m.FirstBloodFired && actor.CN != target.CN {
		m.FirstBloodFired = true
		ev.FirstBlood = true
	}

	// Effectiveness only moves on a scoring frag, weighted by how many
	// teammates (friends, including the fragger) versus opponents (enemies)
	// shared the server at the moment of the kill, per
	// original_source/gameserver.cpp's dodamage friends/enemies loop.
	if fv > 0 {
		friends, enemies := teamWeights(actor, active)
		actor.State.Effectiveness += float64(fv) * friends / maxF(enemies, 1)
	}

	if actor.CN != target.CN {
		if actor.State.LastFragMillis != 0 && nowGameMillis-actor.State.LastFragMillis < MultiFragMillis {
			actor.State.MultiFrags++
		} else {
			actor.State.MultiFrags = 1
		}
		actor.State.LastFragMillis = nowGameMillis
		actor.State.SpreeFrags++
	}
	ev.MultiFragCount = actor.State.MultiFrags

	if target.State.SpreeFrags >= MinSpreeFrags {
		ev.SpreeEnded = true
		ev.SpreeCount = target.State.SpreeFrags
		ev.SpreeEndSelf = actor.CN == target.CN
		ev.SpreeEndedName = target.Name
	}
	target.State.SpreeFrags = 0
	target.State.MultiFrags = 0

	target.State.State = StateDead
	target.State.LastDeath = nowGameMillis
	target.ClearNonKeepableEvents()

	return ev
}

// teamWeights counts friends (teammates, including actor) and enemies among
// active for a team-mode match, or returns the FFA weights (1 friend, every
// other connected client an enemy) when actor has no team.
func teamWeights(actor *Client, active []*Client) (friends, enemies float64) {
	if actor.Team == 0 {
		if len(active) > 1 {
			enemies = float64(len(active) - 1)
		}
		return 1, enemies
	}
	for _, c := range active {
		if c.Team == actor.Team {
			friends++
		} else {
			enemies++
		}
	}
	return friends, enemies
}

// CheckMultiFragExpiry is called from the tick loop (spec.md §5: "evaluates
// killstreak expiry"); when a streak goes quiet for MultiFragMillis, it
// fires the "multi-kill" announcement if the count reached MinMultiKill,
// then resets the counter to 0 so the same streak isn't announced twice.
func CheckMultiFragExpiry(c *Client, nowGameMillis int64) (announce bool, count int) {
	if c.State.MultiFrags == 0 || c.State.LastFragMillis == 0 {
		return false, 0
	}
	if nowGameMillis-c.State.LastFragMillis < MultiFragMillis {
		return false, 0
	}
	count = c.State.MultiFrags
	c.State.MultiFrags = 0
	if count >= MinMultiKill {
		return true, count
	}
	return false, 0
}

// CanTrySpawn reports whether enough time has passed since death for a
// TrySpawn request to be honored (spec.md §4.4: "after DEATHMILLIS").
func CanTrySpawn(c *Client, nowGameMillis int64) bool {
	if c.State.State != StateDead {
		return false
	}
	return nowGameMillis-c.State.LastDeath >= DeathMillis
}

// SendSpawn assigns a new life sequence, initial loadout, and records the
// spawn time — the only path that moves a client back to Alive.
func SendSpawn(c *Client, nowGameMillis int64, health, armour int) {
	c.State.NextLifeSequence()
	c.State.State = StateAlive
	c.State.Health = health
	c.State.MaxHealth = health
	c.State.Armour = armour
	c.State.Gun = GunPistol
	c.State.LastSpawn = nowGameMillis
	c.State.LastSpawnAttempt = nowGameMillis
}

package game

import "math/rand"

// Item types, per spec.md §4.5.
const (
	ItemAmmo = iota
	ItemHealth
	ItemArmour
	ItemBoost
	ItemQuad
)

// ItemEngine owns the dense entity vector and respawn scheduling, grounded
// on the teacher's per-slot respawn-timer pattern in server/planets.go.
type ItemEngine struct {
	Entities []ServerEntity
}

// NewItemEngine builds an item engine for a map's static entity table.
func NewItemEngine(entityTypes []int) *ItemEngine {
	ents := make([]ServerEntity, len(entityTypes))
	for i, t := range entityTypes {
		ents[i] = ServerEntity{Type: t, Spawned: true}
	}
	return &ItemEngine{Entities: ents}
}

// spawnBand caps player count into the bands spec.md §4.5 names.
func spawnBand(np int) int {
	switch {
	case np <= 2:
		return 2
	case np == 3:
		return 3
	default:
		return 4
	}
}

// baseDelayMillis returns the item-type-specific base respawn delay for the
// given (banded) player count, per spec.md §4.5.
func baseDelayMillis(itemType, np int) (base int64, band int64) {
	n := int64(spawnBand(np))
	switch itemType {
	case ItemAmmo:
		return 4 * n * 1000, 0
	case ItemHealth:
		return 5 * n * 1000, 0
	case ItemArmour:
		return 20 * 1000, 0
	case ItemBoost, ItemQuad:
		return 40 * 1000, 40 * 1000
	default:
		return 10 * 1000, 0
	}
}

// ArmSpawnTimer sets a slot's respawn countdown after pickup, per spec.md §4.5.
func (e *ItemEngine) ArmSpawnTimer(idx, playerCount int, rng *rand.Rand) {
	ent := &e.Entities[idx]
	base, band := baseDelayMillis(ent.Type, playerCount)
	delay := base
	if band > 0 {
		delay += int64(rng.Float64() * float64(band))
	}
	ent.SpawnDelay = delay
	ent.announced = false
}

// PickupResult is returned by TryPickup.
type PickupResult struct {
	OK       bool
	Type     int
	Announce bool // true if this is the "armed" moment to broadcast ItemAcc
}

// TryPickup implements spec.md §4.5's race rule: first client to send a
// plausible pickup wins; subsequent claims against a currently-despawned
// slot fail silently. NoPickup guards the same tick against a second
// concurrent claim landing before Spawned flips.
func (e *ItemEngine) TryPickup(idx int, playerCount int, rng *rand.Rand) PickupResult {
	if idx < 0 || idx >= len(e.Entities) {
		return PickupResult{}
	}
	ent := &e.Entities[idx]
	if !ent.Spawned || ent.NoPickup {
		return PickupResult{}
	}
	ent.Spawned = false
	ent.NoPickup = true
	e.ArmSpawnTimer(idx, playerCount, rng)
	return PickupResult{OK: true, Type: ent.Type, Announce: true}
}

// TickResult names slots whose timers expired (ItemSpawn to broadcast) or
// whose countdown crossed the 10s powerup-announce threshold this tick.
type TickResult struct {
	Spawned       []int
	PowerupWarned []int
}

// Tick advances every armed slot's countdown by deltaMillis, per spec.md §5
// ("advances item spawn timers").
func (e *ItemEngine) Tick(deltaMillis int64) TickResult {
	var res TickResult
	for i := range e.Entities {
		ent := &e.Entities[i]
		if ent.Spawned {
			continue
		}
		ent.SpawnDelay -= deltaMillis
		if (ent.Type == ItemBoost || ent.Type == ItemQuad) && !ent.announced && ent.SpawnDelay <= 10*1000 && ent.SpawnDelay > 0 {
			ent.announced = true
			res.PowerupWarned = append(res.PowerupWarned, i)
		}
		if ent.SpawnDelay <= 0 {
			ent.Spawned = true
			ent.NoPickup = false
			res.Spawned = append(res.Spawned, i)
		}
	}
	return res
}

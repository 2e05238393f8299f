package game

import "math"

// DamageResult is what ProcessEvent hands back per hit, ready
// for the worldstate builder to broadcast as Damage/HitPush/Died messages.
type DamageResult struct {
	Target       int
	Damage       int
	ArmourAfter  int
	HealthAfter  int
	Push         [3]float64
	HasPush      bool
	Died         bool
	Actor        int
}

// deriveDamage re-derives a single hit's damage server-side, per spec.md
// §4.4 step 2: base damage from the gun table × quad multiplier × (for
// shotgun) ray count, with rocket/grenade distance attenuation and a
// self-damage divisor. Clients never dictate the number — this is the
// invariant spec.md §8 tests directly.
func deriveDamage(gun int, dist float64, quadActive bool, selfHit bool) int {
	stats := GunData[gun]
	base := float64(stats.Damage)

	if stats.Rays > 0 {
		rays := stats.Rays
		if rays > SGRays {
			rays = SGRays
		}
		base *= float64(rays)
	}

	if stats.Splash {
		maxDist := RLDistScale * RLDamRad
		atten := 1 - dist/maxDist
		if atten < 0 {
			atten = 0
		}
		base *= atten
	}

	if quadActive {
		base *= QuadMultiplier
	}

	if selfHit && stats.Splash {
		base /= RLSelfDamDiv
	}

	return int(math.Round(base))
}

// ProcessEvent runs the full damage-arbitration pipeline for one Shot or
// Explode event from actor against the current registry, per spec.md §4.4
// steps 1-5. now is the server-reconciled game clock in millis.
//
// The spectator gate is checked at entry (spec.md §9's correctness note: the
// original checks this after damage math in places; a correct rewrite gates
// at entry).
func ProcessEvent(reg *Registry, actorCN int, ev *Event, now int64, quadByClient func(cn int) bool) []DamageResult {
	actor, ok := reg.Get(actorCN)
	if !ok {
		return nil
	}
	if actor.State.State == StateSpectator {
		return nil
	}
	if !actor.State.IsAlive(now) {
		return nil
	}

	switch ev.Kind {
	case EventShot:
		return processShot(reg, actor, ev, now, quadByClient)
	case EventExplode:
		return processExplode(reg, actor, ev, now, quadByClient)
	default:
		return nil
	}
}

func processShot(reg *Registry, actor *Client, ev *Event, now int64, quadByClient func(cn int) bool) []DamageResult {
	// gunwait: at most one shot of this gun per its cooldown, matching
	// spec.md §4.4 step 1.
	stats := GunData[ev.Gun]
	if actor.State.LastShot != 0 && now-actor.State.LastShot < stats.GunWait.Milliseconds() {
		return nil
	}
	actor.State.LastShot = now

	if stats.Splash {
		actor.State.Grenades.Add(ev.ProjectileID)
		if ev.Gun == GunRocket {
			actor.State.Rockets.Add(ev.ProjectileID)
		}
	}

	results := dedupeHits(ev.Hits)
	quadActive := quadByClient(actor.CN)

	var out []DamageResult
	for _, h := range results {
		target, ok := reg.Get(h.Target)
		if !ok {
			continue
		}
		if !validHit(target, h, now) {
			continue
		}
		selfHit := target.CN == actor.CN
		dmg := deriveDamage(ev.Gun, h.Dist, quadActive, selfHit)
		out = append(out, applyDamage(target, actor, dmg, h))
	}
	return out
}

func processExplode(reg *Registry, actor *Client, ev *Event, now int64, quadByClient func(cn int) bool) []DamageResult {
	var ring *RingBuffer8
	if ev.Gun == GunRocket {
		ring = &actor.State.Rockets
	} else {
		ring = &actor.State.Grenades
	}
	// Unmatched explode (replay/forgery) is ignored per spec.md §4.4 step 2/3.
	if !ring.Take(ev.ProjectileID) {
		return nil
	}

	hits := dedupeHits(ev.Hits)
	quadActive := quadByClient(actor.CN)

	var out []DamageResult
	for _, h := range hits {
		target, ok := reg.Get(h.Target)
		if !ok {
			continue
		}
		if !validHit(target, h, now) {
			continue
		}
		selfHit := target.CN == actor.CN
		dmg := deriveDamage(ev.Gun, h.Dist, quadActive, selfHit)
		out = append(out, applyDamage(target, actor, dmg, h))
	}
	return out
}

// dedupeHits keeps at most one entry per target, per spec.md §4.4 step 3.
func dedupeHits(hits []Hit) []Hit {
	seen := make(map[int]bool, len(hits))
	out := hits[:0:0]
	for _, h := range hits {
		if seen[h.Target] {
			continue
		}
		seen[h.Target] = true
		out = append(out, h)
	}
	return out
}

// validHit enforces step 4: target must be alive and life sequence must match.
func validHit(target *Client, h Hit, now int64) bool {
	if !target.State.IsAlive(now) {
		return false
	}
	if target.State.LifeSequence != h.LifeSeq {
		return false
	}
	return true
}

func applyDamage(target, actor *Client, dmg int, h Hit) DamageResult {
	if dmg < 0 {
		dmg = 0
	}
	armourAfter := target.State.Armour
	healthAfter := target.State.Health
	if target.State.Armour > 0 {
		absorbed := dmg
		if absorbed > target.State.Armour {
			absorbed = target.State.Armour
		}
		armourAfter = target.State.Armour - absorbed
		healthAfter -= dmg - absorbed
	} else {
		healthAfter -= dmg
	}
	if healthAfter < 0 {
		healthAfter = 0
	}
	target.State.Armour = armourAfter
	target.State.Health = healthAfter
	target.State.ReceivedDamage += dmg
	actor.State.ShotDamage += dmg

	died := healthAfter <= 0 && target.State.State != StateDead

	res := DamageResult{
		Target:      target.CN,
		Damage:      dmg,
		ArmourAfter: armourAfter,
		HealthAfter: healthAfter,
		Actor:       actor.CN,
		Died:        died,
	}
	if h.HasPush {
		res.Push = h.PushVec
		res.HasPush = true
	}
	return res
}

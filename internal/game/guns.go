package game

import "time"

// Gun identifiers, matching the classic Cube2 weapon set.
const (
	GunFist = iota
	GunShotgun
	GunChaingun
	GunRocket
	GunRifle
	GunGrenade
	GunPistol
	NumGuns
)

// Damage/ballistics constants from spec.md §4.4.
const (
	SGRays          = 20  // shotgun rays per shot
	RLDistScale     = 1.5 // rocket/grenade distance-attenuation scale
	RLDamRad        = 2.0 // rocket/grenade damage radius multiplier
	RLSelfDamDiv    = 2   // self-damage divisor for own splash weapons
	QuadMultiplier  = 4
)

// GunStats holds the server-side truth for a weapon: other than what's
// needed to re-derive damage, everything else (fire sound, model) is a
// client-rendering concern out of scope per spec.md §1.
type GunStats struct {
	Name       string
	Damage     int           // base damage per hit (per-ray for shotgun)
	GunWait    time.Duration // minimum interval between shots
	Splash     bool          // distance-attenuated, subject to self-damage divisor
	Rays       int           // 0 for single-hit guns, SGRays for shotgun
}

// GunData is the server's weapon table, grounded in spec.md §4.4's formula
// list (base damage × quad × ray/distance factors, capped at SGRays).
var GunData = [NumGuns]GunStats{
	GunFist:     {Name: "fist", Damage: 50, GunWait: 250 * time.Millisecond},
	GunShotgun:  {Name: "shotgun", Damage: 10, GunWait: 1000 * time.Millisecond, Rays: SGRays},
	GunChaingun: {Name: "chaingun", Damage: 30, GunWait: 100 * time.Millisecond},
	GunRocket:   {Name: "rocket", Damage: 120, GunWait: 800 * time.Millisecond, Splash: true},
	GunRifle:    {Name: "rifle", Damage: 100, GunWait: 1400 * time.Millisecond},
	GunGrenade:  {Name: "grenade", Damage: 100, GunWait: 600 * time.Millisecond, Splash: true},
	GunPistol:   {Name: "pistol", Damage: 20, GunWait: 300 * time.Millisecond},
}

package game

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// ClaimResult is returned by ClaimMaster/ClaimAdmin.
type ClaimResult struct {
	OK      bool
	Reason  string
	Granted Privilege
}

// claimHash computes hash(cn || " " || sessionId || " " || password), the
// form spec.md §4.9 requires for a password-bearing master/admin claim: the
// client hashes its own cn and per-connection session token into the
// password before sending it, so the raw secret never crosses the wire
// twice the same way. The server recomputes the same hash over each
// candidate configured password and compares digests.
func claimHash(cn, sessionID int, password string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d %d %s", cn, sessionID, password)))
	return hex.EncodeToString(sum[:])
}

// ClaimMaster implements spec.md §4.9's unauthenticated claim: the first
// client to claim while no master is online becomes master; password-bearing
// claims check against the configured master password instead. On a
// password match, any other client currently holding master or admin is
// demoted back to PrivNone before the caller is promoted.
func ClaimMaster(reg *Registry, c *Client, password, masterPassword, adminPassword string) ClaimResult {
	if c.Privilege >= PrivAdmin {
		return ClaimResult{OK: false, Reason: "already admin"}
	}
	if password != "" {
		switch {
		case adminPassword != "" && password == claimHash(c.CN, c.SessionID, adminPassword):
			demoteOtherMasters(reg, c)
			c.Privilege = PrivAdmin
			return ClaimResult{OK: true, Granted: PrivAdmin}
		case masterPassword != "" && password == claimHash(c.CN, c.SessionID, masterPassword):
			demoteOtherMasters(reg, c)
			c.Privilege = PrivMaster
			return ClaimResult{OK: true, Granted: PrivMaster}
		default:
			return ClaimResult{OK: false, Reason: "invalid password"}
		}
	}
	if anyMasterOnline(reg) {
		return ClaimResult{OK: false, Reason: "another client already claimed master"}
	}
	c.Privilege = PrivMaster
	return ClaimResult{OK: true, Granted: PrivMaster}
}

// demoteOtherMasters drops every other client currently holding PrivMaster
// or PrivAdmin back to PrivNone, per spec.md §4.9's "on match: revoke
// others' master, promote caller to Admin."
func demoteOtherMasters(reg *Registry, caller *Client) {
	for _, other := range reg.Active() {
		if other.CN != caller.CN && other.Privilege >= PrivMaster {
			other.Privilege = PrivNone
		}
	}
}

func anyMasterOnline(reg *Registry) bool {
	for _, c := range reg.Active() {
		if c.Privilege >= PrivMaster {
			return true
		}
	}
	return false
}

// Unclaim drops a client back to PrivNone (the "relinquish" path spec.md
// §4.9 implies by symmetry with ClaimMaster).
func Unclaim(c *Client) { c.Privilege = PrivNone }

// ChangeMasterMode implements spec.md §4.9's authorization rule: only
// PrivMaster or PrivAdmin may change mastermode, and entering Private
// repopulates the allow-list from currently connected IPs.
func ChangeMasterMode(reg *Registry, c *Client, mode MasterMode) error {
	if c.Privilege < PrivMaster {
		return fmt.Errorf("insufficient privilege to change mastermode")
	}
	if mode == MMPrivate {
		reg.EnterPrivateMode()
		return nil
	}
	reg.MasterMode = mode
	return nil
}

// BeginAuthChallenge issues a fresh zero-knowledge auth request ID for the
// external auth service round trip (spec.md §6's `chalauth`/`succauth`
// master-server verbs, mirrored here for the in-game `/auth` path).
func BeginAuthChallenge(c *Client) int {
	var b [4]byte
	_, _ = rand.Read(b[:])
	id := int(binary.LittleEndian.Uint32(b[:])&0x7fffffff) | 1
	c.AuthReqID = id
	return id
}

// FindByAuthReq returns the client currently awaiting reqID's challenge, the
// counterpart to BeginAuthChallenge for routing the master server's
// chalauth/succauth/failauth callbacks back to the right connection.
func FindByAuthReq(reg *Registry, reqID int) (*Client, bool) {
	for _, c := range reg.Active() {
		if c.AuthReqID == reqID {
			return c, true
		}
	}
	return nil, false
}

// CompleteAuthChallenge grants PrivAdmin if reqID matches the outstanding
// challenge and clears it either way (single-use, like the original
// zero-knowledge handshake).
func CompleteAuthChallenge(c *Client, reqID int, ok bool) bool {
	if c.AuthReqID == 0 || reqID != c.AuthReqID {
		return false
	}
	c.AuthReqID = 0
	if ok {
		c.Privilege = PrivAdmin
	}
	return ok
}

// AutoSpectateUnderLocked implements SPEC_FULL.md §10 supplement 6: a
// newly-connecting non-privileged client is forced to StateSpectator while
// mastermode is Locked.
func AutoSpectateUnderLocked(reg *Registry, c *Client) {
	if reg.MasterMode == MMLocked && c.Privilege == PrivNone {
		c.State.State = StateSpectator
	}
}

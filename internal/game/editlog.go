package game

// EditRecord is one captured edit message, queued for worldstate playback to
// late joiners and spectators entering mid-edit, per spec.md §4.8's closing
// paragraph ("the server retains a rolling log of edit messages so a newly
// connecting client can be brought up to the current map state").
type EditRecord struct {
	From    int
	Tag     int
	Payload []byte
}

// MaxEditLog bounds the rolling log; beyond this the oldest edits are
// dropped since a full map resync (NewMap) supersedes incremental replay
// anyway.
const MaxEditLog = 4096

// EditLog accumulates edit messages for the current map and replays them to
// clients that join mid-edit.
type EditLog struct {
	records []EditRecord
}

// Append records one edit message, evicting the oldest if MaxEditLog is
// exceeded.
func (l *EditLog) Append(r EditRecord) {
	l.records = append(l.records, r)
	if len(l.records) > MaxEditLog {
		l.records = l.records[len(l.records)-MaxEditLog:]
	}
}

// Reset clears the log (called on NewMap/MapChange — a fresh map has no
// incremental edit history to replay).
func (l *EditLog) Reset() { l.records = nil }

// Replay returns every recorded edit in order, for a client that needs the
// whole history (spectator or late joiner in edit mode).
func (l *EditLog) Replay() []EditRecord {
	out := make([]EditRecord, len(l.records))
	copy(out, l.records)
	return out
}

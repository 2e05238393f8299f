package game

import "hash/crc32"

// MapInfo is the loaded static description of the current map: its entity
// spawn table and a CRC computed over the map file bytes, used for the
// CheckMaps/MapCRC mismatch-warning path (SPEC_FULL.md §10 supplement 5).
type MapInfo struct {
	Name    string
	CRC     uint32
	Entities *ItemEngine
}

// LoadMap computes the map's CRC and constructs its item engine from the
// entity-type table parsed from the map file, grounded on gameserver.cpp's
// map-load-time CRC precompute (original_source).
func LoadMap(name string, fileBytes []byte, entityTypes []int) *MapInfo {
	return &MapInfo{
		Name:     name,
		CRC:      crc32.ChecksumIEEE(fileBytes),
		Entities: NewItemEngine(entityTypes),
	}
}

// CheckCRC compares a client-submitted CRC against the server's; a mismatch
// is a warning, not a kick, per gameserver.cpp (SPEC_FULL.md §10 supplement 5).
func (m *MapInfo) CheckCRC(clientCRC uint32) (ok bool) {
	return clientCRC == m.CRC
}

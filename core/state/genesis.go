package state

var genesisKey = []byte("meta/genesis-applied")

// GenesisApplied reports whether the one-time genesis allocation already ran
// against this database.
func (m *Manager) GenesisApplied() (bool, error) {
	var applied bool
	ok, err := m.KVGet(genesisKey, &applied)
	if err != nil {
		return false, err
	}
	return ok && applied, nil
}

// SetGenesisApplied marks the database as carrying the genesis allocation.
func (m *Manager) SetGenesisApplied() error {
	return m.KVPut(genesisKey, true)
}

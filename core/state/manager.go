package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"xvfi/storage"
)

// Manager exposes a deterministic key/value view over the backing database.
// Keys are hashed before hitting storage and values travel as RLP so the
// on-disk layout stays stable across releases.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the RLP encoding of value under the supplied key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	if len(key) == 0 {
		return fmt.Errorf("state: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state: manager unavailable")
	}
	if len(key) == 0 {
		return false, fmt.Errorf("state: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the entry stored under the supplied key. Deleting a missing
// key is not an error.
func (m *Manager) KVDelete(key []byte) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	if len(key) == 0 {
		return fmt.Errorf("state: key must not be empty")
	}
	return m.db.Delete(kvKey(key))
}

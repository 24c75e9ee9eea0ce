package cache

import "sync"

// MemStore is an in-memory StoreProvider, mainly useful for tests and
// for running without persistent storage.
type MemStore struct {
	mutex *sync.RWMutex
	db    map[string]map[string][]byte
}

func NewMemStore() MemStore {
	return MemStore{
		mutex: &sync.RWMutex{},
		db:    make(map[string]map[string][]byte),
	}
}

func (m MemStore) Open(version string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.db[version]; !ok {
		m.db[version] = make(map[string][]byte)
	}
	return nil
}

func (m MemStore) Get(version, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	store, ok := m.db[version]
	if !ok {
		return nil, false, nil
	}
	bytes, ok := store[key]
	return bytes, ok, nil
}

func (m MemStore) Put(version, key string, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	store, ok := m.db[version]
	if !ok {
		store = make(map[string][]byte)
		m.db[version] = store
	}
	store[key] = bytes
	return nil
}

func (m MemStore) Versions() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	versions := make([]string, 0, len(m.db))
	for v := range m.db {
		versions = append(versions, v)
	}
	return versions, nil
}

func (m MemStore) DeleteVersion(version string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, version)
	return nil
}

func (m MemStore) Close() error {
	return nil
}

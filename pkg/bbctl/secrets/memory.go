package secrets

// Memory is an in-memory Backend used by tests and non-persistent runs.
type Memory struct {
	entries map[string]string
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]string{}}
}

func (m *Memory) Set(namespace, key, value string) error {
	m.entries[namespace+"/"+key] = value
	return nil
}

func (m *Memory) Get(namespace, key string) (string, bool, error) {
	value, found := m.entries[namespace+"/"+key]
	return value, found, nil
}

func (m *Memory) Delete(namespace, key string) error {
	delete(m.entries, namespace+"/"+key)
	return nil
}

func (m *Memory) Description() string { return "in-memory" }

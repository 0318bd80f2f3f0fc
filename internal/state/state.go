package state

// State caches the persisted mapping in memory and writes it through the
// Storage on every mutation. It is owned by a single goroutine (the pipeline
// loop) and is not safe for concurrent use.
type State struct {
	storage Storage
	values  map[string]string
}

// New loads the current mapping from storage. A missing backing file yields
// empty state; any other storage failure is returned.
func New(storage Storage) (*State, error) {
	values, err := storage.Retrieve()
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = map[string]string{}
	}
	return &State{storage: storage, values: values}, nil
}

func (s *State) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set updates the key and synchronously persists the entire mapping. The
// in-memory value is only updated once the write succeeded.
func (s *State) Set(key, value string) error {
	next := make(map[string]string, len(s.values)+1)
	for k, v := range s.values {
		next[k] = v
	}
	next[key] = value

	if err := s.storage.Save(next); err != nil {
		return err
	}
	s.values = next
	return nil
}

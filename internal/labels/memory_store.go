package labels

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]Label
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]Label)}
}

func (s *MemoryStore) Get(_ context.Context, url string) ([]Label, error) {
	if err := checkURL(url); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Label{}, s.data[Key(url)]...), nil
}

func (s *MemoryStore) Save(_ context.Context, url string, labels []Label) error {
	if err := checkURL(url); err != nil {
		return err
	}
	if err := checkAll(labels); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[Key(url)] = append([]Label{}, labels...)
	return nil
}

func (s *MemoryStore) Add(_ context.Context, url string, label Label) ([]Label, error) {
	if err := checkURL(url); err != nil {
		return nil, err
	}
	if err := label.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := Key(url)
	s.data[k] = append(s.data[k], label)
	return append([]Label{}, s.data[k]...), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

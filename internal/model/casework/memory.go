package casework

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Used when no database is configured.
type MemoryStore struct {
	mu           sync.RWMutex
	complaints   []Complaint
	applications []Application
	now          func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) CreateComplaint(_ context.Context, c *Complaint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = int64(len(s.complaints) + 1)
	c.CreatedAt = s.now().UTC()
	s.complaints = append(s.complaints, *c)
	return nil
}

func (s *MemoryStore) ListComplaints(_ context.Context) ([]Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Complaint, 0, len(s.complaints))
	for i := len(s.complaints) - 1; i >= 0; i-- {
		out = append(out, s.complaints[i])
	}
	return out, nil
}

func (s *MemoryStore) GetComplaint(_ context.Context, id int64) (Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id < 1 || id > int64(len(s.complaints)) {
		return Complaint{}, ErrNotFound
	}
	return s.complaints[id-1], nil
}

func (s *MemoryStore) UpdateComplaintStatus(_ context.Context, id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < 1 || id > int64(len(s.complaints)) {
		return ErrNotFound
	}
	s.complaints[id-1].Status = status
	return nil
}

func (s *MemoryStore) CreateApplication(_ context.Context, a *Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = int64(len(s.applications) + 1)
	a.CreatedAt = s.now().UTC()
	s.applications = append(s.applications, *a)
	return nil
}

func (s *MemoryStore) ListApplications(_ context.Context) ([]Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Application, 0, len(s.applications))
	for i := len(s.applications) - 1; i >= 0; i-- {
		out = append(out, s.applications[i])
	}
	return out, nil
}

func (s *MemoryStore) GetApplication(_ context.Context, id int64) (Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id < 1 || id > int64(len(s.applications)) {
		return Application{}, ErrNotFound
	}
	return s.applications[id-1], nil
}

func (s *MemoryStore) UpdateApplicationStatus(_ context.Context, id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < 1 || id > int64(len(s.applications)) {
		return ErrNotFound
	}
	s.applications[id-1].Status = status
	return nil
}

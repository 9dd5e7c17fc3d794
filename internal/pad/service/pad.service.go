package service

import (
	"errors"
	"sort"
	"sync"
	"time"

	"scratchpad/internal/pad/model"
	"scratchpad/internal/pad/repository"
	"scratchpad/pkg/logger"
)

var ErrPadNotFound = errors.New("pad not found")

const flushInterval = 10 * time.Second

// PadStore is the durable document store. The in-memory map is the
// canonical live view; Postgres is written through on every mutation
// and is the only thing that survives a restart. A failed write marks
// the pad dirty and is retried by the flush worker, so a broken
// database connection degrades durability but never the live view.
type PadStore struct {
	repo *repository.PadRepository

	mu    sync.Mutex
	pads  map[string]*model.Pad
	dirty map[string]bool
}

// NewPadStore loads every persisted pad into memory so the map is the
// complete view from the first request on.
func NewPadStore(repo *repository.PadRepository) (*PadStore, error) {
	persisted, err := repo.LoadAll()
	if err != nil {
		return nil, err
	}

	pads := make(map[string]*model.Pad, len(persisted))
	for _, p := range persisted {
		pad := p
		pads[pad.ID] = &pad
	}

	return &PadStore{
		repo:  repo,
		pads:  pads,
		dirty: make(map[string]bool),
	}, nil
}

// Get returns the pad for id, creating an empty one if it has never
// been seen. Unknown ids are never an error.
func (s *PadStore) Get(id string) model.Pad {
	s.mu.Lock()
	if p, ok := s.pads[id]; ok {
		cp := *p
		s.mu.Unlock()
		return cp
	}

	now := time.Now().UTC()
	p := &model.Pad{ID: id, Content: "", CreatedAt: now, LastModified: now}
	s.pads[id] = p
	s.dirty[id] = true
	cp := *p
	s.mu.Unlock()

	s.Persist(cp)
	return cp
}

// Put replaces the pad's content and writes it through, last write
// wins. The in-memory update always succeeds even when the database
// write fails.
func (s *PadStore) Put(id, content string) model.Pad {
	p := s.Apply(id, content)
	s.Persist(p)
	return p
}

// Apply updates only the in-memory view and marks the pad dirty; the
// caller (or failing that, the flush worker) persists the returned
// snapshot. It never touches the database, so the hub can call it
// while holding its own lock. lastModified is wall-clock time clamped
// so it never moves backwards for a given id.
func (s *PadStore) Apply(id, content string) model.Pad {
	s.mu.Lock()
	now := time.Now().UTC()
	p, ok := s.pads[id]
	if !ok {
		p = &model.Pad{ID: id, CreatedAt: now}
		s.pads[id] = p
	}
	if now.Before(p.LastModified) {
		now = p.LastModified
	}
	p.Content = content
	p.LastModified = now
	s.dirty[id] = true
	cp := *p
	s.mu.Unlock()
	return cp
}

func (s *PadStore) List() []model.PadMetadata {
	s.mu.Lock()
	metas := make([]model.PadMetadata, 0, len(s.pads))
	for _, p := range s.pads {
		metas = append(metas, model.PadMetadata{ID: p.ID, LastModified: p.LastModified, CreatedAt: p.CreatedAt})
	}
	s.mu.Unlock()

	sort.Slice(metas, func(i, j int) bool {
		if metas[i].LastModified.Equal(metas[j].LastModified) {
			return metas[i].ID < metas[j].ID
		}
		return metas[i].LastModified.After(metas[j].LastModified)
	})
	return metas
}

func (s *PadStore) Delete(id string) error {
	s.mu.Lock()
	if _, ok := s.pads[id]; !ok {
		s.mu.Unlock()
		return ErrPadNotFound
	}
	delete(s.pads, id)
	delete(s.dirty, id)
	s.mu.Unlock()

	if err := s.repo.Delete(id); err != nil {
		// The live view already dropped the pad; a stale row is the
		// same class of failure as a missed upsert.
		logger.Sugar.Errorf("Failed to delete pad %s from database: %v", id, err)
	}
	return nil
}

// Persist writes one snapshot to the database. On failure the pad
// stays dirty and the flush worker retries.
func (s *PadStore) Persist(p model.Pad) error {
	if err := s.repo.Upsert(p); err != nil {
		logger.Sugar.Errorf("Failed to persist pad %s, will retry: %v", p.ID, err)
		return err
	}

	s.mu.Lock()
	// Only mark as clean if the content hasn't changed again since we
	// started the save operation.
	if cur, ok := s.pads[p.ID]; ok && cur.Content == p.Content {
		delete(s.dirty, p.ID)
	}
	s.mu.Unlock()
	return nil
}

// Flush retries every dirty pad once.
func (s *PadStore) Flush() {
	s.mu.Lock()
	toSave := make([]model.Pad, 0, len(s.dirty))
	for id := range s.dirty {
		if p, ok := s.pads[id]; ok {
			toSave = append(toSave, *p)
		} else {
			delete(s.dirty, id)
		}
	}
	s.mu.Unlock()

	for _, p := range toSave {
		if err := s.Persist(p); err != nil {
			continue // still dirty, next tick retries
		}
		logger.Sugar.Infof("Re-persisted pad: %s", p.ID)
	}
}

// FlushWorker periodically retries pads whose last write to the
// database failed.
func (s *PadStore) FlushWorker() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.Flush()
	}
}

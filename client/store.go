package client

import (
	"fmt"
	"sync"

	"pillar-api/types"
)

// Scope is the view the client currently displays. Events for other
// projects or categories are ignored on apply; the server already filters
// by membership, this is defense in depth.
type Scope struct {
	ProjectID  *int
	CategoryID *int
}

// StateStore holds the client's local view state, one map per entity.
// Apply does O(1) work per event so it is safe to call from the
// subscription's read loop.
type StateStore struct {
	mu         sync.RWMutex
	scope      Scope
	tasks      map[int]types.TaskSnapshot
	projects   map[int]types.ProjectSnapshot
	categories map[int]types.CategorySnapshot
	notes      map[int]types.NoteSnapshot
	members    map[int]types.MemberSnapshot
	presets    map[int]types.FilterPresetSnapshot
}

func NewStateStore() *StateStore {
	return &StateStore{
		tasks:      make(map[int]types.TaskSnapshot),
		projects:   make(map[int]types.ProjectSnapshot),
		categories: make(map[int]types.CategorySnapshot),
		notes:      make(map[int]types.NoteSnapshot),
		members:    make(map[int]types.MemberSnapshot),
		presets:    make(map[int]types.FilterPresetSnapshot),
	}
}

// SetScope switches the active view. It does not clear state; callers
// refetch after a scope change.
func (s *StateStore) SetScope(scope Scope) {
	s.mu.Lock()
	s.scope = scope
	s.mu.Unlock()
}

// Apply routes one sync event to the relevant entity map. Creates are
// idempotent against duplicate delivery; updates replace whole records
// (last write wins, no merge); deletes remove by id.
func (s *StateStore) Apply(ev types.SyncEvent) error {
	payload, err := types.DecodePayload(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Entity {
	case types.EntityTask:
		if ev.Action == types.ActionDeleted {
			delete(s.tasks, ev.EntityID)
			return nil
		}
		snap, ok := payload.(*types.TaskSnapshot)
		if !ok {
			return fmt.Errorf("task event %d carries no snapshot", ev.EntityID)
		}
		if !s.taskRelevant(snap) {
			return nil
		}
		if ev.Action == types.ActionCreated {
			if _, exists := s.tasks[snap.ID]; exists {
				return nil
			}
		}
		s.tasks[snap.ID] = *snap
	case types.EntityProject:
		if ev.Action == types.ActionDeleted {
			delete(s.projects, ev.EntityID)
			return nil
		}
		snap, ok := payload.(*types.ProjectSnapshot)
		if !ok {
			return fmt.Errorf("project event %d carries no snapshot", ev.EntityID)
		}
		if ev.Action == types.ActionCreated {
			if _, exists := s.projects[snap.ID]; exists {
				return nil
			}
		}
		s.projects[snap.ID] = *snap
	case types.EntityCategory:
		if ev.Action == types.ActionDeleted {
			delete(s.categories, ev.EntityID)
			return nil
		}
		snap, ok := payload.(*types.CategorySnapshot)
		if !ok {
			return fmt.Errorf("category event %d carries no snapshot", ev.EntityID)
		}
		if ev.Action == types.ActionCreated {
			if _, exists := s.categories[snap.ID]; exists {
				return nil
			}
		}
		s.categories[snap.ID] = *snap
	case types.EntityNote:
		if ev.Action == types.ActionDeleted {
			delete(s.notes, ev.EntityID)
			return nil
		}
		snap, ok := payload.(*types.NoteSnapshot)
		if !ok {
			return fmt.Errorf("note event %d carries no snapshot", ev.EntityID)
		}
		if s.scope.ProjectID != nil && (snap.ProjectID == nil || *snap.ProjectID != *s.scope.ProjectID) {
			return nil
		}
		if ev.Action == types.ActionCreated {
			if _, exists := s.notes[snap.ID]; exists {
				return nil
			}
		}
		s.notes[snap.ID] = *snap
	case types.EntityMember:
		if ev.Action == types.ActionDeleted {
			delete(s.members, ev.EntityID)
			return nil
		}
		snap, ok := payload.(*types.MemberSnapshot)
		if !ok {
			return fmt.Errorf("member event %d carries no snapshot", ev.EntityID)
		}
		if s.scope.ProjectID != nil && snap.ProjectID != *s.scope.ProjectID {
			return nil
		}
		s.members[snap.UserID] = *snap
	case types.EntityFilterPreset:
		if ev.Action == types.ActionDeleted {
			delete(s.presets, ev.EntityID)
			return nil
		}
		snap, ok := payload.(*types.FilterPresetSnapshot)
		if !ok {
			return fmt.Errorf("filter preset event %d carries no snapshot", ev.EntityID)
		}
		if ev.Action == types.ActionCreated {
			if _, exists := s.presets[snap.ID]; exists {
				return nil
			}
		}
		s.presets[snap.ID] = *snap
	default:
		return fmt.Errorf("unknown sync entity %q", ev.Entity)
	}
	return nil
}

func (s *StateStore) taskRelevant(snap *types.TaskSnapshot) bool {
	if s.scope.ProjectID != nil {
		return snap.ProjectID != nil && *snap.ProjectID == *s.scope.ProjectID
	}
	if s.scope.CategoryID != nil {
		return snap.CategoryID != nil && *snap.CategoryID == *s.scope.CategoryID
	}
	return true
}

// Task returns the task with the given id, if present.
func (s *StateStore) Task(id int) (types.TaskSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

// TaskCount reports how many tasks the view currently holds.
func (s *StateStore) TaskCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Project returns the project with the given id, if present.
func (s *StateStore) Project(id int) (types.ProjectSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	return p, ok
}

// Note returns the note with the given id, if present.
func (s *StateStore) Note(id int) (types.NoteSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	return n, ok
}

// Member reports whether the given user is in the member view.
func (s *StateStore) Member(userID int) (types.MemberSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[userID]
	return m, ok
}

// Category returns the category with the given id, if present.
func (s *StateStore) Category(id int) (types.CategorySnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cat, ok := s.categories[id]
	return cat, ok
}

// FilterPreset returns the preset with the given id, if present.
func (s *StateStore) FilterPreset(id int) (types.FilterPresetSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fp, ok := s.presets[id]
	return fp, ok
}

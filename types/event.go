package types

import (
	"encoding/json"
	"fmt"
)

// EntityType identifies which kind of record a sync event refers to.
type EntityType string

const (
	EntityCategory     EntityType = "category"
	EntityProject      EntityType = "project"
	EntityTask         EntityType = "task"
	EntityNote         EntityType = "note"
	EntityMember       EntityType = "member"
	EntityFilterPreset EntityType = "filter-preset"
)

// ActionType is the kind of change a sync event announces.
type ActionType string

const (
	ActionCreated ActionType = "created"
	ActionUpdated ActionType = "updated"
	ActionDeleted ActionType = "deleted"
)

// SyncEvent is the change-notification envelope pushed to connected clients.
// TargetUserIDs is set only for project-scoped entities and is computed from
// live membership at emit time; when nil the event is delivered to the acting
// user's other sessions only. Data carries the post-write snapshot and is
// absent on deletes.
type SyncEvent struct {
	Entity        EntityType      `json:"entity"`
	Action        ActionType      `json:"action"`
	UserID        int             `json:"userId"`
	SessionID     string          `json:"sessionId"`
	EntityID      int             `json:"entityId"`
	ProjectID     *int            `json:"projectId,omitempty"`
	TargetUserIDs []int           `json:"targetUserIds,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Timestamp     int64           `json:"timestamp"`
}

// TaskSnapshot is the task payload carried in SyncEvent.Data.
type TaskSnapshot struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Status      string  `json:"status"`
	CategoryID  *int    `json:"categoryId,omitempty"`
	ProjectID   *int    `json:"projectId,omitempty"`
	UserID      int     `json:"userId"`
	DueDate     *string `json:"dueDate,omitempty"`
}

// ProjectSnapshot is the project payload carried in SyncEvent.Data.
type ProjectSnapshot struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	OwnerID int    `json:"ownerId"`
}

// CategorySnapshot is the category payload carried in SyncEvent.Data.
type CategorySnapshot struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
	UserID int    `json:"userId"`
}

// NoteSnapshot is the note payload carried in SyncEvent.Data.
type NoteSnapshot struct {
	ID        int    `json:"id"`
	TaskID    int    `json:"taskId"`
	ProjectID *int   `json:"projectId,omitempty"`
	UserID    int    `json:"userId"`
	Text      string `json:"text"`
}

// MemberSnapshot is the membership payload carried in SyncEvent.Data.
type MemberSnapshot struct {
	UserID    int    `json:"userId"`
	ProjectID int    `json:"projectId"`
	RoleID    int    `json:"roleId"`
	Username  string `json:"username,omitempty"`
}

// FilterPresetSnapshot is the filter-preset payload carried in SyncEvent.Data.
type FilterPresetSnapshot struct {
	ID     int             `json:"id"`
	UserID int             `json:"userId"`
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params,omitempty"`
}

// DecodePayload unmarshals Data into the snapshot type matching the event's
// entity. It returns nil for delete events, which carry no snapshot.
func DecodePayload(e SyncEvent) (any, error) {
	if len(e.Data) == 0 {
		return nil, nil
	}
	var out any
	switch e.Entity {
	case EntityTask:
		out = &TaskSnapshot{}
	case EntityProject:
		out = &ProjectSnapshot{}
	case EntityCategory:
		out = &CategorySnapshot{}
	case EntityNote:
		out = &NoteSnapshot{}
	case EntityMember:
		out = &MemberSnapshot{}
	case EntityFilterPreset:
		out = &FilterPresetSnapshot{}
	default:
		return nil, fmt.Errorf("unknown sync entity %q", e.Entity)
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return nil, err
	}
	return out, nil
}

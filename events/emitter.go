package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"pillar-api/types"
)

// MemberLister supplies the current member ids of a project. Implemented by
// repository.ProjectsRepository; abstracted here so the emitter can be
// exercised without a database.
type MemberLister interface {
	GetMemberIDs(projectID int) ([]int, error)
}

// Emitter turns a committed write into a SyncEvent on the bus. Every write
// endpoint calls Emit after its database commit; the call is fire-and-forget
// and must never influence the HTTP response already computed for the write.
type Emitter struct {
	bus     *Bus
	members MemberLister
}

func NewEmitter(bus *Bus, members MemberLister) *Emitter {
	return &Emitter{bus: bus, members: members}
}

// Emit publishes the change on a detached goroutine. sessionID is the raw
// X-Session-Id header value, empty when absent. projectID non-nil marks the
// entity as project-scoped: the recipient list is read from live membership
// at emit time, never cached, so a membership change racing the emit may
// gain or lose at most one event. data is the post-write snapshot; pass nil
// on delete.
func (e *Emitter) Emit(entity types.EntityType, action types.ActionType, actorID int, sessionID string, entityID int, projectID *int, data any) {
	go func() {
		ev := types.SyncEvent{
			Entity:    entity,
			Action:    action,
			UserID:    actorID,
			SessionID: sessionID,
			EntityID:  entityID,
			ProjectID: projectID,
			Timestamp: time.Now().UnixMilli(),
		}
		if projectID != nil {
			ids, err := e.members.GetMemberIDs(*projectID)
			if err != nil {
				slog.Error("sync emit: membership lookup failed", "entity", entity, "entityId", entityID, "projectId", *projectID, "err", err)
				return
			}
			ev.TargetUserIDs = ids
		}
		if data != nil {
			b, err := json.Marshal(data)
			if err != nil {
				slog.Error("sync emit: snapshot marshal failed", "entity", entity, "entityId", entityID, "err", err)
				return
			}
			ev.Data = b
		}
		e.bus.Publish(ev)
	}()
}

package events

import "pillar-api/types"

// ShouldDeliver decides whether a connection owned by userID with the given
// sessionID receives the event. The rules, in order:
//
//  1. the event's origin session equals the connection's session: drop
//     (echo suppression, the tab already applied its own change);
//  2. the event carries an explicit recipient list: deliver only to users
//     on it;
//  3. otherwise deliver only to the acting user's own other sessions.
//
// The same filter serves the SSE endpoint and the websocket hub.
func ShouldDeliver(e types.SyncEvent, userID int, sessionID string) bool {
	if e.SessionID == sessionID {
		return false
	}
	if e.TargetUserIDs != nil {
		for _, id := range e.TargetUserIDs {
			if id == userID {
				return true
			}
		}
		return false
	}
	return e.UserID == userID
}

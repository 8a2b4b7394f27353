package globals

// Role IDs seeded by initializers.InitDefaults. The ids are stable because
// the seed runs before any project exists.
var (
	DefaultOwnerRoleID  = 1
	DefaultEditorRoleID = 2
	DefaultViewerRoleID = 3
)

// SessionHeader is the optional per-tab session id header echoed into
// SyncEvent.SessionID. An absent header maps to the empty string so
// non-browser integrations are never echo-suppressed.
const SessionHeader = "X-Session-Id"

package initializers

import (
	"database/sql"

	"pillar-api/globals"
)

// InitDefaults is called once on application start to ensure the
// project roles exist. Role ids are published through globals so
// handlers can compare without a lookup per request.
func InitDefaults(db *sql.DB) error {
	ownerID, err := ensureRole(db, "owner")
	if err != nil {
		return err
	}
	editorID, err := ensureRole(db, "editor")
	if err != nil {
		return err
	}
	viewerID, err := ensureRole(db, "viewer")
	if err != nil {
		return err
	}
	globals.DefaultOwnerRoleID = ownerID
	globals.DefaultEditorRoleID = editorID
	globals.DefaultViewerRoleID = viewerID
	return nil
}

func ensureRole(db *sql.DB, name string) (int, error) {
	var id int
	err := db.QueryRow("SELECT id FROM role WHERE name = $1", name).Scan(&id)
	if err == sql.ErrNoRows {
		err = db.QueryRow("INSERT INTO role (name) VALUES ($1) RETURNING id", name).Scan(&id)
		if err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, err
	}
	return id, nil
}

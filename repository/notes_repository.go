package repository

import (
	"database/sql"

	"pillar-api/models"
)

type NotesRepository struct {
	db *sql.DB
}

func NewNotesRepository(db *sql.DB) *NotesRepository {
	return &NotesRepository{db: db}
}

func (r *NotesRepository) CreateNote(taskID int, userID int, text string) (*models.Note, error) {
	var id int
	err := r.db.QueryRow(`
		INSERT INTO note (task_id, user_id, text, created_at, modified_at, is_deleted)
		VALUES ($1, $2, $3, NOW(), NOW(), FALSE)
		RETURNING id
	`, taskID, userID, text).Scan(&id)
	if err != nil {
		return nil, err
	}
	return r.GetNoteByID(id)
}

// GetNoteByID also resolves the project of the parent task, which scopes
// delivery of the note's sync events.
func (r *NotesRepository) GetNoteByID(id int) (*models.Note, error) {
	var n models.Note
	err := r.db.QueryRow(`
		SELECT n.id, n.task_id, t.project_id, n.user_id, n.text, n.is_deleted, n.created_at, n.modified_at
		FROM note n
		JOIN task t ON t.id = n.task_id
		WHERE n.id = $1
	`, id).Scan(&n.ID, &n.TaskID, &n.ProjectID, &n.UserID, &n.Text, &n.IsDeleted, &n.CreatedAt, &n.ModifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotesRepository) GetNotesForTask(taskID int) ([]models.Note, error) {
	rows, err := r.db.Query(`
		SELECT n.id, n.task_id, t.project_id, n.user_id, n.text, n.is_deleted, n.created_at, n.modified_at
		FROM note n
		JOIN task t ON t.id = n.task_id
		WHERE n.task_id = $1 AND n.is_deleted = FALSE
		ORDER BY n.created_at
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []models.Note
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.TaskID, &n.ProjectID, &n.UserID, &n.Text, &n.IsDeleted, &n.CreatedAt, &n.ModifiedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (r *NotesRepository) UpdateNoteText(id int, text string) (*models.Note, error) {
	_, err := r.db.Exec(`
		UPDATE note SET text = $1, modified_at = NOW() WHERE id = $2
	`, text, id)
	if err != nil {
		return nil, err
	}
	return r.GetNoteByID(id)
}

func (r *NotesRepository) SetNoteDeleted(id int, deleted bool) error {
	_, err := r.db.Exec(`
		UPDATE note SET is_deleted = $1, modified_at = NOW() WHERE id = $2
	`, deleted, id)
	return err
}

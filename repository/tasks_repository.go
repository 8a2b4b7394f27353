package repository

import (
	"database/sql"
	"time"

	"pillar-api/models"
)

type TasksRepository struct {
	db *sql.DB
}

func NewTasksRepository(db *sql.DB) *TasksRepository {
	return &TasksRepository{db: db}
}

type CreateTaskParams struct {
	Title       string
	Description *string
	Status      string
	CategoryID  *int
	ProjectID   *int
	UserID      int
	DueDate     *time.Time
}

func (r *TasksRepository) CreateTask(p CreateTaskParams) (*models.Task, error) {
	if p.Status == "" {
		p.Status = "open"
	}
	var id int
	err := r.db.QueryRow(`
		INSERT INTO task (title, description, status, category_id, project_id, user_id, due_date, created_at, modified_at, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), FALSE)
		RETURNING id
	`, p.Title, p.Description, p.Status, p.CategoryID, p.ProjectID, p.UserID, p.DueDate).Scan(&id)
	if err != nil {
		return nil, err
	}
	return r.GetTaskByID(id)
}

func (r *TasksRepository) GetTaskByID(id int) (*models.Task, error) {
	var t models.Task
	err := r.db.QueryRow(`
		SELECT id, title, description, status, category_id, project_id, user_id, due_date, is_deleted, created_at, modified_at
		FROM task
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.CategoryID, &t.ProjectID, &t.UserID, &t.DueDate, &t.IsDeleted, &t.CreatedAt, &t.ModifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type UpdateTaskParams struct {
	Title       *string
	Description *string
	Status      *string
	CategoryID  *int
	DueDate     *time.Time
}

// UpdateTask applies a partial update; nil fields are left unchanged.
// Last write wins, there is no merge.
func (r *TasksRepository) UpdateTask(id int, p UpdateTaskParams) (*models.Task, error) {
	_, err := r.db.Exec(`
		UPDATE task SET
			title = COALESCE($1, title),
			description = COALESCE($2, description),
			status = COALESCE($3, status),
			category_id = COALESCE($4, category_id),
			due_date = COALESCE($5, due_date),
			modified_at = NOW()
		WHERE id = $6
	`, p.Title, p.Description, p.Status, p.CategoryID, p.DueDate, id)
	if err != nil {
		return nil, err
	}
	return r.GetTaskByID(id)
}

func (r *TasksRepository) SetTaskDeleted(id int, deleted bool) error {
	_, err := r.db.Exec(`
		UPDATE task SET is_deleted = $1, modified_at = NOW() WHERE id = $2
	`, deleted, id)
	return err
}

func (r *TasksRepository) GetTasksForUser(userID int) ([]models.Task, error) {
	rows, err := r.db.Query(`
		SELECT DISTINCT t.id, t.title, t.description, t.status, t.category_id, t.project_id, t.user_id, t.due_date, t.is_deleted, t.created_at, t.modified_at
		FROM task t
		LEFT JOIN user_to_project utp ON utp.project_id = t.project_id
		WHERE t.is_deleted = FALSE AND (t.user_id = $1 OR utp.user_id = $1)
		ORDER BY t.created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.CategoryID, &t.ProjectID, &t.UserID, &t.DueDate, &t.IsDeleted, &t.CreatedAt, &t.ModifiedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

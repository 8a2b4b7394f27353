package repository

import (
	"database/sql"

	"pillar-api/models"
)

type ProjectsRepository struct {
	db *sql.DB
}

func NewProjectsRepository(db *sql.DB) *ProjectsRepository {
	return &ProjectsRepository{db: db}
}

func (r *ProjectsRepository) CreateProject(name string, ownerID int) (*models.Project, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var projectID int
	err = tx.QueryRow(`
		INSERT INTO project (name, owner_id, created_at, modified_at, is_deleted)
		VALUES ($1, $2, NOW(), NOW(), FALSE)
		RETURNING id
	`, name, ownerID).Scan(&projectID)
	if err != nil {
		return nil, err
	}

	var ownerRoleID int
	err = tx.QueryRow("SELECT id FROM role WHERE name = 'owner'").Scan(&ownerRoleID)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		INSERT INTO user_to_project (user_id, project_id, role_id, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, project_id) DO UPDATE SET role_id = EXCLUDED.role_id
	`, ownerID, projectID, ownerRoleID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.GetProjectByID(projectID)
}

func (r *ProjectsRepository) GetProjectByID(id int) (*models.Project, error) {
	var p models.Project
	err := r.db.QueryRow(`
		SELECT id, name, owner_id, is_deleted, created_at, modified_at
		FROM project
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.OwnerID, &p.IsDeleted, &p.CreatedAt, &p.ModifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProjectsRepository) GetProjectsForUser(userID int) ([]models.Project, error) {
	rows, err := r.db.Query(`
		SELECT p.id, p.name, p.owner_id, p.is_deleted, p.created_at, p.modified_at
		FROM project p
		JOIN user_to_project utp ON utp.project_id = p.id
		WHERE utp.user_id = $1 AND p.is_deleted = FALSE
		ORDER BY p.created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.OwnerID, &p.IsDeleted, &p.CreatedAt, &p.ModifiedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *ProjectsRepository) UpdateProjectName(id int, name string) error {
	_, err := r.db.Exec(`
		UPDATE project SET name = $1, modified_at = NOW() WHERE id = $2
	`, name, id)
	return err
}

func (r *ProjectsRepository) SetProjectDeleted(id int, deleted bool) error {
	_, err := r.db.Exec(`
		UPDATE project SET is_deleted = $1, modified_at = NOW() WHERE id = $2
	`, deleted, id)
	return err
}

// GetUserRoleIDInProject returns 0 when the user is not a member.
func (r *ProjectsRepository) GetUserRoleIDInProject(userID, projectID int) (int, error) {
	var roleID int
	err := r.db.QueryRow(`
		SELECT role_id FROM user_to_project
		WHERE user_id = $1 AND project_id = $2
	`, userID, projectID).Scan(&roleID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return roleID, nil
}

// GetMemberIDs returns the current member ids of a project. The emitter
// calls this at emit time so targeted delivery always reflects live
// membership.
func (r *ProjectsRepository) GetMemberIDs(projectID int) ([]int, error) {
	rows, err := r.db.Query(`
		SELECT user_id FROM user_to_project WHERE project_id = $1 ORDER BY user_id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ProjectsRepository) GetMembers(projectID int) ([]models.Member, error) {
	rows, err := r.db.Query(`
		SELECT utp.user_id, utp.project_id, utp.role_id, u.username, utp.created_at
		FROM user_to_project utp
		JOIN users u ON u.id = utp.user_id
		WHERE utp.project_id = $1
		ORDER BY utp.created_at
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.UserID, &m.ProjectID, &m.RoleID, &m.Username, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *ProjectsRepository) AddMember(userID, projectID, roleID int) (*models.Member, error) {
	_, err := r.db.Exec(`
		INSERT INTO user_to_project (user_id, project_id, role_id, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, project_id) DO UPDATE SET role_id = EXCLUDED.role_id
	`, userID, projectID, roleID)
	if err != nil {
		return nil, err
	}
	var m models.Member
	err = r.db.QueryRow(`
		SELECT utp.user_id, utp.project_id, utp.role_id, u.username, utp.created_at
		FROM user_to_project utp
		JOIN users u ON u.id = utp.user_id
		WHERE utp.user_id = $1 AND utp.project_id = $2
	`, userID, projectID).Scan(&m.UserID, &m.ProjectID, &m.RoleID, &m.Username, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *ProjectsRepository) RemoveMember(userID, projectID int) (bool, error) {
	res, err := r.db.Exec(`
		DELETE FROM user_to_project WHERE user_id = $1 AND project_id = $2
	`, userID, projectID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

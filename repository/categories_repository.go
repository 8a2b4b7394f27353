package repository

import (
	"database/sql"

	"pillar-api/models"
)

type CategoriesRepository struct {
	db *sql.DB
}

func NewCategoriesRepository(db *sql.DB) *CategoriesRepository {
	return &CategoriesRepository{db: db}
}

func (r *CategoriesRepository) CreateCategory(name, color string, userID int) (*models.Category, error) {
	var id int
	err := r.db.QueryRow(`
		INSERT INTO category (name, color, user_id, created_at, modified_at, is_deleted)
		VALUES ($1, $2, $3, NOW(), NOW(), FALSE)
		RETURNING id
	`, name, color, userID).Scan(&id)
	if err != nil {
		return nil, err
	}
	return r.GetCategoryByID(id)
}

func (r *CategoriesRepository) GetCategoryByID(id int) (*models.Category, error) {
	var cat models.Category
	err := r.db.QueryRow(`
		SELECT id, name, color, user_id, is_deleted, created_at, modified_at
		FROM category
		WHERE id = $1
	`, id).Scan(&cat.ID, &cat.Name, &cat.Color, &cat.UserID, &cat.IsDeleted, &cat.CreatedAt, &cat.ModifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

func (r *CategoriesRepository) GetCategoriesForUser(userID int) ([]models.Category, error) {
	rows, err := r.db.Query(`
		SELECT id, name, color, user_id, is_deleted, created_at, modified_at
		FROM category
		WHERE user_id = $1 AND is_deleted = FALSE
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []models.Category
	for rows.Next() {
		var cat models.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Color, &cat.UserID, &cat.IsDeleted, &cat.CreatedAt, &cat.ModifiedAt); err != nil {
			return nil, err
		}
		cats = append(cats, cat)
	}
	return cats, rows.Err()
}

func (r *CategoriesRepository) UpdateCategory(id int, name, color string) (*models.Category, error) {
	_, err := r.db.Exec(`
		UPDATE category SET name = $1, color = $2, modified_at = NOW() WHERE id = $3
	`, name, color, id)
	if err != nil {
		return nil, err
	}
	return r.GetCategoryByID(id)
}

func (r *CategoriesRepository) SetCategoryDeleted(id int, deleted bool) error {
	_, err := r.db.Exec(`
		UPDATE category SET is_deleted = $1, modified_at = NOW() WHERE id = $2
	`, deleted, id)
	return err
}

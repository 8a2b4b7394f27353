package repository

import (
	"database/sql"
	"encoding/json"

	"pillar-api/models"
)

type FilterPresetsRepository struct {
	db *sql.DB
}

func NewFilterPresetsRepository(db *sql.DB) *FilterPresetsRepository {
	return &FilterPresetsRepository{db: db}
}

func (r *FilterPresetsRepository) CreateFilterPreset(userID int, name string, params json.RawMessage) (*models.FilterPreset, error) {
	var id int
	err := r.db.QueryRow(`
		INSERT INTO filter_preset (user_id, name, params, created_at, modified_at, is_deleted)
		VALUES ($1, $2, $3, NOW(), NOW(), FALSE)
		RETURNING id
	`, userID, name, []byte(params)).Scan(&id)
	if err != nil {
		return nil, err
	}
	return r.GetFilterPresetByID(id)
}

func (r *FilterPresetsRepository) GetFilterPresetByID(id int) (*models.FilterPreset, error) {
	var fp models.FilterPreset
	var params []byte
	err := r.db.QueryRow(`
		SELECT id, user_id, name, params, is_deleted, created_at, modified_at
		FROM filter_preset
		WHERE id = $1
	`, id).Scan(&fp.ID, &fp.UserID, &fp.Name, &params, &fp.IsDeleted, &fp.CreatedAt, &fp.ModifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fp.Params = json.RawMessage(params)
	return &fp, nil
}

func (r *FilterPresetsRepository) GetFilterPresetsForUser(userID int) ([]models.FilterPreset, error) {
	rows, err := r.db.Query(`
		SELECT id, user_id, name, params, is_deleted, created_at, modified_at
		FROM filter_preset
		WHERE user_id = $1 AND is_deleted = FALSE
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var presets []models.FilterPreset
	for rows.Next() {
		var fp models.FilterPreset
		var params []byte
		if err := rows.Scan(&fp.ID, &fp.UserID, &fp.Name, &params, &fp.IsDeleted, &fp.CreatedAt, &fp.ModifiedAt); err != nil {
			return nil, err
		}
		fp.Params = json.RawMessage(params)
		presets = append(presets, fp)
	}
	return presets, rows.Err()
}

func (r *FilterPresetsRepository) UpdateFilterPreset(id int, name string, params json.RawMessage) (*models.FilterPreset, error) {
	_, err := r.db.Exec(`
		UPDATE filter_preset SET name = $1, params = $2, modified_at = NOW() WHERE id = $3
	`, name, []byte(params), id)
	if err != nil {
		return nil, err
	}
	return r.GetFilterPresetByID(id)
}

func (r *FilterPresetsRepository) SetFilterPresetDeleted(id int, deleted bool) error {
	_, err := r.db.Exec(`
		UPDATE filter_preset SET is_deleted = $1, modified_at = NOW() WHERE id = $2
	`, deleted, id)
	return err
}

package models

import (
	"encoding/json"
	"time"
)

type FilterPreset struct {
	ID         int             `json:"id"`
	UserID     int             `json:"userId"`
	Name       string          `json:"name"`
	Params     json.RawMessage `json:"params"`
	IsDeleted  bool            `json:"isDeleted"`
	CreatedAt  time.Time       `json:"createdAt"`
	ModifiedAt time.Time       `json:"modifiedAt"`
}

package models

import "time"

type Category struct {
	ID         int       `json:"id"`
	Name       string    `json:"name"`
	Color      string    `json:"color"`
	UserID     int       `json:"userId"`
	IsDeleted  bool      `json:"isDeleted"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

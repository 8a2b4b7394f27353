package models

import "time"

type Project struct {
	ID         int       `json:"id"`
	Name       string    `json:"name"`
	OwnerID    int       `json:"ownerId"`
	IsDeleted  bool      `json:"isDeleted"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Member is a user's membership row in a project.
type Member struct {
	UserID    int       `json:"userId"`
	ProjectID int       `json:"projectId"`
	RoleID    int       `json:"roleId"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

package models

import "time"

type Note struct {
	ID         int       `json:"id"`
	TaskID     int       `json:"taskId"`
	ProjectID  *int      `json:"projectId,omitempty"`
	UserID     int       `json:"userId"`
	Text       string    `json:"text"`
	IsDeleted  bool      `json:"isDeleted"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

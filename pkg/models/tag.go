package models

import (
	"time"
)

// Tag is a tenant-wide label shared by staging and actual questions. Tags are
// created on first use and never deleted automatically.
type Tag struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ReplaceTagsRequest is the request for replacing a question's tag set
type ReplaceTagsRequest struct {
	TagNames []string `json:"tag_names" validate:"required"`
}

// TagListResponse is the response for listing tags
type TagListResponse struct {
	Items      []Tag `json:"items"`
	TotalCount int   `json:"total_count"`
}

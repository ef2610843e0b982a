package entity

import "time"

const (
	FileCategoryEditable  = "editable"
	FileCategoryReference = "reference"
)

// DocumentRef points at a workspace document without carrying its content.
type DocumentRef struct {
	Id           string `json:"id" validate:"required"`
	FileName     string `json:"file_name" validate:"required"`
	FileCategory string `json:"file_category" validate:"omitempty,oneof=editable reference"`
}

// Document is a DocumentRef together with the content the editor currently holds.
type Document struct {
	DocumentRef
	Content string `json:"content"`
}

// DocumentVersion is a named snapshot stored next to the workspace documents.
type DocumentVersion struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	FilePath  string    `json:"file_path"`
}

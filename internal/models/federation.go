package models

import (
	"time"

	"github.com/google/uuid"
)

// Source describes where the metadata document backing a record lives.
type Source struct {
	FileKey string // docstore key of the stored document, empty when none is stored
	URL     string // remote location the document is fetched from
	FileID  string // ID attribute of the stored document's root element
	LogoRef string
}

// HasDocument reports whether a document is stored for the record.
func (s Source) HasDocument() bool {
	return s.FileKey != ""
}

// Federation represents a named collection of entities described by a single
// metadata document.
type Federation struct {
	FederationID uuid.UUID // UUIDv7
	Name         string
	Source       Source
	CreatedAt    time.Time
	UpdatedAt    time.Time
	RefreshedAt  *time.Time
}

// String returns the federation name.
func (f *Federation) String() string {
	return f.Name
}

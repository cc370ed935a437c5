package models

import "time"

// Photo represents a binary attachment captured in the field, pending upload
// to object storage. The sync engine flips Synced on successful upload and
// never deletes photo rows itself.
type Photo struct {
	ID           UUID   `db:"id" json:"id"`
	InspectionID UUID   `db:"inspection_id" json:"inspection_id"`
	Data         []byte `db:"data" json:"-"`
	Caption      string `db:"caption" json:"caption,omitempty"`
	Category     string `db:"category" json:"category,omitempty"`
	ContentType  string `db:"content_type" json:"content_type,omitempty"`
	Synced       bool   `db:"synced" json:"synced"`
	CreatedAt    int64  `db:"created_at" json:"created_at"`
}

// TableName returns the table name for Photo.
func (Photo) TableName() string {
	return "photos"
}

// CreatedAtTime returns CreatedAt as time.Time.
func (p *Photo) CreatedAtTime() time.Time {
	return unixNanoTime(p.CreatedAt)
}

// StorageKey returns the object key this photo uploads to.
func (p *Photo) StorageKey() string {
	return "inspections/" + p.InspectionID.String() + "/photos/" + p.ID.String()
}

package models

// Author is identified by name only; the name comes from a verified token.
type Author struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;size:200;not null" json:"name"`
}

package models

// Thread is a named discussion. Threads are created on the first post to a
// new name and never removed.
type Thread struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;size:200;not null" json:"name"`
}

package models

import (
	"time"
)

type Comment struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Text     string    `gorm:"size:500;not null" json:"text"`
	Created  time.Time `gorm:"not null;index" json:"created"`
	Modified time.Time `gorm:"not null" json:"modified"`
	ThreadID uint      `gorm:"not null;index" json:"thread_id"`
	Thread   Thread    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	AuthorID uint      `gorm:"not null;index" json:"author_id"`
	Author   Author    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	ParentID *uint     `gorm:"index" json:"parent_id"` // Nullable for top-level comments
	Parent   *Comment  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	Likes    int       `gorm:"not null;default:0" json:"likes"`
	Dislikes int       `gorm:"not null;default:0" json:"dislikes"`
	// Hidden comments are tombstones kept only while they still have replies.
	Hidden bool `gorm:"not null;default:false" json:"hidden"`
}

// IsRoot reports whether the comment is a top-level comment of its thread.
func (c *Comment) IsRoot() bool {
	return c.ParentID == nil
}

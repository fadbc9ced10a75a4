package models

// Vote records one author's opinion on one comment. The composite primary
// key is what keeps it to a single vote per author per comment.
type Vote struct {
	CommentID uint    `gorm:"primaryKey;autoIncrement:false" json:"comment_id"`
	Comment   Comment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	AuthorID  uint    `gorm:"primaryKey;autoIncrement:false;index" json:"author_id"`
	Author    Author  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Like      bool    `gorm:"column:is_like;not null" json:"like"` // true: upvote, false: downvote
}

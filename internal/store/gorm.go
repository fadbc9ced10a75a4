package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"murmur/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the Postgres gateway.
type GormStore struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Tx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type gormTx struct {
	db *gorm.DB
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (x *gormTx) ThreadByName(name string) (*models.Thread, error) {
	var thread models.Thread
	if err := x.db.Where("name = ?", name).Take(&thread).Error; err != nil {
		return nil, notFound(err)
	}
	return &thread, nil
}

// GetOrCreateThread inserts with ON CONFLICT DO NOTHING and reads the row
// back. A concurrent insert of the same name makes this statement wait for
// the other transaction; the read that follows then sees its row.
func (x *gormTx) GetOrCreateThread(name string) (*models.Thread, error) {
	thread := models.Thread{Name: name}
	err := x.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&thread).Error
	if err != nil {
		return nil, fmt.Errorf("insert thread: %w", err)
	}
	if thread.ID != 0 {
		return &thread, nil
	}
	return x.ThreadByName(name)
}

func (x *gormTx) AuthorByName(name string) (*models.Author, error) {
	var author models.Author
	if err := x.db.Where("name = ?", name).Take(&author).Error; err != nil {
		return nil, notFound(err)
	}
	return &author, nil
}

func (x *gormTx) GetOrCreateAuthor(name string) (*models.Author, error) {
	author := models.Author{Name: name}
	err := x.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&author).Error
	if err != nil {
		return nil, fmt.Errorf("insert author: %w", err)
	}
	if author.ID != 0 {
		return &author, nil
	}
	return x.AuthorByName(name)
}

func (x *gormTx) Comment(id uint, lock LockMode) (*models.Comment, error) {
	q := x.db
	switch lock {
	case LockShare:
		q = q.Clauses(clause.Locking{Strength: "SHARE"})
	case LockUpdate:
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var comment models.Comment
	if err := q.Take(&comment, id).Error; err != nil {
		return nil, notFound(err)
	}
	// Loaded separately so the row lock above stays on the comment alone.
	if err := x.db.Take(&comment.Author, comment.AuthorID).Error; err != nil {
		return nil, fmt.Errorf("load author of comment %d: %w", id, err)
	}
	if err := x.db.Take(&comment.Thread, comment.ThreadID).Error; err != nil {
		return nil, fmt.Errorf("load thread of comment %d: %w", id, err)
	}
	return &comment, nil
}

func (x *gormTx) InsertComment(c *models.Comment) error {
	return x.db.Omit(clause.Associations).Create(c).Error
}

func (x *gormTx) updateComment(id uint, values map[string]interface{}) error {
	res := x.db.Model(&models.Comment{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (x *gormTx) UpdateCommentText(id uint, text string, modified time.Time) error {
	return x.updateComment(id, map[string]interface{}{
		"text":     text,
		"modified": modified,
	})
}

func (x *gormTx) HideComment(id uint, modified time.Time) error {
	return x.updateComment(id, map[string]interface{}{
		"hidden":   true,
		"modified": modified,
	})
}

func (x *gormTx) DeleteComment(id uint) error {
	children, err := x.CountChildren(id)
	if err != nil {
		return err
	}
	if children > 0 {
		return ErrHasChildren
	}
	if err := x.db.Where("comment_id = ?", id).Delete(&models.Vote{}).Error; err != nil {
		return fmt.Errorf("delete votes of comment %d: %w", id, err)
	}
	res := x.db.Delete(&models.Comment{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (x *gormTx) CountChildren(id uint) (int64, error) {
	var count int64
	err := x.db.Model(&models.Comment{}).Where("parent_id = ?", id).Count(&count).Error
	return count, err
}

func (x *gormTx) ThreadComments(threadID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := x.db.Preload("Author").
		Where("thread_id = ?", threadID).
		Order("created ASC, id ASC").
		Find(&comments).Error
	return comments, err
}

func (x *gormTx) RecentComments(offset, limit int) ([]models.Comment, int64, error) {
	var total int64
	if err := x.db.Model(&models.Comment{}).Where("hidden = ?", false).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var comments []models.Comment
	err := x.db.Preload("Author").Preload("Thread").
		Where("hidden = ?", false).
		Order("created DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&comments).Error
	return comments, total, err
}

func (x *gormTx) Vote(commentID, authorID uint) (*models.Vote, error) {
	var vote models.Vote
	err := x.db.Where("comment_id = ? AND author_id = ?", commentID, authorID).Take(&vote).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &vote, nil
}

func (x *gormTx) InsertVote(v *models.Vote) error {
	return x.db.Omit(clause.Associations).Create(v).Error
}

func (x *gormTx) SetVotePolarity(commentID, authorID uint, like bool) error {
	res := x.db.Model(&models.Vote{}).
		Where("comment_id = ? AND author_id = ?", commentID, authorID).
		Update("is_like", like)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (x *gormTx) AdjustTallies(commentID uint, likes, dislikes int) error {
	res := x.db.Model(&models.Comment{}).Where("id = ?", commentID).UpdateColumns(map[string]interface{}{
		"likes":    gorm.Expr("likes + ?", likes),
		"dislikes": gorm.Expr("dislikes + ?", dislikes),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (x *gormTx) RecountTallies(commentID uint) (int, int, error) {
	type tally struct {
		Like  bool
		Count int
	}
	var rows []tally
	err := x.db.Model(&models.Vote{}).
		Select("is_like AS \"like\", COUNT(*) AS count").
		Where("comment_id = ?", commentID).
		Group("is_like").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}

	likes, dislikes := 0, 0
	for _, r := range rows {
		if r.Like {
			likes = r.Count
		} else {
			dislikes = r.Count
		}
	}

	res := x.db.Model(&models.Comment{}).Where("id = ?", commentID).UpdateColumns(map[string]interface{}{
		"likes":    likes,
		"dislikes": dislikes,
	})
	if res.Error != nil {
		return 0, 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, 0, ErrNotFound
	}
	return likes, dislikes, nil
}

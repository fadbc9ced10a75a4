// Package store is the narrow gateway the comment engine uses to read and
// write threads, authors, comments and votes.
package store

import (
	"context"
	"errors"
	"time"

	"murmur/internal/models"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrHasChildren is returned when a comment that still has replies is
	// removed; the parent reference of every reply must stay valid.
	ErrHasChildren = errors.New("comment still has replies")
)

// LockMode selects the row lock taken when reading a comment inside a
// transaction.
type LockMode int

const (
	// LockNone is a plain read.
	LockNone LockMode = iota
	// LockShare blocks concurrent removal of the row, used for reply parents.
	LockShare
	// LockUpdate serialises writers of the row (delete, hide, vote).
	LockUpdate
)

// Gateway runs units of work against the data store.
type Gateway interface {
	// Tx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back in full otherwise.
	Tx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	// ThreadByName returns ErrNotFound for an unknown name.
	ThreadByName(name string) (*models.Thread, error)
	// GetOrCreateThread is safe against a concurrent creation of the same
	// name: exactly one row ends up existing and both callers get it.
	GetOrCreateThread(name string) (*models.Thread, error)
	AuthorByName(name string) (*models.Author, error)
	// GetOrCreateAuthor has the same guarantees as GetOrCreateThread.
	GetOrCreateAuthor(name string) (*models.Author, error)

	// Comment loads a comment with its Author and Thread filled in.
	Comment(id uint, lock LockMode) (*models.Comment, error)
	InsertComment(c *models.Comment) error
	UpdateCommentText(id uint, text string, modified time.Time) error
	HideComment(id uint, modified time.Time) error
	// DeleteComment removes the row and its votes. It fails with
	// ErrHasChildren when replies still reference it.
	DeleteComment(id uint) error
	CountChildren(id uint) (int64, error)
	// ThreadComments returns every comment of the thread, hidden ones
	// included, with Author filled in, oldest first.
	ThreadComments(threadID uint) ([]models.Comment, error)
	// RecentComments returns visible comments of all threads, newest first,
	// with Author and Thread filled in, and the total number of them.
	RecentComments(offset, limit int) ([]models.Comment, int64, error)

	Vote(commentID, authorID uint) (*models.Vote, error)
	InsertVote(v *models.Vote) error
	SetVotePolarity(commentID, authorID uint, like bool) error
	// AdjustTallies adds the deltas to the comment's counters in place.
	AdjustTallies(commentID uint, likes, dislikes int) error
	// RecountTallies recomputes both counters from the vote rows.
	RecountTallies(commentID uint) (likes, dislikes int, err error)
}

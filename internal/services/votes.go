package services

import (
	"context"
	"errors"

	"murmur/internal/models"
	"murmur/internal/store"

	"go.uber.org/zap"
)

// Vote records authorName's up (like=true) or down vote on a comment and
// returns the refreshed thread. Authors cannot vote on their own comments.
func (e *Engine) Vote(ctx context.Context, commentID uint, authorName string, like bool) (*ThreadView, error) {
	if err := checkName("author", authorName); err != nil {
		return nil, err
	}

	var (
		view    *ThreadView
		thread  string
		changed bool
	)
	err := e.store.Tx(ctx, func(tx store.Tx) error {
		c, err := tx.Comment(commentID, store.LockUpdate)
		if err != nil {
			return commentNotFound(commentID, err)
		}
		author, err := tx.GetOrCreateAuthor(authorName)
		if err != nil {
			return err
		}
		if c.AuthorID == author.ID {
			return ErrSelfVote
		}
		if changed, err = castVote(tx, c.ID, author.ID, like); err != nil {
			return err
		}
		thread = c.Thread.Name
		view, err = threadView(tx, &c.Thread)
		return err
	})
	if err != nil {
		return nil, err
	}

	if changed {
		e.invalidate(thread)
		e.metrics.vote(like)
		e.log.Debug("Vote recorded", zap.Uint("comment_id", commentID), zap.String("author", authorName), zap.Bool("like", like))
	}
	return view, nil
}

// castVote applies one vote to the ledger and the comment's counters. It
// reports whether anything changed; repeating a vote is a no-op.
func castVote(tx store.Tx, commentID, authorID uint, like bool) (bool, error) {
	existing, err := tx.Vote(commentID, authorID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := tx.InsertVote(&models.Vote{CommentID: commentID, AuthorID: authorID, Like: like}); err != nil {
			return false, err
		}
		likes, dislikes := tallyDelta(like, 1)
		return true, tx.AdjustTallies(commentID, likes, dislikes)
	case err != nil:
		return false, err
	case existing.Like == like:
		return false, nil
	default:
		if err := tx.SetVotePolarity(commentID, authorID, like); err != nil {
			return false, err
		}
		likes, dislikes := tallyDelta(like, 1)
		oldLikes, oldDislikes := tallyDelta(existing.Like, -1)
		return true, tx.AdjustTallies(commentID, likes+oldLikes, dislikes+oldDislikes)
	}
}

func tallyDelta(like bool, n int) (likes, dislikes int) {
	if like {
		return n, 0
	}
	return 0, n
}

// RepairTallies recounts a comment's likes and dislikes from its votes.
func (e *Engine) RepairTallies(ctx context.Context, commentID uint) (likes, dislikes int, err error) {
	var thread string
	err = e.store.Tx(ctx, func(tx store.Tx) error {
		c, err := tx.Comment(commentID, store.LockUpdate)
		if err != nil {
			return commentNotFound(commentID, err)
		}
		thread = c.Thread.Name
		likes, dislikes, err = tx.RecountTallies(commentID)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	e.invalidate(thread)
	return likes, dislikes, nil
}

package services

import (
	"context"
	"errors"

	"murmur/internal/models"
	"murmur/internal/store"

	"go.uber.org/zap"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// GetThread returns the view of a thread. An unknown thread is an empty
// view, not an error.
func (e *Engine) GetThread(ctx context.Context, name string) (*ThreadView, error) {
	if view, ok := e.cache.Get(name); ok {
		return view, nil
	}
	epoch := e.cache.Epoch(name)

	var view *ThreadView
	err := e.store.Tx(ctx, func(tx store.Tx) error {
		thread, err := tx.ThreadByName(name)
		if errors.Is(err, store.ErrNotFound) {
			view = AssembleThreadView(name, nil)
			return nil
		}
		if err != nil {
			return err
		}
		view, err = threadView(tx, thread)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.cache.SetIfEpoch(name, epoch, view)
	return view, nil
}

func threadView(tx store.Tx, thread *models.Thread) (*ThreadView, error) {
	comments, err := tx.ThreadComments(thread.ID)
	if err != nil {
		return nil, err
	}
	return AssembleThreadView(thread.Name, comments), nil
}

// ListComments returns visible comments of all threads, newest first.
func (e *Engine) ListComments(ctx context.Context, page, perPage int) (*CommentPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	out := &CommentPage{Comments: []ListedComment{}}
	err := e.store.Tx(ctx, func(tx store.Tx) error {
		comments, total, err := tx.RecentComments((page-1)*perPage, perPage)
		if err != nil {
			return err
		}
		out.Total = total
		for _, c := range comments {
			out.Comments = append(out.Comments, ListedComment{
				ThreadName: c.Thread.Name,
				ID:         c.ID,
				Text:       c.Text,
				Author:     c.Author.Name,
				Created:    c.Created,
				Modified:   c.Modified,
				URL:        commentURL(c.ID),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PostTopLevel adds a root comment to thread, creating the thread and the
// author on first use.
func (e *Engine) PostTopLevel(ctx context.Context, threadName, authorName, text string) (*ThreadView, error) {
	if err := checkName("thread", threadName); err != nil {
		return nil, err
	}
	if err := checkName("author", authorName); err != nil {
		return nil, err
	}
	text, err := e.cleanText(text)
	if err != nil {
		return nil, err
	}

	var (
		view *ThreadView
		id   uint
	)
	err = e.store.Tx(ctx, func(tx store.Tx) error {
		thread, err := tx.GetOrCreateThread(threadName)
		if err != nil {
			return err
		}
		author, err := tx.GetOrCreateAuthor(authorName)
		if err != nil {
			return err
		}
		now := e.timestamp()
		c := &models.Comment{
			Text:     text,
			Created:  now,
			Modified: now,
			ThreadID: thread.ID,
			AuthorID: author.ID,
		}
		if err := tx.InsertComment(c); err != nil {
			return err
		}
		id = c.ID
		view, err = threadView(tx, thread)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(threadName)
	e.metrics.commentPosted()
	e.log.Info("Comment posted", zap.Uint("comment_id", id), zap.String("thread", threadName), zap.String("author", authorName))
	return view, nil
}

// PostReply adds a reply to an existing comment, in the parent's thread.
func (e *Engine) PostReply(ctx context.Context, parentID uint, authorName, text string) (*ThreadView, error) {
	if err := checkName("author", authorName); err != nil {
		return nil, err
	}
	text, err := e.cleanText(text)
	if err != nil {
		return nil, err
	}

	var (
		view   *ThreadView
		thread string
		id     uint
	)
	err = e.store.Tx(ctx, func(tx store.Tx) error {
		// The share lock keeps a concurrent delete from removing the parent
		// between this read and the insert below.
		parent, err := tx.Comment(parentID, store.LockShare)
		if err != nil {
			return commentNotFound(parentID, err)
		}
		author, err := tx.GetOrCreateAuthor(authorName)
		if err != nil {
			return err
		}
		now := e.timestamp()
		c := &models.Comment{
			Text:     text,
			Created:  now,
			Modified: now,
			ThreadID: parent.ThreadID,
			AuthorID: author.ID,
			ParentID: &parent.ID,
		}
		if err := tx.InsertComment(c); err != nil {
			return err
		}
		id = c.ID
		thread = parent.Thread.Name
		view, err = threadView(tx, &parent.Thread)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(thread)
	e.metrics.commentPosted()
	e.log.Info("Reply posted", zap.Uint("comment_id", id), zap.Uint("parent_id", parentID), zap.String("author", authorName))
	return view, nil
}

// requireAuthor loads a comment and checks that authorName wrote it.
func requireAuthor(tx store.Tx, id uint, authorName string, lock store.LockMode) (*models.Comment, error) {
	c, err := tx.Comment(id, lock)
	if err != nil {
		return nil, commentNotFound(id, err)
	}
	if c.Author.Name != authorName {
		return nil, ErrNotAuthor
	}
	return c, nil
}

// Edit replaces the text of a comment. Tallies and the hidden flag are
// left alone.
func (e *Engine) Edit(ctx context.Context, id uint, authorName, text string) (*ThreadView, error) {
	var (
		view   *ThreadView
		thread string
	)
	err := e.store.Tx(ctx, func(tx store.Tx) error {
		c, err := requireAuthor(tx, id, authorName, store.LockUpdate)
		if err != nil {
			return err
		}
		clean, err := e.cleanText(text)
		if err != nil {
			return err
		}
		if err := tx.UpdateCommentText(c.ID, clean, e.timestamp()); err != nil {
			return commentNotFound(id, err)
		}
		thread = c.Thread.Name
		view, err = threadView(tx, &c.Thread)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(thread)
	e.log.Info("Comment edited", zap.Uint("comment_id", id), zap.String("author", authorName))
	return view, nil
}

// Delete removes a comment written by authorName, see removeComment.
func (e *Engine) Delete(ctx context.Context, id uint, authorName string) (*ThreadView, error) {
	var (
		view   *ThreadView
		thread string
		r      removal
	)
	err := e.store.Tx(ctx, func(tx store.Tx) error {
		c, err := requireAuthor(tx, id, authorName, store.LockUpdate)
		if err != nil {
			return err
		}
		if r, err = e.removeComment(tx, c); err != nil {
			return err
		}
		thread = c.Thread.Name
		view, err = threadView(tx, &c.Thread)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(thread)
	e.metrics.removed(r)
	e.log.Info("Comment deleted", zap.Uint("comment_id", id), zap.String("author", authorName),
		zap.Int("hidden", r.hidden), zap.Int("deleted", r.deleted))
	return view, nil
}

// removal counts what one delete did to the tree.
type removal struct {
	hidden  int
	deleted int
}

// removeComment hides c if it has replies and deletes it otherwise. After
// a delete, a hidden parent gets the same treatment, so a chain of hidden
// ancestors that lost their last reply collapses up to the first visible
// ancestor or the root.
//
// c must already be locked for update. Locks are taken child first, then
// parent.
func (e *Engine) removeComment(tx store.Tx, c *models.Comment) (removal, error) {
	var r removal
	now := e.timestamp()
	for {
		children, err := tx.CountChildren(c.ID)
		if err != nil {
			return r, err
		}
		if children > 0 {
			if err := tx.HideComment(c.ID, now); err != nil {
				return r, err
			}
			if !c.Hidden {
				r.hidden++
			}
			return r, nil
		}

		if err := tx.DeleteComment(c.ID); err != nil {
			if errors.Is(err, store.ErrHasChildren) {
				// A reply slipped in after the count; hide instead.
				continue
			}
			return r, err
		}
		r.deleted++

		if c.IsRoot() {
			return r, nil
		}
		parent, err := tx.Comment(*c.ParentID, store.LockUpdate)
		if err != nil {
			return r, commentNotFound(*c.ParentID, err)
		}
		if !parent.Hidden {
			return r, nil
		}
		c = parent
	}
}

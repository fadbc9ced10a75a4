package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"murmur/internal/models"

	"github.com/stretchr/testify/require"
)

func seedComment(t *testing.T, m *Memory, thread, author string, parent *uint) *models.Comment {
	t.Helper()
	var out *models.Comment
	err := m.Tx(context.Background(), func(tx Tx) error {
		th, err := tx.GetOrCreateThread(thread)
		if err != nil {
			return err
		}
		a, err := tx.GetOrCreateAuthor(author)
		if err != nil {
			return err
		}
		now := time.Now()
		c := &models.Comment{Text: "hello", Created: now, Modified: now, ThreadID: th.ID, AuthorID: a.ID, ParentID: parent}
		if err := tx.InsertComment(c); err != nil {
			return err
		}
		out = c
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestMemory_GetOrCreateIsIdempotent(t *testing.T) {
	m := NewMemory()
	var first, second *models.Thread
	require.NoError(t, m.Tx(context.Background(), func(tx Tx) error {
		var err error
		first, err = tx.GetOrCreateThread("general")
		return err
	}))
	require.NoError(t, m.Tx(context.Background(), func(tx Tx) error {
		var err error
		second, err = tx.GetOrCreateThread("general")
		return err
	}))
	require.Equal(t, first.ID, second.ID)
	require.Len(t, m.state.threads, 1)
}

func TestMemory_RollbackDiscardsEverything(t *testing.T) {
	m := NewMemory()
	boom := errors.New("boom")

	err := m.Tx(context.Background(), func(tx Tx) error {
		if _, err := tx.GetOrCreateThread("t1"); err != nil {
			return err
		}
		if _, err := tx.GetOrCreateAuthor("alice"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, m.state.threads)
	require.Empty(t, m.state.authors)
}

func TestMemory_DeleteRefusesParentWithReplies(t *testing.T) {
	m := NewMemory()
	root := seedComment(t, m, "t1", "alice", nil)
	seedComment(t, m, "t1", "bob", &root.ID)

	err := m.Tx(context.Background(), func(tx Tx) error {
		return tx.DeleteComment(root.ID)
	})
	require.ErrorIs(t, err, ErrHasChildren)
}

func TestMemory_DeleteRemovesVotes(t *testing.T) {
	m := NewMemory()
	c := seedComment(t, m, "t1", "alice", nil)

	require.NoError(t, m.Tx(context.Background(), func(tx Tx) error {
		bob, err := tx.GetOrCreateAuthor("bob")
		if err != nil {
			return err
		}
		return tx.InsertVote(&models.Vote{CommentID: c.ID, AuthorID: bob.ID, Like: true})
	}))
	require.Len(t, m.state.votes, 1)

	require.NoError(t, m.Tx(context.Background(), func(tx Tx) error {
		return tx.DeleteComment(c.ID)
	}))
	require.Empty(t, m.state.votes)
	require.Empty(t, m.state.comments)
}

func TestMemory_CommentFillsAssociations(t *testing.T) {
	m := NewMemory()
	c := seedComment(t, m, "t1", "alice", nil)

	require.NoError(t, m.Tx(context.Background(), func(tx Tx) error {
		got, err := tx.Comment(c.ID, LockUpdate)
		require.NoError(t, err)
		require.Equal(t, "alice", got.Author.Name)
		require.Equal(t, "t1", got.Thread.Name)

		_, err = tx.Comment(c.ID+100, LockNone)
		require.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func TestMemory_RecentCommentsPaginates(t *testing.T) {
	m := NewMemory()
	var ids []uint
	for i := 0; i < 5; i++ {
		ids = append(ids, seedComment(t, m, "t1", "alice", nil).ID)
	}
	require.NoError(t, m.Tx(context.Background(), func(tx Tx) error {
		return tx.HideComment(ids[4], time.Now())
	}))

	require.NoError(t, m.Tx(context.Background(), func(tx Tx) error {
		page, total, err := tx.RecentComments(0, 2)
		require.NoError(t, err)
		require.EqualValues(t, 4, total)
		require.Len(t, page, 2)
		require.Equal(t, ids[3], page[0].ID)
		require.Equal(t, ids[2], page[1].ID)

		page, _, err = tx.RecentComments(10, 2)
		require.NoError(t, err)
		require.Empty(t, page)
		return nil
	}))
}

func TestMemory_RecountTallies(t *testing.T) {
	m := NewMemory()
	c := seedComment(t, m, "t1", "alice", nil)

	require.NoError(t, m.Tx(context.Background(), func(tx Tx) error {
		for i, name := range []string{"bob", "carol", "dave"} {
			a, err := tx.GetOrCreateAuthor(name)
			if err != nil {
				return err
			}
			if err := tx.InsertVote(&models.Vote{CommentID: c.ID, AuthorID: a.ID, Like: i != 2}); err != nil {
				return err
			}
		}
		// counters drift on purpose
		return tx.AdjustTallies(c.ID, 7, 0)
	}))

	require.NoError(t, m.Tx(context.Background(), func(tx Tx) error {
		likes, dislikes, err := tx.RecountTallies(c.ID)
		require.NoError(t, err)
		require.Equal(t, 2, likes)
		require.Equal(t, 1, dislikes)
		return nil
	}))
	require.Equal(t, 2, m.state.comments[c.ID].Likes)
}

func TestMemory_CanceledContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Tx(ctx, func(tx Tx) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

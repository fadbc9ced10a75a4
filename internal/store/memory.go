package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"murmur/internal/models"
)

// Memory is a process-local gateway. Transactions are serialised and work
// on a copy of the data that replaces the live copy only on commit.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

type voteKey struct {
	commentID uint
	authorID  uint
}

type memState struct {
	lastThread  uint
	lastAuthor  uint
	lastComment uint
	threads     map[uint]models.Thread
	authors     map[uint]models.Author
	comments    map[uint]models.Comment
	votes       map[voteKey]models.Vote
}

func NewMemory() *Memory {
	return &Memory{state: &memState{
		threads:  make(map[uint]models.Thread),
		authors:  make(map[uint]models.Author),
		comments: make(map[uint]models.Comment),
		votes:    make(map[voteKey]models.Vote),
	}}
}

func (m *Memory) Tx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *memState) clone() *memState {
	c := &memState{
		lastThread:  s.lastThread,
		lastAuthor:  s.lastAuthor,
		lastComment: s.lastComment,
		threads:     make(map[uint]models.Thread, len(s.threads)),
		authors:     make(map[uint]models.Author, len(s.authors)),
		comments:    make(map[uint]models.Comment, len(s.comments)),
		votes:       make(map[voteKey]models.Vote, len(s.votes)),
	}
	for k, v := range s.threads {
		c.threads[k] = v
	}
	for k, v := range s.authors {
		c.authors[k] = v
	}
	for k, v := range s.comments {
		c.comments[k] = v
	}
	for k, v := range s.votes {
		c.votes[k] = v
	}
	return c
}

type memTx struct {
	s *memState
}

func (x *memTx) ThreadByName(name string) (*models.Thread, error) {
	for _, t := range x.s.threads {
		if t.Name == name {
			thread := t
			return &thread, nil
		}
	}
	return nil, ErrNotFound
}

func (x *memTx) GetOrCreateThread(name string) (*models.Thread, error) {
	thread, err := x.ThreadByName(name)
	if !errors.Is(err, ErrNotFound) {
		return thread, err
	}
	x.s.lastThread++
	t := models.Thread{ID: x.s.lastThread, Name: name}
	x.s.threads[t.ID] = t
	return &t, nil
}

func (x *memTx) AuthorByName(name string) (*models.Author, error) {
	for _, a := range x.s.authors {
		if a.Name == name {
			author := a
			return &author, nil
		}
	}
	return nil, ErrNotFound
}

func (x *memTx) GetOrCreateAuthor(name string) (*models.Author, error) {
	author, err := x.AuthorByName(name)
	if !errors.Is(err, ErrNotFound) {
		return author, err
	}
	x.s.lastAuthor++
	a := models.Author{ID: x.s.lastAuthor, Name: name}
	x.s.authors[a.ID] = a
	return &a, nil
}

// fill returns a copy of the stored comment with its associations set.
func (x *memTx) fill(c models.Comment) models.Comment {
	c.Author = x.s.authors[c.AuthorID]
	c.Thread = x.s.threads[c.ThreadID]
	return c
}

func (x *memTx) Comment(id uint, _ LockMode) (*models.Comment, error) {
	c, ok := x.s.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	filled := x.fill(c)
	return &filled, nil
}

func (x *memTx) InsertComment(c *models.Comment) error {
	if _, ok := x.s.threads[c.ThreadID]; !ok {
		return errors.New("comment references a missing thread")
	}
	if _, ok := x.s.authors[c.AuthorID]; !ok {
		return errors.New("comment references a missing author")
	}
	if c.ParentID != nil {
		if _, ok := x.s.comments[*c.ParentID]; !ok {
			return errors.New("comment references a missing parent")
		}
	}
	x.s.lastComment++
	c.ID = x.s.lastComment
	stored := *c
	stored.Author = models.Author{}
	stored.Thread = models.Thread{}
	stored.Parent = nil
	x.s.comments[c.ID] = stored
	return nil
}

func (x *memTx) UpdateCommentText(id uint, text string, modified time.Time) error {
	c, ok := x.s.comments[id]
	if !ok {
		return ErrNotFound
	}
	c.Text = text
	c.Modified = modified
	x.s.comments[id] = c
	return nil
}

func (x *memTx) HideComment(id uint, modified time.Time) error {
	c, ok := x.s.comments[id]
	if !ok {
		return ErrNotFound
	}
	c.Hidden = true
	c.Modified = modified
	x.s.comments[id] = c
	return nil
}

func (x *memTx) DeleteComment(id uint) error {
	if _, ok := x.s.comments[id]; !ok {
		return ErrNotFound
	}
	if n, _ := x.CountChildren(id); n > 0 {
		return ErrHasChildren
	}
	for k := range x.s.votes {
		if k.commentID == id {
			delete(x.s.votes, k)
		}
	}
	delete(x.s.comments, id)
	return nil
}

func (x *memTx) CountChildren(id uint) (int64, error) {
	var n int64
	for _, c := range x.s.comments {
		if c.ParentID != nil && *c.ParentID == id {
			n++
		}
	}
	return n, nil
}

func sortOldestFirst(comments []models.Comment) {
	sort.Slice(comments, func(i, j int) bool {
		if comments[i].Created.Equal(comments[j].Created) {
			return comments[i].ID < comments[j].ID
		}
		return comments[i].Created.Before(comments[j].Created)
	})
}

func (x *memTx) ThreadComments(threadID uint) ([]models.Comment, error) {
	var out []models.Comment
	for _, c := range x.s.comments {
		if c.ThreadID == threadID {
			out = append(out, x.fill(c))
		}
	}
	sortOldestFirst(out)
	return out, nil
}

func (x *memTx) RecentComments(offset, limit int) ([]models.Comment, int64, error) {
	var visible []models.Comment
	for _, c := range x.s.comments {
		if !c.Hidden {
			visible = append(visible, x.fill(c))
		}
	}
	sortOldestFirst(visible)
	total := int64(len(visible))

	// newest first
	for i, j := 0, len(visible)-1; i < j; i, j = i+1, j-1 {
		visible[i], visible[j] = visible[j], visible[i]
	}
	if offset >= len(visible) {
		return []models.Comment{}, total, nil
	}
	end := offset + limit
	if end > len(visible) {
		end = len(visible)
	}
	return visible[offset:end], total, nil
}

func (x *memTx) Vote(commentID, authorID uint) (*models.Vote, error) {
	v, ok := x.s.votes[voteKey{commentID, authorID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (x *memTx) InsertVote(v *models.Vote) error {
	key := voteKey{v.CommentID, v.AuthorID}
	if _, ok := x.s.votes[key]; ok {
		return errors.New("duplicate vote")
	}
	if _, ok := x.s.comments[v.CommentID]; !ok {
		return errors.New("vote references a missing comment")
	}
	x.s.votes[key] = models.Vote{CommentID: v.CommentID, AuthorID: v.AuthorID, Like: v.Like}
	return nil
}

func (x *memTx) SetVotePolarity(commentID, authorID uint, like bool) error {
	key := voteKey{commentID, authorID}
	v, ok := x.s.votes[key]
	if !ok {
		return ErrNotFound
	}
	v.Like = like
	x.s.votes[key] = v
	return nil
}

func (x *memTx) AdjustTallies(commentID uint, likes, dislikes int) error {
	c, ok := x.s.comments[commentID]
	if !ok {
		return ErrNotFound
	}
	c.Likes += likes
	c.Dislikes += dislikes
	x.s.comments[commentID] = c
	return nil
}

func (x *memTx) RecountTallies(commentID uint) (int, int, error) {
	c, ok := x.s.comments[commentID]
	if !ok {
		return 0, 0, ErrNotFound
	}
	likes, dislikes := 0, 0
	for k, v := range x.s.votes {
		if k.commentID != commentID {
			continue
		}
		if v.Like {
			likes++
		} else {
			dislikes++
		}
	}
	c.Likes = likes
	c.Dislikes = dislikes
	x.s.comments[commentID] = c
	return likes, dislikes, nil
}

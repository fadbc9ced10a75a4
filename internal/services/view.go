package services

import (
	"fmt"
	"iter"
	"sort"
	"time"

	"murmur/internal/models"
)

// CommentView is one node of a thread view.
type CommentView struct {
	ID        uint      `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
	Upvotes   int       `json:"upvotes"`
	Downvotes int       `json:"downvotes"`
	// Hidden comments keep their text; redaction is up to the client.
	Hidden    bool           `json:"hidden"`
	URL       string         `json:"url"`
	VoteURL   string         `json:"vote_url"`
	ReportURL string         `json:"report_url"`
	Replies   []*CommentView `json:"replies"`
}

// ThreadView is the nested representation returned by every thread
// operation. Count is the number of stored comments, hidden ones included.
type ThreadView struct {
	Name     string         `json:"name"`
	Comments []*CommentView `json:"comments"`
	Count    int            `json:"count"`
}

func newCommentView(c *models.Comment) *CommentView {
	return &CommentView{
		ID:        c.ID,
		Text:      c.Text,
		Author:    c.Author.Name,
		Created:   c.Created,
		Modified:  c.Modified,
		Upvotes:   c.Likes,
		Downvotes: c.Dislikes,
		Hidden:    c.Hidden,
		URL:       commentURL(c.ID),
		VoteURL:   fmt.Sprintf("/vote/%d", c.ID),
		ReportURL: fmt.Sprintf("/report/%d", c.ID),
		Replies:   []*CommentView{},
	}
}

func commentURL(id uint) string {
	return fmt.Sprintf("/comment/%d", id)
}

// AssembleThreadView nests the comments of one thread. Siblings, roots
// included, are ordered by creation time and then id.
func AssembleThreadView(name string, comments []models.Comment) *ThreadView {
	sorted := make([]*models.Comment, len(comments))
	for i := range comments {
		sorted[i] = &comments[i]
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Created.Equal(b.Created) {
			return a.Created.Before(b.Created)
		}
		return a.ID < b.ID
	})

	nodes := make(map[uint]*CommentView, len(sorted))
	for _, c := range sorted {
		nodes[c.ID] = newCommentView(c)
	}

	view := &ThreadView{Name: name, Comments: []*CommentView{}, Count: len(comments)}
	for _, c := range sorted {
		node := nodes[c.ID]
		if c.IsRoot() {
			view.Comments = append(view.Comments, node)
			continue
		}
		// A parent always lives in the same thread.
		if parent, ok := nodes[*c.ParentID]; ok {
			parent.Replies = append(parent.Replies, node)
		}
	}
	return view
}

// Walk yields every comment of the view depth first, in display order,
// together with its depth (0 for roots). Each range over the result starts
// from the top again.
func (v *ThreadView) Walk() iter.Seq2[int, *CommentView] {
	return func(yield func(int, *CommentView) bool) {
		type frame struct {
			depth int
			node  *CommentView
		}
		stack := make([]frame, 0, len(v.Comments))
		for i := len(v.Comments) - 1; i >= 0; i-- {
			stack = append(stack, frame{0, v.Comments[i]})
		}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(top.depth, top.node) {
				return
			}
			for i := len(top.node.Replies) - 1; i >= 0; i-- {
				stack = append(stack, frame{top.depth + 1, top.node.Replies[i]})
			}
		}
	}
}

// Find returns the comment with the given id, or nil.
func (v *ThreadView) Find(id uint) *CommentView {
	for _, c := range v.Walk() {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// ListedComment is an entry of the recent comments feed.
type ListedComment struct {
	ThreadName string    `json:"thread_name"`
	ID         uint      `json:"id"`
	Text       string    `json:"text"`
	Author     string    `json:"author"`
	Created    time.Time `json:"created"`
	Modified   time.Time `json:"modified"`
	URL        string    `json:"url"`
}

type CommentPage struct {
	Comments []ListedComment `json:"comments"`
	Total    int64           `json:"total"`
}

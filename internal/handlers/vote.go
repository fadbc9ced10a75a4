package handlers

import (
	"net/http"

	"murmur/internal/middleware"
	"murmur/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

type VoteHandler struct {
	engine *services.Engine
	log    *zap.Logger
}

func NewVoteHandler(engine *services.Engine, log *zap.Logger) *VoteHandler {
	return &VoteHandler{engine: engine, log: log}
}

type voteRequest struct {
	// true: upvote, false: downvote
	Vote *bool `json:"vote" binding:"required"`
}

// Vote likes or dislikes a comment. Voting again with the same value
// changes nothing; the opposite value moves the vote.
func (h *VoteHandler) Vote(c *gin.Context) {
	id, ok := commentID(c)
	if !ok {
		return
	}
	var req voteRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		badRequest(c, `vote is required: use "true" for an upvote, "false" for a downvote`)
		return
	}

	view, err := h.engine.Vote(c.Request.Context(), id, middleware.Author(c), *req.Vote)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

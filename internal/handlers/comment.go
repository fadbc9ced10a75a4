package handlers

import (
	"net/http"

	"murmur/internal/middleware"
	"murmur/internal/services"
	"murmur/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

type CommentHandler struct {
	engine *services.Engine
	log    *zap.Logger
}

func NewCommentHandler(engine *services.Engine, log *zap.Logger) *CommentHandler {
	return &CommentHandler{engine: engine, log: log}
}

type textRequest struct {
	Text string `json:"text" binding:"required"`
}

// GetThread returns the comments of a thread
func (h *CommentHandler) GetThread(c *gin.Context) {
	view, err := h.engine.GetThread(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// PostTopLevel adds a comment to a thread, creating the thread if needed
func (h *CommentHandler) PostTopLevel(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		badRequest(c, "text is required")
		return
	}

	view, err := h.engine.PostTopLevel(c.Request.Context(), c.Param("name"), middleware.Author(c), req.Text)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// List returns comments of all threads, newest first
func (h *CommentHandler) List(c *gin.Context) {
	page, perPage := utils.Pagination(c.Query("page"), c.Query("per_page"), defaultPerPage, maxPerPage)

	out, err := h.engine.ListComments(c.Request.Context(), page, perPage)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Reply adds a reply to the comment
func (h *CommentHandler) Reply(c *gin.Context) {
	id, ok := commentID(c)
	if !ok {
		return
	}
	var req textRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		badRequest(c, "text is required")
		return
	}

	view, err := h.engine.PostReply(c.Request.Context(), id, middleware.Author(c), req.Text)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Edit replaces the text of the caller's comment
func (h *CommentHandler) Edit(c *gin.Context) {
	id, ok := commentID(c)
	if !ok {
		return
	}
	var req textRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		badRequest(c, "text is required")
		return
	}

	view, err := h.engine.Edit(c.Request.Context(), id, middleware.Author(c), req.Text)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Delete removes the caller's comment; comments with replies are hidden
func (h *CommentHandler) Delete(c *gin.Context) {
	id, ok := commentID(c)
	if !ok {
		return
	}

	view, err := h.engine.Delete(c.Request.Context(), id, middleware.Author(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

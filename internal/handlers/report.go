package handlers

import (
	"net/http"

	"murmur/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ReportHandler struct {
	engine *services.Engine
	log    *zap.Logger
}

func NewReportHandler(engine *services.Engine, log *zap.Logger) *ReportHandler {
	return &ReportHandler{engine: engine, log: log}
}

// Report mails the moderators a link that deletes the comment
func (h *ReportHandler) Report(c *gin.Context) {
	id, ok := commentID(c)
	if !ok {
		return
	}

	out, err := h.engine.Report(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reported!", "comment_id": out.CommentID})
}

// DeleteReported follows a moderation link
func (h *ReportHandler) DeleteReported(c *gin.Context) {
	out, err := h.engine.DeleteReported(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	message := "Deleted!"
	if out.Hidden {
		message = "Hidden!"
	}
	if wantsHTML(c) {
		Render(c, http.StatusOK, "moderation/deleted.html", gin.H{
			"Message": message,
			"Outcome": out,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "result": out})
}

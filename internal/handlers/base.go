package handlers

import (
	"errors"
	"net/http"

	"murmur/internal/middleware"
	"murmur/internal/services"
	"murmur/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

// Render helper to inject common variables
func Render(c *gin.Context, code int, name string, obj gin.H) {
	if obj == nil {
		obj = gin.H{}
	}
	obj["CurrentPath"] = c.Request.URL.Path
	obj["RequestID"] = c.GetString(middleware.RequestIDKey)
	c.HTML(code, name, obj)
}

// RenderError renders the HTML error page.
func RenderError(c *gin.Context, code int, message string) {
	Render(c, code, "error.html", gin.H{"Error": message})
}

// wantsHTML reports whether the client prefers an HTML page, as a browser
// following a moderation link does.
func wantsHTML(c *gin.Context) bool {
	return c.NegotiateFormat(binding.MIMEJSON, binding.MIMEHTML) == binding.MIMEHTML
}

// errorStatus maps an engine error onto an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrNotAuthor),
		errors.Is(err, services.ErrSelfVote),
		errors.Is(err, services.ErrTokenInvalid),
		errors.Is(err, services.ErrTokenExpired),
		errors.Is(err, services.ErrThreadMismatch),
		errors.Is(err, services.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotificationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is the client visible text of err. Internal failures are
// not described.
func errorMessage(err error, status int) string {
	switch {
	case status == http.StatusInternalServerError:
		return "internal error"
	case errors.Is(err, services.ErrTokenExpired):
		return "Signature Expired"
	case errors.Is(err, services.ErrTokenInvalid):
		return "Bad Signature"
	case errors.Is(err, services.ErrNotificationFailed):
		return services.ErrNotificationFailed.Error()
	}
	return utils.Capitalize(err.Error())
}

func writeError(c *gin.Context, log *zap.Logger, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Error("Request failed", zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)), zap.Error(err))
	}
	_ = c.Error(err)

	message := errorMessage(err, status)
	if wantsHTML(c) {
		RenderError(c, status, message)
		return
	}
	c.JSON(status, gin.H{"message": message})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": message})
}

// commentID parses the :id path parameter.
func commentID(c *gin.Context) (uint, bool) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Comment not found"})
	}
	return id, ok
}

package middleware

import (
	"errors"
	"net/http"
	"strings"

	"murmur/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

const (
	AuthorKey    = "author"
	AuthorErrKey = "author_err"
)

type tokenBody struct {
	Token string `json:"token"`
}

// bearerToken returns the token of an "Authorization: Bearer" header, or
// the "token" field of a JSON body. The body is cached by gin so handlers
// can bind it again with ShouldBindBodyWith.
func bearerToken(c *gin.Context) string {
	const prefix = "Bearer "
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, prefix) {
		if token := strings.TrimSpace(auth[len(prefix):]); token != "" {
			return token
		}
	}
	if c.Request.ContentLength == 0 || c.ContentType() != binding.MIMEJSON {
		return ""
	}
	var body tokenBody
	if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
		return ""
	}
	return body.Token
}

// LoadAuthor decodes the author token, when one is present, and stores the
// username under AuthorKey. A bad token is kept under AuthorErrKey for
// AuthorRequired to report.
func LoadAuthor(decoder services.AuthorDecoder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			name, err := decoder.DecodeAuthor(token)
			if err != nil {
				c.Set(AuthorErrKey, err)
			} else {
				c.Set(AuthorKey, name)
			}
		}
		c.Next()
	}
}

// AuthorRequired rejects requests without a valid author token.
func AuthorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(AuthorKey); exists {
			c.Next()
			return
		}
		message := "author token required"
		if v, ok := c.Get(AuthorErrKey); ok {
			if err, ok := v.(error); ok && errors.Is(err, services.ErrTokenExpired) {
				message = "author token expired"
			} else {
				message = "invalid author token"
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": message})
	}
}

// Author returns the username set by LoadAuthor.
func Author(c *gin.Context) string {
	return c.GetString(AuthorKey)
}

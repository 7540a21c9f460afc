package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/cutout/matting"
	"github.com/chaos-io/cutout/session"
)

var ErrNoFiles = errors.New("no files uploaded")

func statusOf(err error) int {
	switch {
	case errors.Is(err, session.ErrUnknownItem):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotProcessed):
		return http.StatusConflict
	case errors.Is(err, matting.ErrInvalidParams), errors.Is(err, ErrNoFiles):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUnsupportedExtension):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, matting.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, matting.ErrRemove):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortJSON(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error": err.Error(),
		"kind":  session.ErrorKind(err),
	})
}

func abortText(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.Abort()
	c.String(status, err.Error())
}

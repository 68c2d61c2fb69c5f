package api

import (
	"errors"
	"net/http"
	"seatwatch-backend/internal/banner"
	"seatwatch-backend/internal/registry"
	"seatwatch-backend/internal/seatwatch"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ErrCode string

const (
	ErrInvalidRequest   ErrCode = "INVALID_REQUEST"
	ErrInvalidTerm      ErrCode = "INVALID_TERM"
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrPermissionDenied ErrCode = "PERMISSION_DENIED"
	ErrTokenInvalid     ErrCode = "TOKEN_INVALID"
	ErrRequestFailed    ErrCode = "REQUEST_FAILED"
	ErrInternal         ErrCode = "INTERNAL_ERROR"
)

// Response is the envelope of every API response.
type Response struct {
	Data     any        `json:"data"`
	Error    *ErrorBody `json:"error,omitempty"`
	Metadata Metadata   `json:"metadata"`
}

type ErrorBody struct {
	Code    ErrCode `json:"code"`
	Message string  `json:"message"`
}

type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

const contextKeyRequestID = "request_id"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextKeyRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func buildMetadata(c *gin.Context) Metadata {
	id := c.GetString(contextKeyRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	return Metadata{
		RequestID: id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func success(c *gin.Context, status int, data any) {
	c.JSON(status, Response{
		Data:     data,
		Metadata: buildMetadata(c),
	})
}

func fail(c *gin.Context, status int, code ErrCode, message string) {
	c.AbortWithStatusJSON(status, Response{
		Error:    &ErrorBody{Code: code, Message: message},
		Metadata: buildMetadata(c),
	})
}

func failWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, banner.ErrInvalidTerm):
		fail(c, http.StatusBadRequest, ErrInvalidTerm, err.Error())
	case errors.Is(err, registry.ErrInvalidWatch):
		fail(c, http.StatusBadRequest, ErrInvalidRequest, err.Error())
	case errors.Is(err, registry.ErrNotFound):
		fail(c, http.StatusNotFound, ErrNotFound, err.Error())
	case errors.Is(err, seatwatch.ErrPermissionDenied):
		fail(c, http.StatusForbidden, ErrPermissionDenied, err.Error())
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrInternal, "internal error")
	}
}

package handler

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// RespondError renders err with the status code of its kind. Errors that are
// not *AppError are treated as store failures and their text is not exposed.
func RespondError(c *gin.Context, err error) {
	appErr := apperrors.As(err)
	if appErr.Kind == apperrors.KindStore {
		_ = c.Error(err)
	}
	c.JSON(appErr.HTTPStatus(), NewErrorResponse(appErr.PublicMessage()))
}

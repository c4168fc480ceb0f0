package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
	"github.com/jwalitptl/careflow-api/pkg/validator"
)

// ContextRequestID is where the request id middleware stores the id
const ContextRequestID = "request_id"

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// RespondError writes err with the status of its kind. Internal details are logged, never returned.
func RespondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal(err)
	}

	status := appErr.Kind.StatusCode()
	if status >= http.StatusInternalServerError {
		log.Ctx(c.Request.Context()).Error().
			Err(err).
			Str("request_id", c.GetString(ContextRequestID)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, NewErrorResponse(appErr.Message))
}

// Bind decodes the JSON body into obj, answering 400 and returning false when it is invalid
func Bind(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondError(c, apperrors.Validation(validator.Message(err)))
		return false
	}
	return true
}

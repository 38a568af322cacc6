package api

import (
	"errors"
	"net/http"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Message string      `json:"message"`
	Code    apperr.Code `json:"code"`
}

func errorBody(err error) (int, ErrorResponse) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Code.HTTPStatus(), ErrorResponse{Message: appErr.Message, Code: appErr.Code}
	}
	return http.StatusInternalServerError, ErrorResponse{Message: "Internal server error", Code: apperr.CodeUnknown}
}

func respondError(c *gin.Context, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, body)
}

func abortWithError(c *gin.Context, err error) {
	status, body := errorBody(err)
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, message string) {
	respondError(c, apperr.InvalidRequest("%s", message))
}

package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"divineconnect/internal/app/apperr"
)

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeError classifies err and answers with the matching status. Internal causes are logged,
// never echoed to the client.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	appErr := apperr.From(err)
	status := apperr.HTTPStatus(appErr.Code)
	c.Set("error_code", appErr.Code)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", "path", c.FullPath(), "code", appErr.Code, "error", err)
	}
	c.JSON(status, errorBody{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details})
}

func badRequest(c *gin.Context, message string) {
	c.Set("error_code", apperr.CodeValidation)
	c.JSON(http.StatusBadRequest, errorBody{Code: apperr.CodeValidation, Message: message})
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, errorBody{Code: apperr.CodeInternal, Message: what + " unavailable"})
}

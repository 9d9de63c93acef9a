package response

import (
	"net/http"

	appErrors "github.com/charlesng35/storefront/pkg/errors"
	"github.com/gin-gonic/gin"
)

// Body is the flat JSON object returned by the storefront API. The front end reads
// top-level keys (success, message, error, valid) directly.
type Body map[string]interface{}

// ErrorBody is the decoded shape of an error response.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// Success writes {"success": true, "message": ...} merged with any extra fields.
func Success(c *gin.Context, statusCode int, message string, extra Body) {
	body := Body{"success": true}
	if message != "" {
		body["message"] = message
	}
	for key, value := range extra {
		if key == "success" {
			continue
		}
		body[key] = value
	}
	c.JSON(statusCode, body)
}

// JSON writes an arbitrary body without adding the success envelope.
func JSON(c *gin.Context, statusCode int, body Body) {
	if body == nil {
		body = Body{}
	}
	c.JSON(statusCode, body)
}

// Error writes a JSON error response derived from an AppError. Internal details are
// never serialised.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorBody{
		Success: false,
		Error:   appErr.Message,
		Code:    appErr.Code,
	})
}

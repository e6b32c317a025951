package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/aiviz/internal/apperrors"
)

// RespondWithError inspects err: if it is an *apperrors.AppError the status
// and flat {code, message, ...details} body are derived from it; anything else
// becomes a generic 500.
func RespondWithError(c *gin.Context, err error) {
	if appErr, ok := apperrors.AsAppError(err); ok {
		c.JSON(appErr.HTTPStatus, appErr.ToBody())
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "INTERNAL_ERROR",
		"message": "internal server error",
	})
}

// RespondOK sends payload as the raw 200 body. The generation endpoints serve
// the model result directly with no envelope; clients depend on that shape.
func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

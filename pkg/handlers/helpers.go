package handlers

import (
	"net/http"

	"agri-analytics-api/pkg/services"

	"github.com/gin-gonic/gin"
)

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}

// respondServiceError は入力エラーを400、それ以外を500として返します。
func respondServiceError(c *gin.Context, err error, message string) {
	if services.IsValidationError(err) {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	_ = c.Error(err)
	respondError(c, http.StatusInternalServerError, message+": "+err.Error())
}

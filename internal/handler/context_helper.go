package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/course-export/pkg/errors"
)

// int64Param reads a positive integer path parameter.
func int64Param(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, name+" must be a positive integer")
	}
	return id, nil
}

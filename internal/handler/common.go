// Package handler exposes the HTTP surface. Handlers bind/validate requests,
// call the service through narrow interfaces, and map error kinds onto
// transport status codes; no domain rule lives here.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/apperr"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/middleware"
)

const dateLayout = "2006-01-02"

// respondServiceError maps the error taxonomy to HTTP statuses. Anything
// outside the taxonomy is a 500 with a generic message.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case apperr.IsKind(err, apperr.NotFound):
		middleware.RespondWithError(c, http.StatusNotFound, err.Error())
	case apperr.IsKind(err, apperr.Forbidden):
		middleware.RespondWithError(c, http.StatusForbidden, err.Error())
	case apperr.IsKind(err, apperr.Validation):
		middleware.RespondWithError(c, http.StatusUnprocessableEntity, err.Error())
	case apperr.IsKind(err, apperr.Conflict):
		middleware.RespondWithError(c, http.StatusConflict, err.Error())
	default:
		middleware.RespondWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}

func parseDate(s string) (time.Time, bool) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

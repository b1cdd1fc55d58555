package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCase binds a sentinel error to the HTTP status and message the
// API reports for it.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// MapError resolves err against the known cases. The boolean reports
// whether a case matched.
func MapError(err error, cases []ErrorCase) (ErrorCase, bool) {
	for _, cs := range cases {
		if cs.Err != nil && errors.Is(err, cs.Err) {
			return cs, true
		}
	}
	return ErrorCase{}, false
}

// RespondWithMappedError writes the response for a usecase error,
// falling back to the supplied status and message when no case matches.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	if cs, ok := MapError(err, cases); ok {
		c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
		return
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

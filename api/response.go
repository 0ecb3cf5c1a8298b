package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aluiziolira/isbn-finder/models"
	"github.com/aluiziolira/isbn-finder/parser"
	"github.com/aluiziolira/isbn-finder/search"
	"github.com/aluiziolira/isbn-finder/store"
	"github.com/gin-gonic/gin"
)

// resultView is the wire form of a stored result.
type resultView struct {
	ISBN         string `json:"isbn"`
	Site         string `json:"site"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	Publisher    string `json:"publisher"`
	Price        string `json:"price"`
	URL          string `json:"url"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func newResultView(r models.SearchResultRecord) resultView {
	return resultView{
		ISBN:         r.ISBN,
		Site:         r.Site,
		Title:        r.Title,
		Author:       r.Author,
		Publisher:    r.Publisher,
		Price:        r.Price,
		URL:          r.URL,
		Status:       string(r.Status),
		ErrorMessage: r.ErrorMessage,
	}
}

func success(c *gin.Context, body gin.H) {
	body["success"] = true
	c.JSON(http.StatusOK, body)
}

func failure(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": message})
}

// fail maps service errors onto status codes. Unexpected errors are logged
// and hidden behind a generic message.
func (h *handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case parser.IsValidationError(err), errors.Is(err, search.ErrUnknownFormat):
		failure(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrSessionNotFound):
		failure(c, http.StatusNotFound, "Session not found")
	case errors.Is(err, search.ErrNoResults):
		failure(c, http.StatusNotFound, "No results found for this session")
	case errors.Is(err, search.ErrShuttingDown):
		failure(c, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.Any("error", err),
		)
		failure(c, http.StatusInternalServerError, "Internal server error")
	}
}

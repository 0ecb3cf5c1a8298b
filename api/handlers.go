package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/aluiziolira/isbn-finder/search"
	"github.com/gin-gonic/gin"
)

type singleRequest struct {
	ISBN string `json:"isbn"`
}

type bulkRequest struct {
	ISBNs []string `json:"isbns"`
}

func (h *handler) searchSingle(c *gin.Context) {
	var req singleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ISBN == "" {
		failure(c, http.StatusBadRequest, "ISBN is required")
		return
	}

	res, err := h.svc.SearchSingle(c.Request.Context(), req.ISBN)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{
		"sessionId": res.SessionID,
		"result":    newResultView(res.Result),
		"found":     res.Found,
	})
}

func (h *handler) searchBulk(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	started, err := h.svc.StartBulk(c.Request.Context(), req.ISBNs)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, bulkView(started))
}

func (h *handler) upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			failure(c, http.StatusRequestEntityTooLarge, "File exceeds the 10MB limit")
			return
		}
		failure(c, http.StatusBadRequest, "No file uploaded")
		return
	}
	if file.Size > MaxUploadBytes {
		failure(c, http.StatusRequestEntityTooLarge, "File exceeds the 10MB limit")
		return
	}

	f, err := file.Open()
	if err != nil {
		h.fail(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()

	started, err := h.svc.StartBulkFromReader(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, bulkView(started))
}

func bulkView(b search.BulkStarted) gin.H {
	return gin.H{
		"sessionId":    b.SessionID,
		"totalItems":   b.TotalItems,
		"validISBNs":   b.ValidISBNs,
		"invalidISBNs": b.InvalidISBNs,
	}
}

func (h *handler) progress(c *gin.Context) {
	p, err := h.svc.Progress(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{
		"status":          p.Status,
		"totalItems":      p.TotalItems,
		"processedItems":  p.ProcessedItems,
		"successfulItems": p.SuccessfulItems,
		"progress":        p.ProgressPercent,
	})
}

func (h *handler) results(c *gin.Context) {
	records, err := h.svc.Results(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	views := make([]resultView, 0, len(records))
	for _, r := range records {
		views = append(views, newResultView(r))
	}
	success(c, gin.H{"results": views})
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *handler) export(c *gin.Context) {
	sessionID := c.Param("sessionId")
	format := c.DefaultQuery("format", "csv")

	var buf bytes.Buffer
	if err := h.svc.Export(c.Request.Context(), sessionID, format, &buf); err != nil {
		h.fail(c, err)
		return
	}

	contentType, ext := "text/csv; charset=utf-8", "csv"
	switch format {
	case "json":
		contentType, ext = "application/x-ndjson", "jsonl"
	case "xlsx":
		contentType, ext = xlsxContentType, "xlsx"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=isbn-results-%s.%s", sessionID, ext))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (h *handler) siteStatus(c *gin.Context) {
	success(c, gin.H{"sites": h.svc.SiteStatus(c.Request.Context())})
}

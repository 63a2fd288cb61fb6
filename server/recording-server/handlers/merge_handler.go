package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/legendsaurav/scramer/server/core/ccc/logging"
	"github.com/legendsaurav/scramer/server/core/merging"
	"github.com/legendsaurav/scramer/server/core/segments"
)

const defaultHistoryLimit = 20

// Merger runs merges and reports their history
type Merger interface {
	Merge(ctx context.Context, b segments.Bucket) (*merging.MergeResult, error)
	History(ctx context.Context, project string, limit int) ([]*merging.MergeRun, error)
}

// MergeHandler handles merge requests and merge history queries
type MergeHandler struct {
	logger logging.Logger
	merger Merger
}

// NewMergeHandler creates a new merge handler
func NewMergeHandler(logger logging.Logger, merger Merger) *MergeHandler {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &MergeHandler{
		logger: logger,
		merger: merger,
	}
}

// MergeRequest represents the JSON body of a merge request
type MergeRequest struct {
	ProjectID string `json:"projectId"`
	Tool      string `json:"tool"`
	Date      string `json:"date"`
}

// Merge handles POST /merge
func (h *MergeHandler) Merge(c *gin.Context) {
	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, NewInvalidRequestError("Invalid request body: "+err.Error()))
		return
	}

	bucket := segments.LookupBucket(req.ProjectID, req.Tool, req.Date)
	if !bucket.IsComplete() {
		respondError(c, h.logger, NewInvalidRequestError("projectId, tool and date are required"))
		return
	}

	// a merge that has started finishes even if the client goes away
	ctx := context.WithoutCancel(c.Request.Context())

	result, err := h.merger.Merge(ctx, bucket)
	if err != nil {
		if merging.IsVariantsFailedError(err) && result != nil {
			h.logger.Error("Merge finished with failed variants", "bucket", bucket.String(), "failed", len(result.Failed))
			c.JSON(http.StatusInternalServerError, gin.H{
				"ok":      false,
				"error":   err.Error(),
				"outputs": result.Outputs,
				"failed":  result.Failed,
			})
			return
		}
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"outputs":  result.Outputs,
		"strategy": result.Strategy,
		"runId":    result.RunID,
	})
}

// ListMerges handles GET /merges
func (h *MergeHandler) ListMerges(c *gin.Context) {
	project := c.Query("projectId")
	if project == "" {
		respondError(c, h.logger, NewInvalidRequestError("Missing projectId"))
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(c, h.logger, NewInvalidRequestError("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	runs, err := h.merger.History(c.Request.Context(), project, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "merges": runs})
}

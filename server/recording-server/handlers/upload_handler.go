package handlers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/legendsaurav/scramer/server/core/ccc/logging"
	"github.com/legendsaurav/scramer/server/core/segments"
	"github.com/legendsaurav/scramer/server/recording-server/utils"
)

// SegmentSaver persists one uploaded segment
type SegmentSaver interface {
	SaveSegment(ctx context.Context, req segments.SaveRequest) (*segments.StoredSegment, error)
}

// UploadOptions tunes request checks done before a segment reaches the store
type UploadOptions struct {
	// ValidateContainer rejects payloads whose magic bytes are not a known video container
	ValidateContainer bool
	// MaxBytes bounds the request body; zero means unlimited
	MaxBytes int64
}

// UploadHandler handles segment uploads
type UploadHandler struct {
	logger logging.Logger
	store  SegmentSaver
	opts   UploadOptions
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(logger logging.Logger, store SegmentSaver, opts UploadOptions) *UploadHandler {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &UploadHandler{
		logger: logger,
		store:  store,
		opts:   opts,
	}
}

// UploadSegmentRequest represents the optional form fields sent with a segment
type UploadSegmentRequest struct {
	ProjectID string `form:"projectId"`
	Tool      string `form:"tool"`
	Date      string `form:"date"`
	Segment   string `form:"segment"`
}

// UploadSegment handles POST /upload
func (h *UploadHandler) UploadSegment(c *gin.Context) {
	if h.opts.MaxBytes > 0 {
		if c.Request.ContentLength > h.opts.MaxBytes {
			respondError(c, h.logger, &http.MaxBytesError{Limit: h.opts.MaxBytes})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxBytes)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, h.logger, err)
			return
		}
		respondError(c, h.logger, NewMissingFileError("file"))
		return
	}

	// the multipart form is parsed by now, so binding cannot fail on the body
	var req UploadSegmentRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, h.logger, NewInvalidRequestError("Invalid form data: "+err.Error()))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, h.logger, fmt.Errorf("failed to open uploaded file: %w", err))
		return
	}
	defer file.Close()

	var data io.Reader = file
	if h.opts.ValidateContainer {
		buffered := bufio.NewReaderSize(file, utils.MagicHeaderSize)
		header, _ := buffered.Peek(utils.MagicHeaderSize)

		isVideo, format, err := utils.IsVideoFile(header)
		if err != nil || !isVideo {
			h.logger.Warn("Uploaded file is not a video", "filename", fileHeader.Filename)
			respondError(c, h.logger, NewInvalidRequestError("Uploaded file is not a valid video format"))
			return
		}
		h.logger.Debug("Video container validated", "format", format, "filename", fileHeader.Filename)
		data = buffered
	}

	stored, err := h.store.SaveSegment(c.Request.Context(), segments.SaveRequest{
		Project:       req.ProjectID,
		Tool:          req.Tool,
		Date:          req.Date,
		Discriminator: req.Segment,
		Extension:     filepath.Ext(fileHeader.Filename),
		Data:          data,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"filename":  stored.Filename,
		"path":      stored.Path,
		"size":      stored.Size,
		"projectId": stored.Bucket.Project,
		"tool":      stored.Bucket.Tool,
		"date":      stored.Bucket.Date,
	})
}

package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/legendsaurav/scramer/server/core/ccc/logging"
	"github.com/legendsaurav/scramer/server/core/segments"
)

// RenditionHandler serves merged renditions from the storage tree. Segments,
// manifests and lock files in the same directories are never exposed.
type RenditionHandler struct {
	logger logging.Logger
	root   string
}

// NewRenditionHandler creates a handler serving files below root
func NewRenditionHandler(logger logging.Logger, root string) *RenditionHandler {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &RenditionHandler{
		logger: logger,
		root:   root,
	}
}

// ServeRendition handles GET <prefix>/:project/:tool/:date/:file
func (h *RenditionHandler) ServeRendition(c *gin.Context) {
	project, tool, date, file := c.Param("project"), c.Param("tool"), c.Param("date"), c.Param("file")

	// only names an upload could have produced are looked up
	bucket := segments.LookupBucket(project, tool, date)
	if !bucket.IsComplete() || bucket.Project != project || bucket.Tool != tool || bucket.Date != date {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	if _, ok := segments.ClassifyOutput(file); !ok {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	path := filepath.Join(h.root, bucket.RelPath(), file)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	h.logger.Debug("Serving rendition", "path", path)
	c.File(path)
}

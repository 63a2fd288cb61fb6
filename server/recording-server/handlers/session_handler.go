package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/legendsaurav/scramer/server/core/ccc/logging"
	"github.com/legendsaurav/scramer/server/core/sessions"
)

// SessionLister reports finished renditions of a project
type SessionLister interface {
	List(project string) ([]sessions.Session, error)
}

// SessionHandler handles session listing requests
type SessionHandler struct {
	logger logging.Logger
	lister SessionLister
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(logger logging.Logger, lister SessionLister) *SessionHandler {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &SessionHandler{
		logger: logger,
		lister: lister,
	}
}

// ListSessions handles GET /sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	project := c.Query("projectId")
	if project == "" {
		respondError(c, h.logger, NewInvalidRequestError("Missing projectId"))
		return
	}

	list, err := h.lister.List(project)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "sessions": list})
}

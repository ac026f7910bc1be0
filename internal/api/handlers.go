package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"drivebot/internal/auth"
	"drivebot/internal/drive"
	"drivebot/internal/logger"
	"drivebot/internal/models"
)

const (
	module          = "API"
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// FolderSource exposes the bot's current upload folder.
type FolderSource interface {
	Current() (models.Folder, bool)
}

// Drive is the part of the drive index the admin API reads and writes.
type Drive interface {
	ListFolder(ctx context.Context, path string) ([]*models.Item, error)
	Search(ctx context.Context, query string) (map[string]*models.Item, error)
	NewFolder(ctx context.Context, parentPath, name string) (*models.Item, error)
}

// LogSource returns recent log entries.
type LogSource interface {
	Tail(level string, limit int) ([]logger.LogEntry, error)
}

// Handler wires HTTP routes to the drive index and the bot session.
type Handler struct {
	session FolderSource
	drive   Drive
	auth    *auth.Service
	logs    LogSource
	logger  logger.ILogger
}

func NewHandler(session FolderSource, drv Drive, authSvc *auth.Service, logs LogSource, log logger.ILogger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		session: session,
		drive:   drv,
		auth:    authSvc,
		logs:    logs,
		logger:  log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.health)

	api := router.Group("/api")
	api.Use(h.auth.Middleware())
	{
		api.GET("/folder", h.currentFolder)
		api.GET("/items", h.listItems)
		api.GET("/items/search", h.searchItems)
		api.POST("/folders", h.createFolder)
		api.GET("/logs", h.tailLogs)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) currentFolder(c *gin.Context) {
	folder, ok := h.session.Current()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"folder": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"folder": folder})
}

func (h *Handler) listItems(c *gin.Context) {
	path := c.DefaultQuery("path", drive.RootPath)
	items, err := h.drive.ListFolder(c.Request.Context(), path)
	if err != nil {
		if errors.Is(err, drive.ErrFolderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "folder not found"})
			return
		}
		h.internalError(c, "list folder failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "items": items})
}

func (h *Handler) searchItems(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	found, err := h.drive.Search(c.Request.Context(), query)
	if err != nil {
		h.internalError(c, "search failed", err)
		return
	}
	items := make([]*models.Item, 0, len(found))
	for _, item := range found {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
	c.JSON(http.StatusOK, gin.H{"query": query, "items": items})
}

type createFolderRequest struct {
	ParentPath string `json:"parent_path"`
	Name       string `json:"name"`
}

func (h *Handler) createFolder(c *gin.Context) {
	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if req.ParentPath == "" {
		req.ParentPath = drive.RootPath
	}
	item, err := h.drive.NewFolder(c.Request.Context(), req.ParentPath, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, drive.ErrEmptyName):
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		case errors.Is(err, drive.ErrFolderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "parent folder not found"})
		default:
			h.internalError(c, "create folder failed", err)
		}
		return
	}
	h.logger.Info(module, "folder created", map[string]interface{}{
		"id":   item.ID,
		"path": item.FullPath(),
	})
	c.JSON(http.StatusCreated, gin.H{"folder": item})
}

func (h *Handler) tailLogs(c *gin.Context) {
	if h.logs == nil {
		c.JSON(http.StatusOK, gin.H{"logs": []logger.LogEntry{}})
		return
	}
	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	level := strings.ToUpper(strings.TrimSpace(c.Query("level")))
	entries, err := h.logs.Tail(level, limit)
	if err != nil {
		h.internalError(c, "read logs failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries})
}

func (h *Handler) internalError(c *gin.Context, message string, err error) {
	h.logger.Error(module, message, map[string]interface{}{
		"path":  c.FullPath(),
		"error": err.Error(),
	})
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}

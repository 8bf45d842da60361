package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/folderstore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/folderstore/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/folderstore/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/folderstore/internal/providers/filesystem"
)

// multipartSlack is the framing allowance on top of MaxUploadBytes when
// capping a multipart request body
const multipartSlack = 1 << 20

// Options tunes request handling
type Options struct {
	// MaxUploadBytes caps upload request bodies; 0 disables the cap
	MaxUploadBytes int64
	// DefaultFormat is used for folder downloads without ?format=
	DefaultFormat filesystem.Format
	// WriteGuard, when set, wraps every upload and is expected to trip on
	// disk-full errors
	WriteGuard *resilience.Breaker
}

// Handlers contains all HTTP handlers
type Handlers struct {
	store   *filesystem.Provider
	tracer  *tracing.Tracer
	metrics *monitoring.Metrics
	logger  *zap.Logger
	opts    Options
}

// NewHandlers creates a new handler set. metrics may be nil.
func NewHandlers(
	store *filesystem.Provider,
	tracer *tracing.Tracer,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
	opts Options,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultFormat == "" {
		opts.DefaultFormat = filesystem.FormatZip
	}
	return &Handlers{
		store:   store,
		tracer:  tracer,
		metrics: metrics,
		logger:  logger.Named("http"),
		opts:    opts,
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	// Folders
	r.POST("/createFolder", h.CreateFolder)
	r.POST("/deleteFolder", h.DeleteFolder)
	r.GET("/allFolders", h.ListFolders)
	r.GET("/folders/:folder", h.ListFiles)

	// Files
	r.POST("/upload/:folder", h.UploadFile)
	r.DELETE("/deleteFile/:folder/:filename", h.DeleteFile)
	r.PUT("/renameFile/:folder/:oldFileName", h.RenameFile)
	r.GET("/download/:folder/:filename", h.DownloadFile)

	// Folder transfer
	r.GET("/download/:folder", h.DownloadFolder)
	r.POST("/uploadFolder/:folder", h.UploadFolder)
}

// Root handles the liveness check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "folderstore",
	})
}

// Health reports the storage root and current counters
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status": "healthy",
		"storage": gin.H{
			"root": h.store.Root(),
		},
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// guardWrite runs fn through the write guard, if any
func (h *Handlers) guardWrite(fn func() error) error {
	if h.opts.WriteGuard == nil {
		return fn()
	}
	return h.opts.WriteGuard.Do(fn)
}

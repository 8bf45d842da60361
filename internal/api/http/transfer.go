package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/folderstore/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/folderstore/internal/providers/filesystem"
)

// DownloadFolder packs a folder into an archive and streams it as
// "<folder>.<ext>". The format comes from ?format= or the configured default.
func (h *Handlers) DownloadFolder(c *gin.Context) {
	folder := c.Param("folder")

	format := h.opts.DefaultFormat
	if q := c.Query("format"); q != "" {
		f, err := filesystem.ParseFormat(q)
		if err != nil {
			h.badRequest(c, codeInvalidFormat, err)
			return
		}
		format = f
	}

	err := h.tracer.Trace(c.Request.Context(), "transfer.download", func(ctx context.Context, span *tracing.Span) error {
		span.SetTag("folder", folder)
		span.SetTag("format", string(format))

		return h.store.Transfers.Download(ctx, folder, format, func(a *filesystem.Archive) error {
			c.Header("Content-Type", a.ContentType)
			c.Header("Content-Disposition", attachment(a.Name))
			w := &errWriter{ResponseWriter: c.Writer}
			http.ServeContent(w, c.Request, a.Name, a.Created, a.Content)
			if w.err != nil {
				return w.err
			}
			return c.Request.Context().Err()
		})
	})
	if err == nil {
		return
	}
	if c.Writer.Written() {
		// headers are gone; the client sees a truncated body
		_ = c.Error(err)
		h.logger.Warn("folder download interrupted", zap.String("folder", folder), zap.Error(err))
		return
	}
	h.fail(c, "download_folder", err)
}

// UploadFolder extracts the archive in multipart field "folder" into the
// folder, creating it when missing and overwriting existing files
func (h *Handlers) UploadFolder(c *gin.Context) {
	folder := c.Param("folder")

	part, err := h.formPart(c, "folder")
	if err != nil {
		h.partError(c, "folder", err)
		return
	}
	defer part.Close()

	var result *filesystem.UploadResult
	err = h.tracer.Trace(c.Request.Context(), "transfer.upload", func(ctx context.Context, span *tracing.Span) error {
		span.SetTag("folder", folder)

		return h.guardWrite(func() error {
			var err error
			result, err = h.store.Transfers.Upload(ctx, folder, part)
			if result != nil {
				span.SetTag("format", string(result.Format))
			}
			return err
		})
	})
	if err != nil {
		h.fail(c, "upload_folder", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Folder uploaded and extracted successfully",
		"folder":   result.Folder,
		"format":   result.Format,
		"received": result.Received,
		"stats":    result.Stats,
	})
}

// errWriter keeps the first write error, which http.ServeContent discards
type errWriter struct {
	http.ResponseWriter
	err error
}

func (w *errWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	if err != nil && w.err == nil {
		w.err = err
	}
	return n, err
}

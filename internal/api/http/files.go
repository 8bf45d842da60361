package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/folderstore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/folderstore/internal/providers/filesystem"
)

// UploadFile stores the multipart field "file" in the folder under a
// time-prefixed name
func (h *Handlers) UploadFile(c *gin.Context) {
	folder := c.Param("folder")

	part, err := h.formPart(c, "file")
	if err != nil {
		h.partError(c, "file", err)
		return
	}
	defer part.Close()

	timer := monitoring.NewTimer(h.metrics, "upload_file")
	var stored string
	err = h.guardWrite(func() error {
		var err error
		stored, err = h.store.Files.SaveUploadedFile(c.Request.Context(), folder, part.FileName(), part)
		return err
	})
	timer.Stop(codeOf(err))
	if err != nil {
		h.fail(c, "upload_file", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "File uploaded successfully!",
		"folder":  folder,
		"file":    stored,
	})
}

// DeleteFile removes one file from a folder
func (h *Handlers) DeleteFile(c *gin.Context) {
	timer := monitoring.NewTimer(h.metrics, "delete_file")
	err := h.store.Files.DeleteFile(c.Request.Context(), c.Param("folder"), c.Param("filename"))
	timer.Stop(filesystem.Code(err))
	if err != nil {
		h.fail(c, "delete_file", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "File deleted successfully"})
}

// RenameFile renames a file within its folder
func (h *Handlers) RenameFile(c *gin.Context) {
	folder := c.Param("folder")
	oldName := c.Param("oldFileName")

	var req struct {
		NewFileName string `json:"newFileName" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, codeBadRequest, err)
		return
	}

	timer := monitoring.NewTimer(h.metrics, "rename_file")
	err := h.store.Files.RenameFile(c.Request.Context(), folder, oldName, req.NewFileName)
	timer.Stop(filesystem.Code(err))
	if err != nil {
		h.fail(c, "rename_file", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "File renamed successfully",
		"folder":      folder,
		"oldFileName": oldName,
		"newFileName": req.NewFileName,
	})
}

// DownloadFile streams one stored file as an attachment. Range and
// conditional requests are honored.
func (h *Handlers) DownloadFile(c *gin.Context) {
	timer := monitoring.NewTimer(h.metrics, "download_file")
	f, err := h.store.Files.OpenFile(c.Request.Context(), c.Param("folder"), c.Param("filename"))
	timer.Stop(filesystem.Code(err))
	if err != nil {
		h.fail(c, "download_file", err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", f.ContentType)
	c.Header("Content-Disposition", attachment(f.Name))
	http.ServeContent(c.Writer, c.Request, f.Name, f.Modified, f.Content)
}

// formPart caps the request body and returns the first multipart part named
// field. Parts before it are skipped.
func (h *Handlers) formPart(c *gin.Context, field string) (*multipart.Part, error) {
	if h.opts.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes+multipartSlack)
	}

	mr, err := c.Request.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == field {
			return part, nil
		}
		part.Close()
	}
}

// partError reports a request whose multipart body could not be read. field
// names the part that was expected.
func (h *Handlers) partError(c *gin.Context, field string, err error) {
	status, _ := classify(err)
	if status == http.StatusRequestEntityTooLarge {
		h.fail(c, "receive", err)
		return
	}
	if errors.Is(err, io.EOF) {
		err = fmt.Errorf("%w: %q", errMissingPart, field)
	}
	h.badRequest(c, codeBadRequest, err)
}

// codeOf is filesystem.Code that also knows about request body caps
func codeOf(err error) string {
	if err == nil {
		return "ok"
	}
	_, code := classify(err)
	return code
}

func attachment(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}

package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/folderstore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/folderstore/internal/providers/filesystem"
)

type folderRequest struct {
	FolderName string `json:"folderName" binding:"required"`
}

// CreateFolder creates an empty top-level folder
func (h *Handlers) CreateFolder(c *gin.Context) {
	var req folderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, codeBadRequest, err)
		return
	}

	timer := monitoring.NewTimer(h.metrics, "create_folder")
	err := h.store.Directories.CreateFolder(c.Request.Context(), req.FolderName)
	timer.Stop(filesystem.Code(err))
	if err != nil {
		h.fail(c, "create_folder", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Folder created successfully"})
}

// DeleteFolder removes a folder and everything in it
func (h *Handlers) DeleteFolder(c *gin.Context) {
	var req folderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, codeBadRequest, err)
		return
	}

	timer := monitoring.NewTimer(h.metrics, "delete_folder")
	err := h.store.Directories.DeleteFolder(c.Request.Context(), req.FolderName)
	timer.Stop(filesystem.Code(err))
	if err != nil {
		h.fail(c, "delete_folder", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Folder deleted successfully"})
}

// ListFolders lists every folder with its direct children, optionally
// filtered by the ?match= glob
func (h *Handlers) ListFolders(c *gin.Context) {
	timer := monitoring.NewTimer(h.metrics, "list_folders")
	folders, err := h.store.Directories.ListFolders(c.Request.Context(), c.Query("match"))
	timer.Stop(filesystem.Code(err))
	if err != nil {
		h.fail(c, "list_folders", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"folders": folders})
}

// ListFiles returns metadata for the entries of one folder
func (h *Handlers) ListFiles(c *gin.Context) {
	folder := c.Param("folder")

	timer := monitoring.NewTimer(h.metrics, "list_files")
	files, err := h.store.Directories.ListFiles(c.Request.Context(), folder)
	timer.Stop(filesystem.Code(err))
	if err != nil {
		h.fail(c, "list_files", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"folder": folder, "files": files})
}

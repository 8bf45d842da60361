package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/folderstore/internal/infrastructure/monitoring"
)

// Kind distinguishes walker and archive entries
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// Format is a supported folder archive encoding
type Format string

const (
	FormatZip    Format = "zip"
	FormatTar    Format = "tar"
	FormatTarGz  Format = "tar.gz"
	FormatTarZst Format = "tar.zst"
)

// ParseFormat maps a user-supplied format name to a Format.
// The empty string selects zip.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "zip":
		return FormatZip, nil
	case "tar":
		return FormatTar, nil
	case "tar.gz", "tgz":
		return FormatTarGz, nil
	case "tar.zst", "tzst":
		return FormatTarZst, nil
	default:
		return "", fmt.Errorf("unsupported archive format %q", s)
	}
}

// Extension returns the file extension without the leading dot
func (f Format) Extension() string {
	return string(f)
}

// ContentType returns the MIME type served for the format
func (f Format) ContentType() string {
	switch f {
	case FormatTar:
		return "application/x-tar"
	case FormatTarGz:
		return "application/gzip"
	case FormatTarZst:
		return "application/zstd"
	default:
		return "application/zip"
	}
}

// FolderListing is one top-level folder and the names directly inside it
type FolderListing struct {
	Folder string   `json:"folder"`
	Files  []string `json:"files"`
}

// FileInfo represents file metadata
type FileInfo struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	IsDir       bool      `json:"is_dir"`
	Modified    time.Time `json:"modified"`
	ContentType string    `json:"content_type,omitempty"`
}

// ArchiveStats summarizes one pack or unpack run
type ArchiveStats struct {
	Files   int   `json:"files"`
	Dirs    int   `json:"dirs"`
	Bytes   int64 `json:"bytes"`
	Skipped int   `json:"skipped,omitempty"`
}

// FilesystemOps provides the state shared by every operation group: the
// storage root, its scratch directory and the ambient logger and metrics.
type FilesystemOps struct {
	Root       string
	ScratchDir string
	Logger     *zap.Logger
	Metrics    *monitoring.Metrics

	paths *Sanitizer
}

// NewFilesystemOps resolves root to an absolute path and creates both the
// root and the scratch directory when missing.
func NewFilesystemOps(root, scratchDir string, logger *zap.Logger) (*FilesystemOps, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	paths, err := NewSanitizer(root)
	if err != nil {
		return nil, err
	}
	if _, err := paths.Segment(scratchDir); err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}

	ops := &FilesystemOps{
		Root:       paths.Root(),
		ScratchDir: scratchDir,
		Logger:     logger,
		paths:      paths,
	}
	if err := os.MkdirAll(ops.scratchPath(), 0o755); err != nil {
		return nil, newError("init", ops.Root, ErrIO, err)
	}
	return ops, nil
}

// WithMetrics adds transfer metrics tracking
func (ops *FilesystemOps) WithMetrics(metrics *monitoring.Metrics) *FilesystemOps {
	ops.Metrics = metrics
	return ops
}

func (ops *FilesystemOps) scratchPath() string {
	return filepath.Join(ops.Root, ops.ScratchDir)
}

// folderPath sanitizes a folder name. The scratch directory is never a
// valid folder.
func (ops *FilesystemOps) folderPath(op, name string) (string, error) {
	path, err := ops.paths.Segment(name)
	if err != nil {
		return "", wrapError(op, name, err)
	}
	if name == ops.ScratchDir {
		return "", newError(op, name, ErrInvalidPath, fmt.Errorf("reserved name"))
	}
	return path, nil
}

// filePath sanitizes a folder name and a file name inside it
func (ops *FilesystemOps) filePath(op, folder, filename string) (string, error) {
	dir, err := ops.folderPath(op, folder)
	if err != nil {
		return "", err
	}
	path, err := SanitizeSegment(dir, filename)
	if err != nil {
		return "", wrapError(op, folder+"/"+filename, err)
	}
	return path, nil
}

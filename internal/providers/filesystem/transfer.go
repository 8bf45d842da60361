package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/folderstore/internal/shared/id"
)

// Transfer phases, logged at debug level as each flow advances
const (
	phasePacking    = "packing"
	phaseStreaming  = "streaming"
	phaseReceiving  = "receiving"
	phaseExtracting = "extracting"
	phaseCleaningUp = "cleaning_up"
)

var (
	errEmptyUpload = errors.New("archive is empty")
	errUploadLimit = errors.New("upload exceeds the size limit")
)

// TransferOps moves whole folders in and out of the store as archives. Each
// call owns one temporary artifact in the scratch directory and removes it
// on every exit path.
type TransferOps struct {
	*FilesystemOps

	Archives *ArchivesOps
	// MaxUploadBytes caps the archive size Upload accepts; 0 is unlimited
	MaxUploadBytes int64
}

// Archive is a packed folder ready to be streamed
type Archive struct {
	// Name is the suggested download file name, "<folder>.<ext>"
	Name        string
	Folder      string
	Format      Format
	ContentType string
	Size        int64
	Created     time.Time
	Stats       *ArchiveStats
	// Content is positioned at the start of the archive and is only valid
	// until the stream callback returns
	Content io.ReadSeeker
}

// UploadResult describes an extracted upload
type UploadResult struct {
	Folder   string        `json:"folder"`
	Format   Format        `json:"format"`
	Received int64         `json:"received"`
	Stats    *ArchiveStats `json:"stats"`
}

// artifact is the request-unique scratch file of one transfer
type artifact struct {
	id   id.ArtifactID
	path string
	file *os.File
}

// Download packs folder into a temporary archive and hands it to stream.
// The artifact is deleted after stream returns, whether packing, streaming
// or neither failed, and also when ctx is cancelled mid-flow.
func (t *TransferOps) Download(ctx context.Context, folder string, format Format, stream func(*Archive) error) (err error) {
	start := time.Now()
	var size int64
	defer func() { t.record("download", format, err, start, size) }()

	src, err := t.folderPath("download", folder)
	if err != nil {
		return err
	}

	art, err := t.newArtifact(format.Extension())
	if err != nil {
		return err
	}
	log := t.Logger.With(
		zap.String("folder", folder),
		zap.String("format", string(format)),
		zap.String("artifact", art.id.String()),
	)
	defer t.cleanup(art, log)

	log.Debug("transfer phase", zap.String("phase", phasePacking))
	stats, err := t.Archives.Pack(ctx, src, folder, format, art.file)
	if err != nil {
		return err
	}

	size, err = art.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return newError("download", folder, ErrIO, err)
	}
	if _, err := art.file.Seek(0, io.SeekStart); err != nil {
		return newError("download", folder, ErrIO, err)
	}

	log.Debug("transfer phase", zap.String("phase", phaseStreaming), zap.Int64("size", size))
	archive := &Archive{
		Name:        folder + "." + format.Extension(),
		Folder:      folder,
		Format:      format,
		ContentType: format.ContentType(),
		Size:        size,
		Created:     start,
		Stats:       stats,
		Content:     art.file,
	}
	if err := stream(archive); err != nil {
		return wrapError("download", folder, err)
	}

	log.Info("folder downloaded",
		zap.Int64("size", size),
		zap.Int("files", stats.Files),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// DownloadBytes packs folder and returns the whole archive in memory along
// with the suggested file name.
func (t *TransferOps) DownloadBytes(ctx context.Context, folder string, format Format) ([]byte, string, error) {
	var (
		data []byte
		name string
	)
	err := t.Download(ctx, folder, format, func(a *Archive) error {
		var err error
		data, err = io.ReadAll(a.Content)
		name = a.Name
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return data, name, nil
}

// Upload stores the archive read from r in a temporary artifact, detects its
// format and extracts it into the folder, creating the folder if needed.
// Existing files are overwritten. When extraction fails, entries written
// before the failure stay in place.
func (t *TransferOps) Upload(ctx context.Context, folder string, r io.Reader) (result *UploadResult, err error) {
	start := time.Now()
	var (
		received int64
		format   Format
	)
	defer func() { t.record("upload", format, err, start, received) }()

	dest, err := t.folderPath("upload", folder)
	if err != nil {
		return nil, err
	}

	art, err := t.newArtifact("upload")
	if err != nil {
		return nil, err
	}
	log := t.Logger.With(zap.String("folder", folder), zap.String("artifact", art.id.String()))
	defer t.cleanup(art, log)

	log.Debug("transfer phase", zap.String("phase", phaseReceiving))
	received, err = t.receive(ctx, art.file, r)
	if err != nil {
		return nil, wrapError("upload", folder, err)
	}

	format, err = DetectFormat(io.NewSectionReader(art.file, 0, received))
	if err != nil {
		return nil, err
	}

	log.Debug("transfer phase",
		zap.String("phase", phaseExtracting),
		zap.String("format", string(format)),
		zap.Int64("size", received),
	)
	stats, err := t.Archives.Unpack(ctx, art.file, received, format, dest)
	if err != nil {
		log.Warn("extraction failed; files extracted so far were kept", zap.Error(err))
		return nil, err
	}

	log.Info("folder uploaded",
		zap.String("format", string(format)),
		zap.Int64("size", received),
		zap.Int("files", stats.Files),
		zap.Duration("duration", time.Since(start)),
	)
	return &UploadResult{
		Folder:   folder,
		Format:   format,
		Received: received,
		Stats:    stats,
	}, nil
}

func (t *TransferOps) receive(ctx context.Context, dst io.Writer, r io.Reader) (int64, error) {
	src := &contextReader{ctx: ctx, r: r}
	var limited io.Reader = src
	if t.MaxUploadBytes > 0 {
		limited = io.LimitReader(src, t.MaxUploadBytes+1)
	}

	n, err := io.Copy(dst, limited)
	if err != nil {
		return n, newError("receive", "", ErrIO, err)
	}
	if t.MaxUploadBytes > 0 && n > t.MaxUploadBytes {
		return n, newError("receive", "", ErrTooLarge, errUploadLimit)
	}
	if n == 0 {
		return 0, newError("receive", "", ErrUnpack, errEmptyUpload)
	}
	return n, nil
}

// newArtifact creates a uniquely named file in the scratch directory
func (t *TransferOps) newArtifact(ext string) (*artifact, error) {
	aid := id.NewArtifactID()
	path := filepath.Join(t.scratchPath(), fmt.Sprintf("%s.%s", aid, ext))

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, newError("artifact", aid.String(), ErrIO, err)
	}
	if t.Metrics != nil {
		t.Metrics.IncArtifactsActive()
	}
	return &artifact{id: aid, path: path, file: f}, nil
}

// cleanup removes the artifact. Failures are logged and counted, never
// returned, so they cannot replace the error that ended the transfer.
func (t *TransferOps) cleanup(a *artifact, log *zap.Logger) {
	log.Debug("transfer phase", zap.String("phase", phaseCleaningUp))

	if err := a.file.Close(); err != nil && !errors.Is(err, fs.ErrClosed) {
		log.Warn("failed to close artifact", zap.String("path", a.path), zap.Error(err))
	}
	if err := os.Remove(a.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Error("failed to remove artifact", zap.String("path", a.path), zap.Error(err))
		if t.Metrics != nil {
			t.Metrics.IncCleanupFailures()
		}
	}
	if t.Metrics != nil {
		t.Metrics.DecArtifactsActive()
	}
}

func (t *TransferOps) record(direction string, format Format, err error, start time.Time, size int64) {
	if t.Metrics == nil {
		return
	}
	label := string(format)
	if label == "" {
		label = "unknown"
	}
	t.Metrics.RecordTransfer(direction, label, Code(err), time.Since(start), size)
}

// contextReader stops a copy once ctx is done, so an abandoned upload does
// not keep draining the request body.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/folderstore/internal/shared/id"
)

// BasicOps handles single files inside a folder
type BasicOps struct {
	*FilesystemOps

	// Now stamps stored upload names; defaults to time.Now
	Now func() time.Time
}

// File is an open stored file
type File struct {
	FileInfo
	Content *os.File
}

// Close releases the file handle
func (f *File) Close() error {
	return f.Content.Close()
}

// StoredName returns the name an upload called filename is stored under:
// the client's base name prefixed with the upload time in milliseconds.
func (b *BasicOps) StoredName(filename string) (string, error) {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if err := validateSegment(base); err != nil {
		return "", newError("sanitize", filename, ErrInvalidPath, err)
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return fmt.Sprintf("%d-%s", now().UnixMilli(), base), nil
}

// SaveUploadedFile stores r in folder, creating the folder when missing, and
// returns the stored name. The content is written to the scratch directory
// first and renamed into place, so a failed upload leaves nothing behind.
func (b *BasicOps) SaveUploadedFile(ctx context.Context, folder, filename string, r io.Reader) (string, error) {
	stored, err := b.StoredName(filename)
	if err != nil {
		return "", err
	}
	target, err := b.filePath("save_file", folder, stored)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", wrapError("save_file", folder, err)
	}

	partial := filepath.Join(b.scratchPath(), id.NewArtifactID().String()+".part")
	f, err := os.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", wrapError("save_file", folder, err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := os.Remove(partial); err != nil && !errors.Is(err, fs.ErrNotExist) {
			b.Logger.Error("failed to remove partial upload", zap.String("path", partial), zap.Error(err))
		}
	}()

	n, err := io.Copy(f, &contextReader{ctx: ctx, r: r})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", newError("save_file", folder+"/"+stored, ErrIO, err)
	}
	if err := os.Rename(partial, target); err != nil {
		return "", wrapError("save_file", folder+"/"+stored, err)
	}
	committed = true

	b.Logger.Info("file uploaded",
		zap.String("folder", folder),
		zap.String("file", stored),
		zap.Int64("size", n),
	)
	return stored, nil
}

// DeleteFile removes one file from a folder
func (b *BasicOps) DeleteFile(ctx context.Context, folder, filename string) error {
	target, err := b.filePath("delete_file", folder, filename)
	if err != nil {
		return err
	}
	info, err := os.Lstat(target)
	if err != nil {
		return wrapError("delete_file", folder+"/"+filename, err)
	}
	if info.IsDir() {
		return newError("delete_file", folder+"/"+filename, ErrInvalidPath, fmt.Errorf("is a directory"))
	}
	if err := ctx.Err(); err != nil {
		return newError("delete_file", folder+"/"+filename, ErrIO, err)
	}
	if err := os.Remove(target); err != nil {
		return wrapError("delete_file", folder+"/"+filename, err)
	}
	b.Logger.Info("file deleted", zap.String("folder", folder), zap.String("file", filename))
	return nil
}

// RenameFile renames a file within its folder. An existing file named
// newName is replaced.
func (b *BasicOps) RenameFile(ctx context.Context, folder, oldName, newName string) error {
	from, err := b.filePath("rename_file", folder, oldName)
	if err != nil {
		return err
	}
	to, err := b.filePath("rename_file", folder, newName)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(from); err != nil {
		return wrapError("rename_file", folder+"/"+oldName, err)
	}
	if from == to {
		return nil
	}
	if info, err := os.Lstat(to); err == nil && info.IsDir() {
		return newError("rename_file", folder+"/"+newName, ErrAlreadyExists, fmt.Errorf("a directory has that name"))
	}
	if err := ctx.Err(); err != nil {
		return newError("rename_file", folder+"/"+oldName, ErrIO, err)
	}
	if err := os.Rename(from, to); err != nil {
		return wrapError("rename_file", folder+"/"+oldName, err)
	}
	b.Logger.Info("file renamed",
		zap.String("folder", folder),
		zap.String("from", oldName),
		zap.String("to", newName),
	)
	return nil
}

// OpenFile opens a stored file for reading and sniffs its content type.
// The caller must Close the result.
func (b *BasicOps) OpenFile(ctx context.Context, folder, filename string) (*File, error) {
	target, err := b.filePath("open_file", folder, filename)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, newError("open_file", folder+"/"+filename, ErrIO, err)
	}

	f, err := os.Open(target)
	if err != nil {
		return nil, wrapError("open_file", folder+"/"+filename, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, wrapError("open_file", folder+"/"+filename, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, newError("open_file", folder+"/"+filename, ErrNotFound, fmt.Errorf("is a directory"))
	}

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		f.Close()
		return nil, wrapError("open_file", folder+"/"+filename, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, wrapError("open_file", folder+"/"+filename, err)
	}

	return &File{
		FileInfo: FileInfo{
			Name:        info.Name(),
			Size:        info.Size(),
			Modified:    info.ModTime(),
			ContentType: mtype.String(),
		},
		Content: f,
	}, nil
}

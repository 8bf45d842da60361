package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// listConcurrency bounds the folders read in parallel by ListFolders
const listConcurrency = 8

// DirectoryOps handles top-level folder operations
type DirectoryOps struct {
	*FilesystemOps
}

// CreateFolder creates an empty folder. It fails with ErrAlreadyExists when
// the folder is already there.
func (d *DirectoryOps) CreateFolder(ctx context.Context, name string) error {
	path, err := d.folderPath("create_folder", name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return newError("create_folder", name, ErrIO, err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		return wrapError("create_folder", name, err)
	}
	d.Logger.Info("folder created", zap.String("folder", name))
	return nil
}

// DeleteFolder removes a folder and everything beneath it. There is no
// confirmation and no trash: the deletion is immediate and irreversible.
func (d *DirectoryOps) DeleteFolder(ctx context.Context, name string) error {
	path, err := d.folderPath("delete_folder", name)
	if err != nil {
		return err
	}
	info, err := os.Lstat(path)
	if err != nil {
		return wrapError("delete_folder", name, err)
	}
	if !info.IsDir() {
		return newError("delete_folder", name, ErrNotFound, fmt.Errorf("not a folder"))
	}
	if err := ctx.Err(); err != nil {
		return newError("delete_folder", name, ErrIO, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return wrapError("delete_folder", name, err)
	}
	d.Logger.Warn("folder deleted recursively", zap.String("folder", name))
	return nil
}

// FolderExists reports whether name is an existing folder
func (d *DirectoryOps) FolderExists(ctx context.Context, name string) (bool, error) {
	path, err := d.folderPath("folder_exists", name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, wrapError("folder_exists", name, err)
	}
	return info.IsDir(), nil
}

// ListFolders returns every folder with the names directly inside it, sorted
// by folder name. The scratch directory is never listed. A non-empty match
// is a doublestar glob applied to the child names.
//
// Folders are read concurrently; one removed while listing is left out.
func (d *DirectoryOps) ListFolders(ctx context.Context, match string) ([]FolderListing, error) {
	if match != "" && !doublestar.ValidatePattern(match) {
		return nil, newError("list_folders", match, ErrInvalidPath, doublestar.ErrBadPattern)
	}

	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, wrapError("list_folders", "", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && entry.Name() != d.ScratchDir {
			names = append(names, entry.Name())
		}
	}

	listings := make([]*FolderListing, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)

	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			files, err := d.childNames(filepath.Join(d.Root, name), match)
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if err != nil {
				return wrapError("list_folders", name, err)
			}
			listings[i] = &FolderListing{Folder: name, Files: files}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, wrapError("list_folders", "", err)
	}

	result := make([]FolderListing, 0, len(listings))
	for _, l := range listings {
		if l != nil {
			result = append(result, *l)
		}
	}
	return result, nil
}

// ListFiles returns metadata for the entries directly inside a folder
func (d *DirectoryOps) ListFiles(ctx context.Context, folder string) ([]FileInfo, error) {
	path, err := d.folderPath("list_files", folder)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, wrapError("list_files", folder, err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, newError("list_files", folder, ErrIO, err)
		}
		info, err := entry.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, wrapError("list_files", folder, err)
		}
		files = append(files, FileInfo{
			Name:     entry.Name(),
			Size:     info.Size(),
			IsDir:    entry.IsDir(),
			Modified: info.ModTime(),
		})
	}
	return files, nil
}

func (d *DirectoryOps) childNames(dir, match string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if match != "" {
			ok, err := doublestar.Match(match, entry.Name())
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

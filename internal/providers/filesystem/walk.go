package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"
)

// Entry is one file or directory found beneath a walked root
type Entry struct {
	// Path is slash-separated and relative to the walked root
	Path string
	Kind Kind
	Size int64

	abs string
}

// IsDir reports whether the entry is a directory
func (e Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// Open opens the entry's content. Content is read only when the consumer
// asks for it, so a walk over a large tree holds no file handles.
func (e Entry) Open() (io.ReadCloser, error) {
	if e.IsDir() {
		return nil, newError("open", e.Path, ErrIO, fmt.Errorf("is a directory"))
	}
	f, err := os.Open(e.abs)
	if err != nil {
		return nil, wrapError("open", e.Path, err)
	}
	return f, nil
}

// Walk yields every directory and regular file beneath root, excluding root
// itself, ordered by relative path so parents precede their children.
//
// Symlinks and special files are neither followed nor yielded. Any directory
// that cannot be read aborts the walk: the sequence then yields a single
// ErrIO (or ErrNotFound for a missing root) and stops.
func Walk(ctx context.Context, root string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		entries, err := snapshot(ctx, root)
		if err != nil {
			yield(Entry{}, err)
			return
		}
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				yield(Entry{}, newError("walk", root, ErrIO, err))
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// snapshot lists the tree with fastwalk, whose callbacks run concurrently
// across directories, then sorts the result.
func snapshot(ctx context.Context, root string) ([]Entry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, wrapError("walk", root, err)
	}
	if !info.IsDir() {
		return nil, newError("walk", root, ErrNotFound, fmt.Errorf("not a directory"))
	}

	var (
		mu      sync.Mutex
		entries []Entry
	)

	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}

		entry := Entry{abs: path}
		switch typ := d.Type(); {
		case typ.IsDir():
			entry.Kind = KindDirectory
		case typ.IsRegular():
			fi, err := d.Info()
			if err != nil {
				return err
			}
			entry.Kind = KindFile
			entry.Size = fi.Size()
		default:
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entry.Path = filepath.ToSlash(rel)

		mu.Lock()
		entries = append(entries, entry)
		mu.Unlock()
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// the tree changed underneath us; still an aborted walk
			return nil, newError("walk", root, ErrIO, err)
		}
		return nil, wrapError("walk", root, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

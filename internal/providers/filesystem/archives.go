package filesystem

import (
	"archive/tar"
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

var (
	errExtractLimit = errors.New("archive expands beyond the extraction limit")
	errUnknownType  = errors.New("unrecognized archive type")
)

// ArchivesOps packs folders into archives and unpacks archives into folders
type ArchivesOps struct {
	*FilesystemOps

	// CompressionLevel is 0 (store) to 9 (smallest)
	CompressionLevel int
	// MaxExtractBytes caps the total size one Unpack may write; 0 is unlimited
	MaxExtractBytes int64
}

// archiveWriter hides the differences between zip and tar output
type archiveWriter interface {
	addDir(name string) error
	addFile(name string, size int64, r io.Reader) (int64, error)
	Close() error
}

// Pack writes the folder at src into w as an archive whose entries all live
// under folderName/. Empty directories are recorded. Nothing is written to w
// beyond a partial archive on failure, and callers must discard it.
func (a *ArchivesOps) Pack(ctx context.Context, src, folderName string, format Format, w io.Writer) (*ArchiveStats, error) {
	if err := validateSegment(folderName); err != nil {
		return nil, newError("pack", folderName, ErrPack, newError("sanitize", folderName, ErrInvalidPath, err))
	}
	info, err := os.Stat(src)
	if err != nil {
		return nil, newError("pack", folderName, ErrPack, wrapError("stat", folderName, err))
	}
	if !info.IsDir() {
		return nil, newError("pack", folderName, ErrPack, newError("stat", folderName, ErrNotFound, fmt.Errorf("not a directory")))
	}

	aw, err := a.newWriter(format, w)
	if err != nil {
		return nil, newError("pack", folderName, ErrPack, err)
	}

	stats, err := a.pack(ctx, aw, src, folderName)
	closeErr := aw.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, newError("pack", folderName, ErrPack, err)
	}
	return stats, nil
}

func (a *ArchivesOps) pack(ctx context.Context, aw archiveWriter, src, prefix string) (*ArchiveStats, error) {
	stats := &ArchiveStats{Dirs: 1}
	if err := aw.addDir(prefix); err != nil {
		return nil, err
	}

	for entry, err := range Walk(ctx, src) {
		if err != nil {
			return nil, err
		}
		name := prefix + "/" + entry.Path

		if entry.IsDir() {
			if err := aw.addDir(name); err != nil {
				return nil, err
			}
			stats.Dirs++
			continue
		}

		n, err := copyEntry(aw, name, entry)
		if err != nil {
			return nil, err
		}
		stats.Files++
		stats.Bytes += n
	}
	return stats, nil
}

func copyEntry(aw archiveWriter, name string, entry Entry) (int64, error) {
	rc, err := entry.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return aw.addFile(name, entry.Size, rc)
}

func (a *ArchivesOps) newWriter(format Format, w io.Writer) (archiveWriter, error) {
	level := a.CompressionLevel
	// every entry of one archive carries the pack time
	now := time.Now().Truncate(time.Second)
	switch format {
	case FormatZip:
		zw := zip.NewWriter(w)
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, level)
		})
		return &zipWriter{zw: zw, modTime: now}, nil
	case FormatTar:
		return &tarWriter{tw: tar.NewWriter(w), modTime: now}, nil
	case FormatTarGz:
		gz, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return nil, err
		}
		return &tarWriter{tw: tar.NewWriter(gz), compressor: gz, modTime: now}, nil
	case FormatTarZst:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, err
		}
		return &tarWriter{tw: tar.NewWriter(zw), compressor: zw, modTime: now}, nil
	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}
}

type zipWriter struct {
	zw      *zip.Writer
	modTime time.Time
}

func (z *zipWriter) addDir(name string) error {
	hdr := &zip.FileHeader{Name: name + "/", Method: zip.Store, Modified: z.modTime}
	hdr.SetMode(fs.ModeDir | 0o755)
	_, err := z.zw.CreateHeader(hdr)
	return err
}

func (z *zipWriter) addFile(name string, size int64, r io.Reader) (int64, error) {
	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: z.modTime}
	hdr.SetMode(0o644)
	w, err := z.zw.CreateHeader(hdr)
	if err != nil {
		return 0, err
	}
	return io.Copy(w, r)
}

func (z *zipWriter) Close() error {
	return z.zw.Close()
}

type tarWriter struct {
	tw         *tar.Writer
	compressor io.WriteCloser
	modTime    time.Time
}

func (t *tarWriter) addDir(name string) error {
	return t.tw.WriteHeader(&tar.Header{
		Name:     name + "/",
		Typeflag: tar.TypeDir,
		Mode:     0o755,
		ModTime:  t.modTime,
	})
}

// addFile copies exactly size bytes; a file that shrank while being read
// fails the pack instead of producing a corrupt entry.
func (t *tarWriter) addFile(name string, size int64, r io.Reader) (int64, error) {
	if err := t.tw.WriteHeader(&tar.Header{
		Name:     name,
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     size,
		ModTime:  t.modTime,
	}); err != nil {
		return 0, err
	}
	return io.CopyN(t.tw, r, size)
}

func (t *tarWriter) Close() error {
	err := t.tw.Close()
	if t.compressor != nil {
		if cerr := t.compressor.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// DetectFormat sniffs the archive type from its leading bytes. Zip-based
// formats (jar, docx, ...) are accepted as zip.
func DetectFormat(r io.Reader) (Format, error) {
	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return "", newError("detect", "", ErrUnpack, err)
	}
	for m := mtype; m != nil; m = m.Parent() {
		switch {
		case m.Is("application/zip"):
			return FormatZip, nil
		case m.Is("application/gzip"):
			return FormatTarGz, nil
		case m.Is("application/zstd"):
			return FormatTarZst, nil
		case m.Is("application/x-tar"):
			return FormatTar, nil
		}
	}
	return "", newError("detect", mtype.String(), ErrUnpack, errUnknownType)
}

// Unpack extracts the archive held in r beneath dest, which must lie inside
// the storage root. Every entry name is sanitized against dest; parent
// directories are created on demand; existing files are overwritten and
// existing directories merged. Symlinks and special entries are skipped.
//
// A failure leaves whatever was already extracted in place.
func (a *ArchivesOps) Unpack(ctx context.Context, r io.ReaderAt, size int64, format Format, dest string) (*ArchiveStats, error) {
	dest = filepath.Clean(dest)
	if !within(a.Root, dest) {
		return nil, newError("unpack", dest, ErrUnpack, newError("sanitize", dest, ErrInvalidPath, errEscapesRoot))
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, newError("unpack", dest, ErrUnpack, wrapError("mkdir", dest, err))
	}

	x := &extractor{
		ArchivesOps: a,
		dest:        dest,
		remaining:   a.MaxExtractBytes,
		stats:       &ArchiveStats{},
	}

	var err error
	switch format {
	case FormatZip:
		err = x.zip(ctx, r, size)
	case FormatTar, FormatTarGz, FormatTarZst:
		err = x.tar(ctx, io.NewSectionReader(r, 0, size), format)
	default:
		err = fmt.Errorf("unsupported archive format %q", format)
	}
	if err != nil {
		var typed *Error
		if errors.As(err, &typed) && errors.Is(err, ErrUnpack) {
			return nil, err
		}
		return nil, newError("unpack", x.current, ErrUnpack, err)
	}

	a.Logger.Debug("archive unpacked",
		zap.String("dest", dest),
		zap.Int("files", x.stats.Files),
		zap.Int("dirs", x.stats.Dirs),
		zap.Int("skipped", x.stats.Skipped),
	)
	return x.stats, nil
}

// extractor carries the state of one Unpack call
type extractor struct {
	*ArchivesOps
	dest      string
	remaining int64
	current   string
	stats     *ArchiveStats
}

func (x *extractor) zip(ctx context.Context, r io.ReaderAt, size int64) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return err
	}

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		x.current = f.Name

		mode := f.Mode()
		isDir := mode.IsDir() || strings.HasSuffix(f.Name, "/")
		if !isDir && !mode.IsRegular() {
			x.stats.Skipped++
			continue
		}

		target, err := x.target(f.Name, isDir)
		if err != nil {
			return err
		}
		if isDir {
			if err := x.ensureDir(target); err != nil {
				return err
			}
			x.stats.Dirs++
			continue
		}

		if err := x.writeZipFile(target, f); err != nil {
			return err
		}
	}
	return nil
}

func (x *extractor) writeZipFile(target string, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return x.writeFile(target, rc)
}

func (x *extractor) tar(ctx context.Context, r io.Reader, format Format) error {
	switch format {
	case FormatTarGz:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return err
		}
		defer gz.Close()
		r = gz
	case FormatTarZst:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return err
		}
		defer zr.Close()
		r = zr
	}

	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		x.current = hdr.Name

		switch hdr.Typeflag {
		case tar.TypeDir:
			target, err := x.target(hdr.Name, true)
			if err != nil {
				return err
			}
			if err := x.ensureDir(target); err != nil {
				return err
			}
			x.stats.Dirs++
		case tar.TypeReg:
			target, err := x.target(hdr.Name, false)
			if err != nil {
				return err
			}
			if err := x.writeFile(target, tr); err != nil {
				return err
			}
		default:
			x.stats.Skipped++
		}
	}
}

// target resolves an entry beneath dest. Only a directory entry may resolve
// to dest itself; a file there would replace the whole folder.
func (x *extractor) target(name string, isDir bool) (string, error) {
	target, err := x.paths.Relative(x.dest, name)
	if err != nil {
		return "", newError("unpack", name, ErrUnpack, err)
	}
	if target == x.dest && !isDir {
		return "", newError("unpack", name, ErrUnpack, newError("sanitize", name, ErrInvalidPath, errNoFileName))
	}
	return target, nil
}

// ensureDir creates every missing directory between dest and path. A file or
// symlink occupying a directory's place is removed first, so extraction never
// writes through a link.
func (x *extractor) ensureDir(path string) error {
	rel, err := filepath.Rel(x.dest, path)
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}

	current := x.dest
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		switch {
		case err == nil && info.IsDir():
			continue
		case err == nil:
			if err := os.Remove(current); err != nil {
				return err
			}
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}
		if err := os.Mkdir(current, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
			return err
		}
	}
	return nil
}

func (x *extractor) writeFile(target string, r io.Reader) error {
	if err := x.ensureDir(filepath.Dir(target)); err != nil {
		return err
	}
	if info, err := os.Lstat(target); err == nil && !info.Mode().IsRegular() {
		if err := os.RemoveAll(target); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	src := r
	if x.MaxExtractBytes > 0 {
		src = io.LimitReader(r, x.remaining+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if x.MaxExtractBytes > 0 {
		if n > x.remaining {
			return errExtractLimit
		}
		x.remaining -= n
	}
	x.stats.Files++
	x.stats.Bytes += n
	return nil
}

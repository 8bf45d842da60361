// Package filesystem implements the folder store on the local disk.
//
// The package is organized into specialized modules:
//   - paths: name sanitization, confining every path to the storage root
//   - walk: deterministic recursive traversal of a folder
//   - archives: packing a folder into zip or tar and unpacking it back
//   - transfer: folder download and upload through temporary artifacts
//   - directory: top-level folder create, delete and listing
//   - basic: single file upload, open, rename and delete
//
// Temporary artifacts live in a scratch directory under the root, are named
// by ULID and are removed on every exit path of the transfer that owns them.
//
// Errors carry one of the package's kinds (ErrInvalidPath, ErrNotFound and
// so on); use KindOf or Code to classify them.
//
// Example Usage:
//
//	p, err := filesystem.NewProvider(filesystem.Options{Root: "uploads", ScratchDir: ".scratch"}, logger, nil)
//	err = p.Transfers.Download(ctx, "reports", filesystem.FormatZip, func(a *filesystem.Archive) error {
//		_, err := io.Copy(w, a.Content)
//		return err
//	})
package filesystem

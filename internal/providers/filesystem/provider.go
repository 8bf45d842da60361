package filesystem

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/folderstore/internal/infrastructure/monitoring"
)

// Options configures a Provider
type Options struct {
	Root             string
	ScratchDir       string
	MaxUploadBytes   int64
	MaxExtractBytes  int64
	CompressionLevel int
}

// Provider groups every store operation over one storage root
type Provider struct {
	// Module instances
	Directories *DirectoryOps
	Files       *BasicOps
	Archives    *ArchivesOps
	Transfers   *TransferOps

	ops *FilesystemOps
}

// NewProvider creates the storage root if needed and wires the operation
// groups to it. metrics may be nil.
func NewProvider(opts Options, logger *zap.Logger, metrics *monitoring.Metrics) (*Provider, error) {
	ops, err := NewFilesystemOps(opts.Root, opts.ScratchDir, logger)
	if err != nil {
		return nil, err
	}
	ops.WithMetrics(metrics)

	archives := &ArchivesOps{
		FilesystemOps:    ops,
		CompressionLevel: opts.CompressionLevel,
		MaxExtractBytes:  opts.MaxExtractBytes,
	}

	return &Provider{
		Directories: &DirectoryOps{FilesystemOps: ops},
		Files:       &BasicOps{FilesystemOps: ops},
		Archives:    archives,
		Transfers: &TransferOps{
			FilesystemOps:  ops,
			Archives:       archives,
			MaxUploadBytes: opts.MaxUploadBytes,
		},
		ops: ops,
	}, nil
}

// Root returns the absolute storage root
func (p *Provider) Root() string {
	return p.ops.Root
}

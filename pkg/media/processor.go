package media

import (
	"context"

	"github.com/cuemby/agora/pkg/types"
)

// ProcessedFile is one derivative produced from an original, sitting on
// local disk until the handler uploads it.
type ProcessedFile struct {
	Type   string // thumbnail, web, hls_720p, poster, ...
	Path   string
	Width  int
	Height int
}

// Processor turns an original upload into derivatives. Implementations run
// the actual transcoding toolchain; the handler owns download, upload,
// metadata and quota. workDir is scratch space the handler deletes when the
// job ends, whatever the outcome.
type Processor interface {
	Process(ctx context.Context, asset *types.MediaAsset, originalPath, workDir string) ([]ProcessedFile, error)
}

// NopProcessor produces no derivatives. It stands in where no transcoding
// toolchain is deployed; originals still upload, charge quota and serve.
type NopProcessor struct{}

func (NopProcessor) Process(context.Context, *types.MediaAsset, string, string) ([]ProcessedFile, error) {
	return nil, nil
}

package media

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/agora/pkg/config"
	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/jobs"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/metrics"
	"github.com/cuemby/agora/pkg/objstore"
	"github.com/cuemby/agora/pkg/storage"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

// JobKindProcess transforms one uploaded original into derivatives.
const JobKindProcess = "media.process"

// ProcessJob is the payload for JobKindProcess.
type ProcessJob struct {
	AssetID string `json:"asset_id"`
}

// Service negotiates uploads, finalizes them and issues counted signed
// downloads. Processing itself is deferred work on the job queue.
type Service struct {
	guard  *storage.Guard
	store  objstore.Client
	queue  *jobs.Queue
	cfg    config.MediaConfig
	logger zerolog.Logger
	now    func() time.Time
}

// NewService wires the media service over the tenant-scoped guard.
func NewService(guard *storage.Guard, store objstore.Client, q *jobs.Queue, cfg config.MediaConfig) *Service {
	return &Service{
		guard:  guard,
		store:  store,
		queue:  q,
		cfg:    cfg,
		logger: log.WithComponent("media"),
		now:    time.Now,
	}
}

// NegotiateInput describes the upload a client wants to perform.
type NegotiateInput struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	AssetType   string `json:"asset_type"`
}

// UploadTicket is what the client needs to perform the upload directly
// against object storage.
type UploadTicket struct {
	AssetID             string `json:"asset_id"`
	StorageKey          string `json:"storage_key"`
	PresignedURL        string `json:"presigned_url"`
	Method              string `json:"method"`
	RemainingQuotaBytes int64  `json:"remaining_quota_bytes"`
}

// OriginalKey is the deterministic object key for an asset's original bytes.
func OriginalKey(tenantID string, assetType types.MediaAssetType, assetID, filename string) string {
	return fmt.Sprintf("%s/media/%s/%s/original/%s", tenantID, assetType, assetID, filename)
}

// DerivativeKey is the object key for one derivative of an asset.
func DerivativeKey(tenantID string, assetType types.MediaAssetType, assetID, derivType, filename string) string {
	return fmt.Sprintf("%s/media/%s/%s/%s/%s", tenantID, assetType, assetID, derivType, filename)
}

// NegotiateUpload validates the request against type, size and quota limits,
// persists the asset in uploading state and hands back a presigned URL. The
// quota is not charged until the upload completes; the returned remaining
// figure already accounts for the negotiated bytes.
func (s *Service) NegotiateUpload(ctx context.Context, in NegotiateInput) (*UploadTicket, error) {
	assetType := types.MediaAssetType(in.AssetType)
	if assetType != types.MediaAssetTypeImage && assetType != types.MediaAssetTypeVideo {
		return nil, errdefs.Validationf("asset type must be image or video, got %q", in.AssetType)
	}
	filename := sanitizeFilename(in.Filename)
	if filename == "" {
		return nil, errdefs.Validationf("filename is required")
	}
	if in.ContentType == "" {
		return nil, errdefs.Validationf("content type is required")
	}
	if in.SizeBytes <= 0 {
		return nil, errdefs.Validationf("size must be positive, got %d", in.SizeBytes)
	}
	if s.cfg.MaxUploadBytes > 0 && in.SizeBytes > s.cfg.MaxUploadBytes {
		return nil, errdefs.Validationf("size %d exceeds upload limit %d", in.SizeBytes, s.cfg.MaxUploadBytes)
	}

	t, err := s.guard.Tenant(ctx)
	if err != nil {
		return nil, err
	}
	remaining := t.Quotas.Remaining()
	if in.SizeBytes > remaining {
		metrics.MediaQuotaRejections.Inc()
		return nil, fmt.Errorf("%w: %d bytes requested, %d remaining", errdefs.ErrQuotaExceeded, in.SizeBytes, remaining)
	}

	now := s.now().UTC()
	asset := &types.MediaAsset{
		ID:          uuid.New().String(),
		AssetType:   assetType,
		Filename:    filename,
		ContentType: in.ContentType,
		SizeBytes:   in.SizeBytes,
		Status:      types.MediaAssetStatusUploading,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	asset.StorageKey = OriginalKey(t.ID, assetType, asset.ID, filename)

	if err := s.guard.CreateMediaAsset(ctx, asset); err != nil {
		return nil, err
	}

	presigned, err := s.store.PresignedUpload(asset.StorageKey, in.ContentType, s.cfg.PresignTTL.Std())
	if err != nil {
		return nil, errdefs.Transientf("presign upload for %s: %v", asset.ID, err)
	}

	return &UploadTicket{
		AssetID:             asset.ID,
		StorageKey:          asset.StorageKey,
		PresignedURL:        presigned.URL,
		Method:              presigned.Method,
		RemainingQuotaBytes: remaining - in.SizeBytes,
	}, nil
}

// CompleteUpload moves an asset from uploading to pending, charges the
// original bytes to the tenant quota exactly once, and enqueues processing.
// Images process at DEFAULT, videos at LOW.
func (s *Service) CompleteUpload(ctx context.Context, assetID, checksum string) (*types.MediaAsset, error) {
	asset, err := s.guard.GetMediaAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset.Status != types.MediaAssetStatusUploading {
		return nil, errdefs.Conflictf("asset %s is %s, only uploading assets complete", asset.ID, asset.Status)
	}

	asset.Checksum = checksum
	asset.Status = types.MediaAssetStatusPending
	asset.UpdatedAt = s.now().UTC()

	if !asset.QuotaCharged {
		if _, err := s.guard.ChargeMediaQuota(ctx, asset.SizeBytes); err != nil {
			return nil, err
		}
		asset.QuotaCharged = true
	}
	if err := s.guard.UpdateMediaAsset(ctx, asset); err != nil {
		return nil, err
	}

	priority := jobs.PriorityDefault
	if asset.AssetType == types.MediaAssetTypeVideo {
		priority = jobs.PriorityLow
	}
	bound, _ := tenant.Current(ctx)
	if _, err := jobs.Submit(s.queue, bound.Tenant.ID, JobKindProcess,
		ProcessJob{AssetID: asset.ID}, priority); err != nil {
		return nil, err
	}
	return asset, nil
}

// GetAsset returns one asset.
func (s *Service) GetAsset(ctx context.Context, id string) (*types.MediaAsset, error) {
	return s.guard.GetMediaAsset(ctx, id)
}

// ListAssets returns the tenant's assets.
func (s *Service) ListAssets(ctx context.Context) ([]*types.MediaAsset, error) {
	return s.guard.ListMediaAssets(ctx)
}

// SignedDownload issues a time-limited URL for a ready asset, or one of its
// derivatives when derivType is set. Every issuance counts against the
// asset's download allowance and leaves an access row.
func (s *Service) SignedDownload(ctx context.Context, assetID, derivType string) (string, error) {
	asset, err := s.guard.GetMediaAsset(ctx, assetID)
	if err != nil {
		return "", err
	}
	if asset.Status != types.MediaAssetStatusReady {
		return "", errdefs.Conflictf("asset %s is %s, downloads require ready", asset.ID, asset.Status)
	}
	if s.cfg.MaxDownloadAttempts > 0 && asset.DownloadCount >= s.cfg.MaxDownloadAttempts {
		return "", fmt.Errorf("%w: asset %s reached its download allowance of %d",
			errdefs.ErrRateLimited, asset.ID, s.cfg.MaxDownloadAttempts)
	}

	key := asset.StorageKey
	if derivType != "" && derivType != "original" {
		key = ""
		for _, d := range asset.Derivatives {
			if d.Type == derivType {
				key = d.StorageKey
				break
			}
		}
		if key == "" {
			return "", errdefs.NotFoundf("asset %s has no %s derivative", asset.ID, derivType)
		}
	}

	url, err := s.store.SignedDownload(key, s.cfg.PresignTTL.Std())
	if err != nil {
		return "", errdefs.Transientf("sign download for %s: %v", asset.ID, err)
	}

	asset.DownloadCount++
	asset.UpdatedAt = s.now().UTC()
	if err := s.guard.UpdateMediaAsset(ctx, asset); err != nil {
		return "", err
	}

	access := &types.MediaAccess{
		ID:        uuid.New().String(),
		AssetID:   asset.ID,
		CreatedAt: s.now().UTC(),
	}
	if bound, err := tenant.Current(ctx); err == nil {
		access.Actor = bound.Actor
	}
	if err := s.guard.AppendMediaAccess(ctx, access); err != nil {
		s.logger.Error().Err(err).Str("asset_id", asset.ID).Msg("access row not recorded")
	}
	return url, nil
}

// sanitizeFilename strips any path component an uploader smuggles in.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

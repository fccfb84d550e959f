package media

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agora/pkg/config"
	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/jobs"
	"github.com/cuemby/agora/pkg/objstore"
	"github.com/cuemby/agora/pkg/storage"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

func testMediaConfig() config.MediaConfig {
	return config.MediaConfig{
		DefaultQuotaBytes:   1 << 20,
		MaxUploadBytes:      1 << 19,
		PresignTTL:          config.Duration(time.Hour),
		MaxDownloadAttempts: 3,
	}
}

func testService(t *testing.T, quotaBytes int64) (*Service, *storage.Guard, *jobs.Queue, context.Context) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tn := &types.Tenant{
		ID: "t1", Subdomain: "t1", Status: types.TenantStatusActive,
		Quotas: types.TenantQuotas{MediaStorageBytes: quotaBytes},
	}
	require.NoError(t, store.CreateTenant(tn))

	ctx, err := tenant.Bind(context.Background(), &tenant.Binding{Tenant: tn, Actor: "test"})
	require.NoError(t, err)

	guard := storage.NewGuard(store)
	obj, err := objstore.NewLocal(t.TempDir(), "http://objects.local")
	require.NoError(t, err)
	q := jobs.NewQueue(nil)
	return NewService(guard, obj, q, testMediaConfig()), guard, q, ctx
}

func TestNegotiateUploadValidation(t *testing.T) {
	svc, _, _, ctx := testService(t, 1<<20)

	_, err := svc.NegotiateUpload(ctx, NegotiateInput{Filename: "a.png", ContentType: "image/png", SizeBytes: 10, AssetType: "gif"})
	assert.True(t, errdefs.IsValidation(err), "asset type must be image or video")

	_, err = svc.NegotiateUpload(ctx, NegotiateInput{Filename: "", ContentType: "image/png", SizeBytes: 10, AssetType: "image"})
	assert.True(t, errdefs.IsValidation(err))

	_, err = svc.NegotiateUpload(ctx, NegotiateInput{Filename: "a.png", ContentType: "", SizeBytes: 10, AssetType: "image"})
	assert.True(t, errdefs.IsValidation(err))

	_, err = svc.NegotiateUpload(ctx, NegotiateInput{Filename: "a.png", ContentType: "image/png", SizeBytes: 0, AssetType: "image"})
	assert.True(t, errdefs.IsValidation(err))

	_, err = svc.NegotiateUpload(ctx, NegotiateInput{Filename: "a.png", ContentType: "image/png", SizeBytes: 1 << 20, AssetType: "image"})
	assert.True(t, errdefs.IsValidation(err), "per-upload cap applies before quota")
}

func TestNegotiateUploadTicket(t *testing.T) {
	svc, guard, _, ctx := testService(t, 1000)

	ticket, err := svc.NegotiateUpload(ctx, NegotiateInput{
		Filename: "../../etc/hero.png", ContentType: "image/png", SizeBytes: 600, AssetType: "image",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.AssetID)
	assert.Equal(t, "t1/media/image/"+ticket.AssetID+"/original/hero.png", ticket.StorageKey,
		"path components are stripped from the filename")
	assert.NotEmpty(t, ticket.PresignedURL)
	assert.Equal(t, int64(400), ticket.RemainingQuotaBytes)

	asset, err := guard.GetMediaAsset(ctx, ticket.AssetID)
	require.NoError(t, err)
	assert.Equal(t, types.MediaAssetStatusUploading, asset.Status)
	assert.False(t, asset.QuotaCharged, "quota charges at completion, not negotiation")
}

func TestNegotiateUploadQuotaExceeded(t *testing.T) {
	svc, _, _, ctx := testService(t, 500)

	_, err := svc.NegotiateUpload(ctx, NegotiateInput{
		Filename: "big.png", ContentType: "image/png", SizeBytes: 501, AssetType: "image",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrQuotaExceeded))
	assert.Contains(t, err.Error(), "500 remaining")
}

func TestCompleteUploadChargesOnceAndEnqueues(t *testing.T) {
	svc, guard, q, ctx := testService(t, 1000)

	ticket, err := svc.NegotiateUpload(ctx, NegotiateInput{
		Filename: "hero.png", ContentType: "image/png", SizeBytes: 600, AssetType: "image",
	})
	require.NoError(t, err)

	asset, err := svc.CompleteUpload(ctx, ticket.AssetID, "sha256:abc")
	require.NoError(t, err)
	assert.Equal(t, types.MediaAssetStatusPending, asset.Status)
	assert.True(t, asset.QuotaCharged)
	assert.Equal(t, "sha256:abc", asset.Checksum)

	tn, err := guard.Tenant(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(600), tn.Quotas.MediaUsedBytes)

	item, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, JobKindProcess, item.Kind)
	assert.Equal(t, jobs.PriorityDefault, item.Priority, "images process at DEFAULT")

	_, err = svc.CompleteUpload(ctx, ticket.AssetID, "sha256:abc")
	assert.True(t, errdefs.IsConflict(err), "completing twice conflicts; quota charged once")

	tn, err = guard.Tenant(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(600), tn.Quotas.MediaUsedBytes)
}

func TestCompleteUploadVideoGoesToLowLane(t *testing.T) {
	svc, _, q, ctx := testService(t, 1<<19)

	ticket, err := svc.NegotiateUpload(ctx, NegotiateInput{
		Filename: "clip.mp4", ContentType: "video/mp4", SizeBytes: 1 << 18, AssetType: "video",
	})
	require.NoError(t, err)
	_, err = svc.CompleteUpload(ctx, ticket.AssetID, "")
	require.NoError(t, err)

	item, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, jobs.PriorityLow, item.Priority)
}

func TestSignedDownloadCountsAgainstAllowance(t *testing.T) {
	svc, guard, _, ctx := testService(t, 1000)

	ticket, err := svc.NegotiateUpload(ctx, NegotiateInput{
		Filename: "hero.png", ContentType: "image/png", SizeBytes: 100, AssetType: "image",
	})
	require.NoError(t, err)

	_, err = svc.SignedDownload(ctx, ticket.AssetID, "")
	assert.True(t, errdefs.IsConflict(err), "only ready assets serve downloads")

	asset, err := guard.GetMediaAsset(ctx, ticket.AssetID)
	require.NoError(t, err)
	asset.Status = types.MediaAssetStatusReady
	asset.Derivatives = []types.Derivative{{Type: "thumbnail", StorageKey: "t1/media/image/x/thumbnail/t.png"}}
	require.NoError(t, guard.UpdateMediaAsset(ctx, asset))

	for i := 0; i < 3; i++ {
		url, err := svc.SignedDownload(ctx, ticket.AssetID, "")
		require.NoError(t, err)
		assert.True(t, strings.Contains(url, "sig=") || strings.Contains(url, "http"), "url is signed")
	}

	_, err = svc.SignedDownload(ctx, ticket.AssetID, "")
	assert.True(t, errdefs.IsRateLimited(err), "allowance of 3 exhausted")

	asset, err = guard.GetMediaAsset(ctx, ticket.AssetID)
	require.NoError(t, err)
	assert.Equal(t, 3, asset.DownloadCount)

	_, err = svc.SignedDownload(ctx, "missing", "")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestSignedDownloadDerivativeSelection(t *testing.T) {
	svc, guard, _, ctx := testService(t, 1000)

	ticket, err := svc.NegotiateUpload(ctx, NegotiateInput{
		Filename: "hero.png", ContentType: "image/png", SizeBytes: 100, AssetType: "image",
	})
	require.NoError(t, err)

	asset, err := guard.GetMediaAsset(ctx, ticket.AssetID)
	require.NoError(t, err)
	asset.Status = types.MediaAssetStatusReady
	asset.Derivatives = []types.Derivative{{Type: "thumbnail", StorageKey: "t1/media/image/" + asset.ID + "/thumbnail/hero.png"}}
	require.NoError(t, guard.UpdateMediaAsset(ctx, asset))

	_, err = svc.SignedDownload(ctx, ticket.AssetID, "thumbnail")
	require.NoError(t, err)

	_, err = svc.SignedDownload(ctx, ticket.AssetID, "hls_720p")
	assert.True(t, errdefs.IsNotFound(err), "unknown derivative type")
}

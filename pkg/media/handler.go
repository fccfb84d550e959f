package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/events"
	"github.com/cuemby/agora/pkg/jobs"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/objstore"
	"github.com/cuemby/agora/pkg/storage"
	"github.com/cuemby/agora/pkg/types"
)

// NewProcessHandler returns the job handler for JobKindProcess. It pulls the
// original from object storage into a scratch directory, runs the processor,
// uploads the derivatives, then charges quota and flips the asset to ready.
// The scratch directory is removed on every exit path.
//
// Failure routing: a missing original or a processor rejection is final, so
// the asset is marked failed before the permanent error surfaces. Storage
// hiccups stay transient; the asset remains processing and the retry policy
// takes another run at it.
func NewProcessHandler(guard *storage.Guard, store objstore.Client, processor Processor, broker *events.Broker) jobs.Handler {
	logger := log.WithComponent("media.process")

	fail := func(ctx context.Context, asset *types.MediaAsset, reason string) {
		asset.Status = types.MediaAssetStatusFailed
		asset.Error = reason
		if err := guard.UpdateMediaAsset(ctx, asset); err != nil {
			logger.Error().Err(err).Str("asset_id", asset.ID).Msg("failed asset not persisted")
		}
		if broker != nil {
			broker.Publish(&events.Event{
				Type:     events.EventMediaFailed,
				TenantID: asset.TenantID,
				Message:  reason,
				Metadata: map[string]string{"asset_id": asset.ID},
			})
		}
	}

	return func(ctx context.Context, env *jobs.Envelope) error {
		var job ProcessJob
		if err := json.Unmarshal(env.Data, &job); err != nil {
			return errdefs.Permanentf("malformed process payload: %v", err)
		}
		asset, err := guard.GetMediaAsset(ctx, job.AssetID)
		if err != nil {
			return err
		}

		switch asset.Status {
		case types.MediaAssetStatusReady:
			return nil // replayed job, work already done
		case types.MediaAssetStatusPending, types.MediaAssetStatusProcessing, types.MediaAssetStatusFailed:
			// pending is the normal path; processing is a retry;
			// failed is an operator requeue from the DLQ.
		default:
			return errdefs.Permanentf("asset %s is %s, not processable", asset.ID, asset.Status)
		}

		asset.Status = types.MediaAssetStatusProcessing
		asset.Error = ""
		if err := guard.UpdateMediaAsset(ctx, asset); err != nil {
			return err
		}

		workDir, err := os.MkdirTemp("", "agora-media-*")
		if err != nil {
			return errdefs.Transientf("create scratch dir: %v", err)
		}
		defer func() {
			if err := os.RemoveAll(workDir); err != nil {
				logger.Error().Err(err).Str("dir", workDir).Msg("scratch dir not removed")
			}
		}()

		originalPath := filepath.Join(workDir, asset.Filename)
		if err := fetch(ctx, store, asset.StorageKey, originalPath); err != nil {
			if errdefs.IsNotFound(err) {
				fail(ctx, asset, "original object missing")
				return errdefs.Permanentf("original for asset %s missing from storage", asset.ID)
			}
			return errdefs.Transientf("download original for %s: %v", asset.ID, err)
		}

		files, err := processor.Process(ctx, asset, originalPath, workDir)
		if err != nil {
			if errdefs.IsTransient(err) {
				return err
			}
			fail(ctx, asset, err.Error())
			return errdefs.Permanentf("process asset %s: %v", asset.ID, err)
		}

		var derivatives []types.Derivative
		var derivBytes int64
		for _, f := range files {
			info, err := os.Stat(f.Path)
			if err != nil {
				fail(ctx, asset, fmt.Sprintf("derivative %s not produced", f.Type))
				return errdefs.Permanentf("stat derivative %s for asset %s: %v", f.Type, asset.ID, err)
			}
			key := DerivativeKey(env.TenantID, asset.AssetType, asset.ID, f.Type, filepath.Base(f.Path))
			if err := push(ctx, store, key, f.Path, asset.ContentType, info.Size()); err != nil {
				return errdefs.Transientf("upload derivative %s for %s: %v", f.Type, asset.ID, err)
			}
			derivatives = append(derivatives, types.Derivative{
				Type:       f.Type,
				StorageKey: key,
				Width:      f.Width,
				Height:     f.Height,
				SizeBytes:  info.Size(),
			})
			derivBytes += info.Size()
		}

		// Derivatives live in the tenant's storage too. Charged just
		// before the ready flip so retries never double count a run
		// that died earlier.
		if derivBytes > 0 {
			if _, err := guard.ChargeMediaQuota(ctx, derivBytes); err != nil {
				return err
			}
		}

		asset.Derivatives = derivatives
		asset.Status = types.MediaAssetStatusReady
		if err := guard.UpdateMediaAsset(ctx, asset); err != nil {
			return err
		}

		if broker != nil {
			broker.Publish(&events.Event{
				Type:     events.EventMediaReady,
				TenantID: asset.TenantID,
				Message:  "media processed",
				Metadata: map[string]string{"asset_id": asset.ID},
			})
		}
		return nil
	}
}

// fetch copies one object to a local path.
func fetch(ctx context.Context, store objstore.Client, key, dst string) error {
	rc, err := store.Download(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, rc)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// push uploads one local file as an object.
func push(ctx context.Context, store objstore.Client, key, src, contentType string, size int64) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return store.Upload(ctx, key, f, contentType, size)
}

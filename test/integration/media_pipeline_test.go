package integration

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/agora/pkg/media"
	"github.com/cuemby/agora/pkg/types"
)

// negotiateUpload asks for a presigned ticket covering payload.
func negotiateUpload(t *testing.T, s *stack, host, filename string, size int) (int, []byte) {
	t.Helper()
	return s.storefront(t, http.MethodPost, host, "/api/v1/media/uploads", map[string]any{
		"filename":     filename,
		"content_type": "image/jpeg",
		"size_bytes":   size,
		"asset_type":   "image",
	}, nil)
}

// putObject pushes payload through the ticket's presigned URL.
func putObject(t *testing.T, s *stack, ticket media.UploadTicket, payload []byte) {
	t.Helper()
	req, err := http.NewRequest(ticket.Method, s.relocate(t, ticket.PresignedURL), bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Failed to build upload request: %v", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	resp, err := s.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Upload returned %d, want 204", resp.StatusCode)
	}
}

func TestMediaPipelineProcessesUpload(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	s := startStack(t)
	if _, err := s.admin.CreateTenant("Willow Vintage", "willow", types.TenantQuotas{MediaStorageBytes: 1 << 20}); err != nil {
		t.Fatalf("Failed to create tenant: %v", err)
	}
	host := "willow.agora.test"
	payload := bytes.Repeat([]byte("agora"), 100)

	status, raw := negotiateUpload(t, s, host, "lookbook.jpg", len(payload))
	if status != http.StatusCreated {
		t.Fatalf("Negotiate upload returned %d: %s", status, raw)
	}
	var ticket media.UploadTicket
	unmarshal(t, raw, &ticket)

	putObject(t, s, ticket, payload)

	status, raw = s.storefront(t, http.MethodPost, host, "/api/v1/media/assets/"+ticket.AssetID+"/complete",
		map[string]any{"checksum": "sha256:integration"}, nil)
	if status != http.StatusOK {
		t.Fatalf("Complete upload returned %d: %s", status, raw)
	}
	var asset types.MediaAsset
	unmarshal(t, raw, &asset)
	if asset.Status != types.MediaAssetStatusPending {
		t.Fatalf("Asset is %s after completion, want pending", asset.Status)
	}

	// The dispatcher picks the job up on its next tick.
	waitUntil(t, 10*time.Second, "asset processing", func() bool {
		st, body := s.storefront(t, http.MethodGet, host, "/api/v1/media/assets/"+ticket.AssetID, nil, nil)
		if st != http.StatusOK {
			return false
		}
		var a types.MediaAsset
		unmarshal(t, body, &a)
		return a.Status == types.MediaAssetStatusReady
	})
	t.Logf("Asset %s processed", ticket.AssetID)

	status, raw = s.storefront(t, http.MethodGet, host, "/api/v1/media/assets/"+ticket.AssetID+"/download", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("Download negotiation returned %d: %s", status, raw)
	}
	var dl struct {
		URL string `json:"url"`
	}
	unmarshal(t, raw, &dl)

	resp, err := s.ts.Client().Get(s.relocate(t, dl.URL))
	if err != nil {
		t.Fatalf("Signed download failed: %v", err)
	}
	defer resp.Body.Close()
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read downloaded object: %v", err)
	}
	if resp.StatusCode != http.StatusOK || !bytes.Equal(got, payload) {
		t.Fatalf("Signed download returned %d with %d bytes, want 200 with the original %d", resp.StatusCode, len(got), len(payload))
	}

	t.Logf("✓ Upload negotiated, processed in the background, and served back signed")
}

func TestFailedJobRecoversThroughDLQ(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	s := startStack(t)
	tnt, err := s.admin.CreateTenant("Hazel Vintage", "hazel", types.TenantQuotas{MediaStorageBytes: 1 << 20})
	if err != nil {
		t.Fatalf("Failed to create tenant: %v", err)
	}
	host := "hazel.agora.test"
	payload := bytes.Repeat([]byte("agora"), 64)

	status, raw := negotiateUpload(t, s, host, "banner.jpg", len(payload))
	if status != http.StatusCreated {
		t.Fatalf("Negotiate upload returned %d: %s", status, raw)
	}
	var ticket media.UploadTicket
	unmarshal(t, raw, &ticket)

	// Complete without uploading: the processor finds no original, which is
	// final, so the job dead-letters instead of burning retries.
	status, raw = s.storefront(t, http.MethodPost, host, "/api/v1/media/assets/"+ticket.AssetID+"/complete",
		map[string]any{"checksum": "sha256:integration"}, nil)
	if status != http.StatusOK {
		t.Fatalf("Complete upload returned %d: %s", status, raw)
	}

	var entryID string
	waitUntil(t, 10*time.Second, "job to dead-letter", func() bool {
		entries, err := s.admin.ListDLQ(tnt.ID, media.JobKindProcess)
		if err != nil || len(entries) != 1 {
			return false
		}
		entryID = entries[0].ID
		return true
	})

	status, raw = s.storefront(t, http.MethodGet, host, "/api/v1/media/assets/"+ticket.AssetID, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("Get asset returned %d: %s", status, raw)
	}
	var asset types.MediaAsset
	unmarshal(t, raw, &asset)
	if asset.Status != types.MediaAssetStatusFailed {
		t.Fatalf("Asset is %s after the dead-letter, want failed", asset.Status)
	}
	t.Logf("Job dead-lettered: %s", asset.Error)

	// Operator path: land the missing bytes, then requeue from the DLQ.
	putObject(t, s, ticket, payload)
	if err := s.admin.RequeueDLQ(entryID); err != nil {
		t.Fatalf("Failed to requeue job: %v", err)
	}

	waitUntil(t, 10*time.Second, "requeued job to finish", func() bool {
		st, body := s.storefront(t, http.MethodGet, host, "/api/v1/media/assets/"+ticket.AssetID, nil, nil)
		if st != http.StatusOK {
			return false
		}
		var a types.MediaAsset
		unmarshal(t, body, &a)
		return a.Status == types.MediaAssetStatusReady
	})

	entries, err := s.admin.ListDLQ(tnt.ID, media.JobKindProcess)
	if err != nil {
		t.Fatalf("Failed to list DLQ: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("DLQ still holds %d entries after recovery", len(entries))
	}

	t.Logf("✓ Dead-lettered job recovered through operator requeue")
}

func TestQuotaCeilingBlocksUploads(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	s := startStack(t)
	tnt, err := s.admin.CreateTenant("Rowan Vintage", "rowan", types.TenantQuotas{MediaStorageBytes: 300})
	if err != nil {
		t.Fatalf("Failed to create tenant: %v", err)
	}
	host := "rowan.agora.test"

	status, raw := negotiateUpload(t, s, host, "catalog.jpg", 500)
	if status != http.StatusPaymentRequired {
		t.Fatalf("Over-quota negotiate returned %d: %s", status, raw)
	}
	if !strings.Contains(string(raw), "raise the quota") {
		t.Fatalf("Quota problem carries no remediation: %s", raw)
	}

	// Raising the ceiling unblocks the same request.
	if _, err := s.admin.UpdateQuotas(tnt.ID, types.TenantQuotas{MediaStorageBytes: 10_000}); err != nil {
		t.Fatalf("Failed to raise quota: %v", err)
	}
	status, raw = negotiateUpload(t, s, host, "catalog.jpg", 500)
	if status != http.StatusCreated {
		t.Fatalf("Negotiate after quota raise returned %d: %s", status, raw)
	}

	t.Logf("✓ Quota ceiling enforced and lifted through the admin surface")
}

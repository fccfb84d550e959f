package inventory

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/jobs"
	"github.com/cuemby/agora/pkg/objstore"
	"github.com/cuemby/agora/pkg/storage"
)

// LabelKey is where a transfer's label manifest lives in object storage.
func LabelKey(tenantID, transferID string) string {
	return fmt.Sprintf("%s/inventory/%s/labels.csv", tenantID, transferID)
}

// NewLabelHandler returns the job handler for JobKindBarcodeLabels: it
// renders one CSV row per unit moved so the picking floor can print a label
// strip for the outgoing boxes. The processor binds the tenant before
// calling in.
func NewLabelHandler(guard *storage.Guard, store objstore.Client) jobs.Handler {
	return func(ctx context.Context, env *jobs.Envelope) error {
		var job BarcodeLabelJob
		if err := json.Unmarshal(env.Data, &job); err != nil {
			return errdefs.Permanentf("malformed label payload: %v", err)
		}
		if job.TransferID == "" {
			return errdefs.Permanentf("label payload missing transfer_id")
		}

		t, err := guard.GetTransfer(ctx, job.TransferID)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write([]string{"sku", "variant_id", "transfer_id", "dest_location", "unit"}); err != nil {
			return fmt.Errorf("write label header: %w", err)
		}
		for _, line := range t.Lines {
			v, err := guard.GetVariant(ctx, line.VariantID)
			if err != nil {
				return err
			}
			for unit := 1; unit <= line.Qty; unit++ {
				row := []string{v.SKU, v.ID, t.ID, t.DestLocationID, strconv.Itoa(unit)}
				if err := w.Write(row); err != nil {
					return fmt.Errorf("write label row: %w", err)
				}
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("flush labels: %w", err)
		}

		key := LabelKey(env.TenantID, t.ID)
		if err := store.Upload(ctx, key, &buf, "text/csv", int64(buf.Len())); err != nil {
			return errdefs.Transientf("upload labels for %s: %v", t.ID, err)
		}
		return nil
	}
}

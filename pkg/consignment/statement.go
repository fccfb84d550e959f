package consignment

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

// StatementKey is where a batch's CSV statement lives in object storage.
func StatementKey(tenantID, batchID string) string {
	return fmt.Sprintf("%s/consignment/%s/statement.csv", tenantID, batchID)
}

// NewStatementHandler returns the job handler for JobKindPayoutStatement:
// it renders the batch as CSV and uploads it next to the tenant's other
// exports. The processor binds the tenant before calling in.
func NewStatementHandler(guard *storage.Guard, store objstore.Client) jobs.Handler {
	return func(ctx context.Context, env *jobs.Envelope) error {
		var job StatementJob
		if err := json.Unmarshal(env.Data, &job); err != nil {
			return errdefs.Permanentf("malformed statement payload: %v", err)
		}
		if job.BatchID == "" {
			return errdefs.Permanentf("statement payload missing batch_id")
		}

		batch, err := guard.GetPayoutBatch(ctx, job.BatchID)
		if err != nil {
			return err
		}
		consignor, err := guard.GetConsignor(ctx, batch.ConsignorID)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write([]string{"item_id", "description", "sold_at", "sale_cents", "commission_pct", "payout_cents"}); err != nil {
			return fmt.Errorf("write statement header: %w", err)
		}
		for _, id := range batch.ItemIDs {
			item, err := guard.GetConsignmentItem(ctx, id)
			if err != nil {
				return err
			}
			row := []string{
				item.ID,
				item.Description,
				item.SoldAt.UTC().Format("2006-01-02"),
				strconv.FormatInt(item.SalePriceCents, 10),
				strconv.FormatFloat(item.CommissionRate.Float(), 'f', 2, 64),
				strconv.FormatInt(payoutCents(item.SalePriceCents, item.CommissionRate), 10),
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("write statement row: %w", err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("flush statement: %w", err)
		}

		key := StatementKey(env.TenantID, batch.ID)
		if err := store.Upload(ctx, key, &buf, "text/csv", int64(buf.Len())); err != nil {
			return errdefs.Transientf("upload statement for %s (consignor %s): %v", batch.ID, consignor.ID, err)
		}
		return nil
	}
}

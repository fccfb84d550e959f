package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/agora/pkg/reporting"
	"github.com/cuemby/agora/pkg/storage"
)

var (
	dataDir      = flag.String("data-dir", "/var/lib/agora", "Agora data directory")
	dryRun       = flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	backupPath   = flag.String("backup", "", "Path to backup the database before migration (default: <data-dir>/agora.db.backup)")
	reportingDSN = flag.String("reporting-dsn", "", "Apply reporting warehouse migrations to this Postgres DSN and exit")
)

// primaryBuckets hold JSON rows that carry their tenant id. Legacy rows
// keyed without the tenant prefix are rewritten under tenant-scoped keys.
var primaryBuckets = []string{
	"feature_flags", "products", "variants", "locations",
	"stock_levels", "reservations", "transfers", "stock_adjustments",
	"carts", "orders", "tenders", "payment_intents",
	"gift_cards", "store_credits", "ledger", "consignors",
	"consignment_items", "payout_batches", "media_assets", "media_access",
	"report_jobs", "idempotency", "audit",
}

// indexBuckets map a lookup key to a row id rather than holding JSON, so
// they cannot be rewritten in place; they are rebuilt from their source
// bucket after the primary rows are scoped.
var indexBuckets = []indexSpec{
	{name: "product_skus", source: "products", field: "sku"},
	{name: "gift_card_codes", source: "gift_cards", field: "code"},
	{name: "payment_intent_refs", source: "payment_intents", field: "provider_ref"},
}

type indexSpec struct {
	name   string
	source string
	field  string
}

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Agora Database Migration Tool - tenant key scoping")
	log.Println("==================================================")

	if *reportingDSN != "" {
		migrateReporting(*reportingDSN)
		return
	}

	dbPath := filepath.Join(*dataDir, "agora.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("Database not found at %s", dbPath)
	}

	log.Printf("Database: %s", dbPath)
	log.Printf("Dry run: %v", *dryRun)

	// Create backup unless in dry-run mode
	if !*dryRun {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = dbPath + ".backup"
		}
		log.Printf("Creating backup: %s", backupFile)
		if err := copyFile(dbPath, backupFile); err != nil {
			log.Fatalf("Failed to create backup: %v", err)
		}
		log.Println("✓ Backup created successfully")
	}

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := migrateTenantKeys(db, *dryRun); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if *dryRun {
		log.Println("")
		log.Println("Dry run completed. No changes made.")
		log.Println("Run without --dry-run to perform the migration.")
	} else {
		log.Println("")
		log.Println("✓ Migration completed successfully!")
	}
}

// migrateReporting applies the goose migrations the server also runs at
// startup. Useful for preparing the warehouse before first boot.
func migrateReporting(dsn string) {
	db, err := reporting.Open(dsn)
	if err != nil {
		log.Fatalf("Failed to connect to reporting database: %v", err)
	}
	defer db.Close()

	if *dryRun {
		log.Println("Reporting migrations are versioned; dry run has nothing to show.")
		log.Println("Run without --dry-run to apply them.")
		return
	}
	if err := reporting.Migrate(db.DB); err != nil {
		log.Fatalf("Reporting migration failed: %v", err)
	}
	log.Println("✓ Reporting migrations applied")
}

func migrateTenantKeys(db *bolt.DB, dryRun bool) error {
	tenants, err := loadTenantIDs(db)
	if err != nil {
		return err
	}
	log.Printf("Found %d tenants", len(tenants))

	// Inspection pass: count rows still keyed without a tenant prefix.
	legacy := make(map[string]int, len(primaryBuckets))
	total := 0
	err = db.View(func(tx *bolt.Tx) error {
		for _, name := range primaryBuckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			b.ForEach(func(k, v []byte) error {
				if !scoped(string(k), tenants) {
					legacy[name]++
					total++
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	if total == 0 {
		log.Println("✓ No legacy rows found - database is already tenant-scoped")
	} else {
		log.Printf("Found %d legacy rows to rewrite:", total)
		for _, name := range primaryBuckets {
			if legacy[name] > 0 {
				log.Printf("  %-20s %d", name, legacy[name])
			}
		}
	}

	if dryRun {
		log.Println("")
		log.Println("[DRY RUN] Would perform the following operations:")
		log.Printf("1. Rewrite %d rows under tenant-scoped keys", total)
		log.Println("2. Rebuild the sku, gift card code, and intent ref indexes")
		log.Println("3. Rebuild the cart owner index")
		return nil
	}

	return db.Update(func(tx *bolt.Tx) error {
		rewritten := 0
		for _, name := range primaryBuckets {
			n, err := rewriteBucket(tx, name, tenants)
			if err != nil {
				return fmt.Errorf("bucket %s: %w", name, err)
			}
			rewritten += n
		}
		log.Printf("✓ Rewrote %d/%d legacy rows", rewritten, total)

		for _, spec := range indexBuckets {
			n, err := rebuildIndex(tx, spec)
			if err != nil {
				return fmt.Errorf("index %s: %w", spec.name, err)
			}
			log.Printf("✓ Rebuilt %s (%d entries)", spec.name, n)
		}

		n, err := rebuildCartOwners(tx)
		if err != nil {
			return fmt.Errorf("index cart_owners: %w", err)
		}
		log.Printf("✓ Rebuilt cart_owners (%d entries)", n)
		return nil
	})
}

// loadTenantIDs reads the tenants bucket so key inspection can tell a
// scoped key from a legacy one that merely contains a slash (stock levels,
// ledger sequence keys).
func loadTenantIDs(db *bolt.DB) (map[string]bool, error) {
	tenants := make(map[string]bool)
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte("tenants"))
		if b == nil {
			return fmt.Errorf("tenants bucket missing; is this an Agora database?")
		}
		return b.ForEach(func(k, v []byte) error {
			tenants[string(k)] = true
			return nil
		})
	})
	return tenants, err
}

// scoped reports whether the key's first segment is a known tenant id.
func scoped(key string, tenants map[string]bool) bool {
	tenantID, rest := storage.SplitScopedKey(key)
	return rest != "" && tenants[tenantID]
}

// rewriteBucket moves every legacy row under its tenant-scoped key. The
// tenant id comes from the row body; rows without one are left alone and
// reported for manual review.
func rewriteBucket(tx *bolt.Tx, name string, tenants map[string]bool) (int, error) {
	b := tx.Bucket([]byte(name))
	if b == nil {
		return 0, nil
	}

	type move struct {
		oldKey, newKey string
		value          []byte
	}
	var moves []move

	err := b.ForEach(func(k, v []byte) error {
		key := string(k)
		if scoped(key, tenants) {
			return nil
		}
		var row struct {
			TenantID string `json:"tenant_id"`
		}
		if err := json.Unmarshal(v, &row); err != nil {
			log.Printf("⚠ Warning: skipping %s/%s: invalid JSON: %v", name, key, err)
			return nil
		}
		if row.TenantID == "" {
			log.Printf("⚠ Warning: skipping %s/%s: row carries no tenant id", name, key)
			return nil
		}
		val := make([]byte, len(v))
		copy(val, v)
		moves = append(moves, move{
			oldKey: key,
			newKey: storage.ScopedKey(row.TenantID, key),
			value:  val,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, m := range moves {
		if err := b.Put([]byte(m.newKey), m.value); err != nil {
			return 0, err
		}
		if err := b.Delete([]byte(m.oldKey)); err != nil {
			return 0, err
		}
	}
	return len(moves), nil
}

// rebuildIndex drops the index bucket's contents and refills it from the
// now-scoped source rows.
func rebuildIndex(tx *bolt.Tx, spec indexSpec) (int, error) {
	idx := tx.Bucket([]byte(spec.name))
	src := tx.Bucket([]byte(spec.source))
	if idx == nil || src == nil {
		return 0, nil
	}
	if err := clearBucket(idx); err != nil {
		return 0, err
	}

	count := 0
	err := src.ForEach(func(k, v []byte) error {
		var row map[string]any
		if err := json.Unmarshal(v, &row); err != nil {
			return nil
		}
		tenantID, _ := str(row["tenant_id"])
		lookup, ok := str(row[spec.field])
		id, _ := str(row["id"])
		if tenantID == "" || !ok || lookup == "" || id == "" {
			return nil
		}
		count++
		return idx.Put([]byte(storage.ScopedKey(tenantID, lookup)), []byte(id))
	})
	return count, err
}

// rebuildCartOwners refills the owner index that maps a user or session to
// its open cart.
func rebuildCartOwners(tx *bolt.Tx) (int, error) {
	idx := tx.Bucket([]byte("cart_owners"))
	src := tx.Bucket([]byte("carts"))
	if idx == nil || src == nil {
		return 0, nil
	}
	if err := clearBucket(idx); err != nil {
		return 0, err
	}

	count := 0
	err := src.ForEach(func(k, v []byte) error {
		var row struct {
			ID        string `json:"id"`
			TenantID  string `json:"tenant_id"`
			UserID    string `json:"user_id"`
			SessionID string `json:"session_id"`
			Status    string `json:"status"`
		}
		if err := json.Unmarshal(v, &row); err != nil || row.ID == "" || row.TenantID == "" {
			return nil
		}
		// Only open carts are reachable through the owner index.
		if row.Status != "open" {
			return nil
		}
		if row.UserID != "" {
			if err := idx.Put([]byte(row.TenantID+"/user/"+row.UserID), []byte(row.ID)); err != nil {
				return err
			}
			count++
		}
		if row.SessionID != "" {
			if err := idx.Put([]byte(row.TenantID+"/session/"+row.SessionID), []byte(row.ID)); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

func clearBucket(b *bolt.Bucket) error {
	var keys [][]byte
	b.ForEach(func(k, v []byte) error {
		key := make([]byte, len(k))
		copy(key, k)
		keys = append(keys, key)
		return nil
	})
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func str(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}

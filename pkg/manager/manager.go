package manager

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/cuemby/agora/pkg/audit"
	"github.com/cuemby/agora/pkg/cache"
	"github.com/cuemby/agora/pkg/cart"
	"github.com/cuemby/agora/pkg/catalog"
	"github.com/cuemby/agora/pkg/checkout"
	"github.com/cuemby/agora/pkg/config"
	"github.com/cuemby/agora/pkg/consignment"
	"github.com/cuemby/agora/pkg/events"
	"github.com/cuemby/agora/pkg/inventory"
	"github.com/cuemby/agora/pkg/jobs"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/media"
	"github.com/cuemby/agora/pkg/metrics"
	"github.com/cuemby/agora/pkg/objstore"
	"github.com/cuemby/agora/pkg/payments"
	"github.com/cuemby/agora/pkg/ratelimit"
	"github.com/cuemby/agora/pkg/reporting"
	"github.com/cuemby/agora/pkg/security"
	"github.com/cuemby/agora/pkg/storage"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

// dispatchInterval is the fixed cadence of the background dispatcher. Ticks
// that land while a drain is still running are skipped, not stacked.
const dispatchInterval = 500 * time.Millisecond

// Manager is the composition root: it builds every long-lived component and
// starts and stops them in dependency order. One Manager runs per process;
// the API server and the reconciler are wired on top of it by cmd/agora.
type Manager struct {
	cfg    *config.Config
	logger zerolog.Logger

	store       *storage.BoltStore
	guard       *storage.Guard
	sink        audit.Sink
	broker      *events.Broker
	cache       cache.Cache
	invalidator *cache.Invalidator
	limiter     *ratelimit.Limiter

	queue     *jobs.Queue
	dlq       *jobs.DeadLetter
	processor *jobs.Processor

	objects  objstore.Client
	creds    *security.CredentialVault
	provider payments.Provider

	tenants  *tenant.Service
	resolver *tenant.Resolver
	tokens   *tenant.TokenManager

	catalog     *catalog.Service
	carts       *cart.Service
	inventory   *inventory.Service
	consignment *consignment.Service
	media       *media.Service
	reporting   *reporting.Service
	saga        *checkout.Saga

	reportingDB *sqlx.DB
	cron        *cron.Cron
	collector   *Collector

	dispatchStop context.CancelFunc
	wg           sync.WaitGroup
}

// NewManager builds the full component graph from config. Nothing but the
// event broker runs until Start.
func NewManager(cfg *config.Config) (*Manager, error) {
	logger := log.WithComponent("manager")

	store, err := storage.NewBoltStore(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	guard := storage.NewGuard(store)
	sink := audit.NewBoltSink(store)

	broker := events.NewBroker()
	broker.Start()

	c, err := buildCache(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	limiter := ratelimit.New(cfg.RateLimit)

	queue := jobs.NewQueue(cfg.Queue.Bounds)
	dlq := jobs.NewDeadLetter(store, broker)
	processor := jobs.NewProcessor(queue, dlq, store, jobs.NewPolicies(cfg.Retry), cfg.Queue)

	objects, err := objstore.NewLocal(cfg.Media.LocalDir, objectBaseURL(cfg))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open object store: %w", err)
	}

	vault, err := buildVault(cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	creds := security.NewCredentialVault(vault, store)
	provider := payments.NewHTTPProvider(cfg.Payments, creds)

	tokens := tenant.NewTokenManager(store, cfg.Impersonation.TokenTTL.Std())
	tenants := tenant.NewService(store, broker, cfg.Server.BaseDomain)
	resolver := tenant.NewResolver(store, c, broker, cfg.Server.BaseDomain, cfg.Cache.HostTTL.Std())

	var (
		reportingDB *sqlx.DB
		aggregates  *reporting.AggregateStore
	)
	if cfg.Reporting.DSN != "" {
		reportingDB, err = reporting.Open(cfg.Reporting.DSN)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("open reporting store: %w", err)
		}
		aggregates = reporting.NewAggregateStore(reportingDB)
	} else {
		logger.Warn().Msg("no reporting DSN configured, aggregate reads disabled")
	}

	m := &Manager{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		guard:       guard,
		sink:        sink,
		broker:      broker,
		cache:       c,
		invalidator: cache.NewInvalidator(c, broker),
		limiter:     limiter,
		queue:       queue,
		dlq:         dlq,
		processor:   processor,
		objects:     objects,
		creds:       creds,
		provider:    provider,
		tenants:     tenants,
		resolver:    resolver,
		tokens:      tokens,
		reportingDB: reportingDB,
	}

	m.catalog = catalog.NewService(guard, c, broker, cfg.Cache)
	m.carts = cart.NewService(guard)
	m.inventory = inventory.NewService(guard, queue, sink, broker)
	m.consignment = consignment.NewService(guard, queue, broker)
	m.media = media.NewService(guard, objects, queue, cfg.Media)
	m.reporting = reporting.NewService(guard, aggregates, queue)
	m.saga = checkout.NewSaga(guard, m.inventory, provider, broker, cfg.Checkout)

	processor.Register(media.JobKindProcess, media.NewProcessHandler(guard, objects, media.NopProcessor{}, broker))
	processor.Register(reporting.JobKindRefresh, reporting.NewRefreshHandler(guard, aggregates))
	processor.Register(reporting.JobKindExport, reporting.NewExportHandler(guard, aggregates, objects, cfg.Reporting))
	processor.Register(consignment.JobKindPayoutStatement, consignment.NewStatementHandler(guard, objects))
	processor.Register(inventory.JobKindBarcodeLabels, inventory.NewLabelHandler(guard, objects))

	m.collector = NewCollector(m)
	if err := m.buildCron(); err != nil {
		store.Close()
		return nil, err
	}

	metrics.RegisterComponent("storage", true, "bolt store open")
	metrics.RegisterComponent("queue", true, "dispatcher idle")

	return m, nil
}

// buildCache picks Redis when configured and falls back to the in-process
// cache otherwise. A configured-but-unreachable Redis fails startup; silent
// fallback would hide a production misconfiguration.
func buildCache(cfg *config.Config) (cache.Cache, error) {
	if cfg.Redis.Addr == "" {
		return cache.NewMemory(cfg.Cache.MaxEntries), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("connect cache: %w", err)
	}
	return c, nil
}

// buildVault prepares the credential vault. Without a configured passphrase
// the key is derived from the base domain, which protects against casual
// inspection only; production deployments set AGORA_CREDENTIAL_PASSPHRASE.
func buildVault(cfg *config.Config, logger zerolog.Logger) (*security.Vault, error) {
	if cfg.Payments.CredentialPassphrase != "" {
		return security.NewVaultFromPassphrase(cfg.Payments.CredentialPassphrase)
	}
	logger.Warn().Msg("no credential passphrase configured, deriving vault key from base domain")
	key := sha256.Sum256([]byte("agora-vault:" + cfg.Server.BaseDomain))
	return security.NewVault(key[:])
}

// objectBaseURL is where this process serves its own signed object URLs.
func objectBaseURL(cfg *config.Config) string {
	_, port, err := net.SplitHostPort(cfg.Server.Listen)
	if err != nil || port == "" || port == "80" {
		return "http://" + cfg.Server.BaseDomain
	}
	return fmt.Sprintf("http://%s:%s", cfg.Server.BaseDomain, port)
}

// buildCron schedules recurring platform work: the aggregate refresh sweep
// and the media temp-dir sweep. One-off state repair lives in the
// reconciler, not here.
func (m *Manager) buildCron() error {
	m.cron = cron.New()

	if _, err := m.cron.AddFunc(m.cfg.Reporting.RefreshCron, m.refreshAggregates); err != nil {
		return fmt.Errorf("invalid refresh cron %q: %w", m.cfg.Reporting.RefreshCron, err)
	}
	if _, err := m.cron.AddFunc("@hourly", m.sweepMediaTemp); err != nil {
		return fmt.Errorf("schedule media sweep: %w", err)
	}
	return nil
}

// refreshAggregates queues a sales_daily rebuild of the trailing two days
// for every active tenant. Two days covers orders that complete around
// midnight without rebuilding history.
func (m *Manager) refreshAggregates() {
	if m.reportingDB == nil {
		return
	}
	tenants, err := m.store.ListTenants()
	if err != nil {
		m.logger.Error().Err(err).Msg("refresh sweep could not list tenants")
		return
	}

	end := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -2)
	for _, t := range tenants {
		if t.Status != types.TenantStatusActive {
			continue
		}
		err := tenant.RunAs(context.Background(), &tenant.Binding{Tenant: t, Actor: "system:cron"}, func(ctx context.Context) error {
			_, err := m.reporting.RequestRefresh(ctx, reporting.AggregateSalesDaily, start, end)
			return err
		})
		if err != nil {
			m.logger.Warn().Err(err).Str("tenant_id", t.ID).Msg("refresh request not queued")
		}
	}
}

// sweepMediaTemp removes work directories orphaned by a crash mid-job. The
// media handler cleans its directory on every normal exit path, so anything
// old enough here is dead.
func (m *Manager) sweepMediaTemp() {
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "agora-media-*"))
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, dir := range matches {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			m.logger.Warn().Err(err).Str("dir", dir).Msg("media temp sweep failed")
		} else {
			m.logger.Info().Str("dir", dir).Msg("removed orphaned media work dir")
		}
	}
}

// Start launches the background dispatcher, the metrics collector, and the
// cron schedule.
func (m *Manager) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	m.dispatchStop = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.processor.DispatchLoop(ctx, dispatchInterval)
	}()

	m.invalidator.Start()
	m.collector.Start()
	m.cron.Start()

	m.logger.Info().
		Str("data_dir", m.cfg.Storage.DataDir).
		Str("base_domain", m.cfg.Server.BaseDomain).
		Bool("reporting", m.reportingDB != nil).
		Msg("manager started")
	return nil
}

// Stop shuts components down in reverse dependency order: stop producing
// work, drain the machinery, then close the stores.
func (m *Manager) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
	if m.collector != nil {
		m.collector.Stop()
	}
	if m.dispatchStop != nil {
		m.dispatchStop()
	}
	m.wg.Wait()

	m.limiter.Stop()
	m.invalidator.Stop()
	m.broker.Stop()

	if err := m.cache.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("cache close failed")
	}
	if m.reportingDB != nil {
		if err := m.reportingDB.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("reporting store close failed")
		}
	}
	if err := m.store.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("store close failed")
	}
	m.logger.Info().Msg("manager stopped")
}

// Config returns the process configuration.
func (m *Manager) Config() *config.Config { return m.cfg }

// Store returns the embedded store. Platform-scoped callers only; request
// paths go through Guard.
func (m *Manager) Store() *storage.BoltStore { return m.store }

// Guard returns the tenant-scoped storage facade.
func (m *Manager) Guard() *storage.Guard { return m.guard }

// Audit returns the synchronous audit sink.
func (m *Manager) Audit() audit.Sink { return m.sink }

// Broker returns the platform event broker.
func (m *Manager) Broker() *events.Broker { return m.broker }

// Cache returns the shared tenant-keyed cache.
func (m *Manager) Cache() cache.Cache { return m.cache }

// Limiter returns the per-tenant rate limiter.
func (m *Manager) Limiter() *ratelimit.Limiter { return m.limiter }

// Queue returns the priority job queue.
func (m *Manager) Queue() *jobs.Queue { return m.queue }

// DLQ returns the dead letter queue.
func (m *Manager) DLQ() *jobs.DeadLetter { return m.dlq }

// Processor returns the job dispatcher.
func (m *Manager) Processor() *jobs.Processor { return m.processor }

// Objects returns the object storage client.
func (m *Manager) Objects() objstore.Client { return m.objects }

// Credentials returns the payment credential vault.
func (m *Manager) Credentials() *security.CredentialVault { return m.creds }

// Provider returns the payment gateway client.
func (m *Manager) Provider() payments.Provider { return m.provider }

// Tenants returns the tenant lifecycle service.
func (m *Manager) Tenants() *tenant.Service { return m.tenants }

// Resolver returns the host-to-tenant resolver.
func (m *Manager) Resolver() *tenant.Resolver { return m.resolver }

// Tokens returns the impersonation token manager.
func (m *Manager) Tokens() *tenant.TokenManager { return m.tokens }

// Catalog returns the product catalog service.
func (m *Manager) Catalog() *catalog.Service { return m.catalog }

// Carts returns the cart service.
func (m *Manager) Carts() *cart.Service { return m.carts }

// Inventory returns the inventory service.
func (m *Manager) Inventory() *inventory.Service { return m.inventory }

// Consignment returns the consignment service.
func (m *Manager) Consignment() *consignment.Service { return m.consignment }

// Media returns the media pipeline service.
func (m *Manager) Media() *media.Service { return m.media }

// Reporting returns the reporting service.
func (m *Manager) Reporting() *reporting.Service { return m.reporting }

// Saga returns the checkout coordinator.
func (m *Manager) Saga() *checkout.Saga { return m.saga }

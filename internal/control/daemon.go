package control

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/mpath/internal/core/config"
	"github.com/vietddude/mpath/internal/core/worker"
	"github.com/vietddude/mpath/internal/fabric"
	"github.com/vietddude/mpath/internal/health"
	grpcprobe "github.com/vietddude/mpath/internal/infra/grpc"
	redisclient "github.com/vietddude/mpath/internal/infra/redis"
	"github.com/vietddude/mpath/internal/infra/storage/postgres"
	"github.com/vietddude/mpath/internal/infra/target/mem"
	"github.com/vietddude/mpath/internal/mpath"
)

// Daemon is the main application struct that manages the host lifecycle.
type Daemon struct {
	cfg          *config.AppConfig
	host         *fabric.Host
	targets      map[string]*mem.Target
	controllers  []*fabric.Controller
	probers      []*grpcprobe.Prober
	pruner       *worker.Pruner
	healthMon    *health.Monitor
	healthServer *health.Server
	healthLn     net.Listener
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewDaemon creates a new Daemon with all dependencies initialized.
// Controllers are created but not connected until Start.
func NewDaemon(ctx context.Context, cfg *config.AppConfig) (*Daemon, error) {
	d := &Daemon{
		cfg:     cfg,
		targets: make(map[string]*mem.Target),
		log:     slog.Default(),
	}

	// 1. Device registry backends
	var pubs []mpath.AttrPublisher
	var deviceRepo *postgres.DeviceRepo

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		d.db = db
		deviceRepo = postgres.NewDeviceRepo(db)
		pubs = append(pubs, deviceRepo)
		d.log.Info("Using PostgreSQL device registry")
	}

	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			d.log.Warn("Failed to connect to Redis, attribute export disabled", "error", err)
		} else {
			d.redisClient = client
			pubs = append(pubs, redisclient.NewAttrPublisher(client, "mpath"))
		}
	}

	// 2. Host
	mcfg, err := multipathConfig(cfg.Multipath)
	if err != nil {
		d.closeBackends()
		return nil, err
	}
	d.host = fabric.NewHost(fabric.HostOptions{
		Multipath: mcfg,
		Reconnect: fabric.ReconnectConfig{
			MaxAttempts:     cfg.Reconnect.MaxAttempts,
			InitialDelay:    cfg.Reconnect.InitialDelay,
			MaxDelay:        cfg.Reconnect.MaxDelay,
			BackoffMultiple: cfg.Reconnect.BackoffMultiple,
		},
		Publisher: newPublisher(pubs...),
		Logger:    d.log,
	})

	// 3. Targets and controllers
	for _, sc := range cfg.Subsystems {
		if err := d.addSubsystem(sc); err != nil {
			_ = d.Stop(ctx)
			return nil, fmt.Errorf("subsystem %s: %w", sc.NQN, err)
		}
	}

	// 4. Health
	d.healthMon = health.NewMonitor(d.host, nil, time.Second)
	d.healthServer = health.NewServer(d.healthMon, cfg.Server.Port)

	// 5. Registry pruner
	if deviceRepo != nil && cfg.Database.PruneAfter > 0 {
		reg := d.host.Registry()
		d.pruner = worker.NewPruner(deviceRepo, func(name string) bool {
			_, ok := reg.Lookup(name)
			return ok
		}, cfg.Database.PruneAfter, nil)
	}

	return d, nil
}

func multipathConfig(c config.MultipathConfig) (mpath.Config, error) {
	policy, err := mpath.ParsePolicy(c.IOPolicy)
	if err != nil {
		return mpath.Config{}, err
	}
	mcfg := mpath.DefaultConfig()
	mcfg.Enabled = c.IsEnabled()
	mcfg.Policy = policy
	if c.DiagBurst > 0 {
		mcfg.DiagBurst = c.DiagBurst
	}
	if c.DiagWindow > 0 {
		mcfg.DiagWindow = c.DiagWindow
	}
	return mcfg, nil
}

func (d *Daemon) addSubsystem(sc config.SubsystemConfig) error {
	target := mem.NewTarget(d.log.With("subsystem", sc.NQN))
	for _, ns := range sc.Namespaces {
		if _, err := target.AddNamespace(ns.NSID, ns.SizeBytes, ns.BlockSize); err != nil {
			return err
		}
	}
	d.targets[sc.NQN] = target

	subsys := d.host.AddSubsystem(sc.NQN, sc.CMIC)
	for _, cc := range sc.Controllers {
		c, err := d.host.AddController(subsys, cc.Name, cc.CntlID, cc.VWC, target.Port(cc.Name))
		if err != nil {
			return err
		}
		d.controllers = append(d.controllers, c)

		if cc.HealthEndpoint == "" {
			continue
		}
		p, err := grpcprobe.NewProber(grpcprobe.Config{Endpoint: cc.HealthEndpoint}, c, nil, d.log)
		if err != nil {
			return err
		}
		d.probers = append(d.probers, p)
	}
	return nil
}

// Host returns the fabric host.
func (d *Daemon) Host() *fabric.Host { return d.host }

// Target returns the in-memory target serving nqn.
func (d *Daemon) Target(nqn string) (*mem.Target, bool) {
	t, ok := d.targets[nqn]
	return t, ok
}

// Start connects every controller and starts the background services.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	ln, err := d.healthServer.Listen()
	if err != nil {
		return fmt.Errorf("health server: %w", err)
	}
	d.healthLn = ln

	for _, c := range d.controllers {
		if err := c.Connect(ctx); err != nil {
			_ = ln.Close()
			return err
		}
		d.log.Info("Controller connected",
			"controller", c.Name(),
			"subsystem", c.Subsystem().NQN(),
			"namespaces", len(c.Namespaces()),
		)
	}

	// The background services run until Stop cancels ctx; a failing
	// health server does not take them down.
	d.group = new(errgroup.Group)
	d.group.Go(func() error {
		if err := d.healthServer.Serve(ln); err != nil {
			d.log.Error("Health server failed", "error", err)
			return err
		}
		return nil
	})

	// Start DB Metrics Collector
	if d.db != nil {
		d.db.StartMetricsCollector(ctx)
	}

	for _, p := range d.probers {
		p.Start(ctx)
	}

	if d.pruner != nil {
		d.group.Go(func() error {
			d.pruner.Start(ctx)
			return nil
		})
	}

	return nil
}

// Stop tears every head down and releases the backends.
func (d *Daemon) Stop(ctx context.Context) error {
	d.log.Info("Stopping daemon...")

	var errs error
	for _, p := range d.probers {
		errs = multierr.Append(errs, p.Stop())
	}

	// Subsystems are independent; tear them down in parallel.
	var g errgroup.Group
	for _, s := range d.host.Subsystems() {
		g.Go(func() error {
			var serr error
			for _, c := range s.Controllers() {
				serr = multierr.Append(serr, c.Delete(ctx))
			}
			return serr
		})
	}
	errs = multierr.Append(errs, g.Wait())

	if d.cancel != nil {
		d.cancel()
	}
	if d.healthServer != nil {
		errs = multierr.Append(errs, d.healthServer.Stop(ctx))
	}
	if d.group != nil {
		errs = multierr.Append(errs, d.group.Wait())
	}

	d.closeBackends()
	return errs
}

func (d *Daemon) closeBackends() {
	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			d.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			d.log.Warn("Failed to close database", "error", err)
		}
	}
}

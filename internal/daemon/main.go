// Package daemon assembles the application: database, remote gateway
// client, background workers, periodic sweeps and the web service.
package daemon

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/GoVPN-Admin/GoVPN-Admin/internal/config"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/db/dsn"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/db/models"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/dirsync"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/ikuai"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/jobs"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/lifecycle"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/secret"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/vpnconfig"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/web"
)

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	webService web.Service
	dispatcher *jobs.Dispatcher
	cron       *cron.Cron
	reconciler *dirsync.Reconciler
}

// Start runs the periodic sweeps and the web service. It blocks until the
// web service stops.
func (d *Daemon) Start() error {
	d.cron.Start()

	go d.webService.WaitShutdown()

	err := d.webService.Start(fmt.Sprintf(":%d", d.cfg.Webserver.Port))

	d.cron.Stop()
	d.dispatcher.Stop()

	return err
}

// SyncDirectory runs a single full directory sync. Used by the one-shot
// sync command and the hourly schedule.
func (d *Daemon) SyncDirectory() error {
	if d.reconciler == nil {
		return nil
	}

	result, err := d.reconciler.SyncAll()
	if err != nil {
		return err
	}

	log.Info().
		Int("departments_created", result.DepartmentsCreated).
		Int("departments_updated", result.DepartmentsUpdated).
		Int("identities_created", result.IdentitiesCreated).
		Int("identities_updated", result.IdentitiesUpdated).
		Int("identities_deactivated", result.IdentitiesDeactivated).
		Int("errors", len(result.Errors)).
		Msg("directory sync finished")

	return nil
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.DB.GormEngine {
	case "mysql":
		dialector = gormmysql.Open(dsn.MySQL(cfg))
	case "postgres":
		dialector = gormpostgres.Open(dsn.Postgres(cfg))
	case "sqlite", "":
		dialector = sqlite.Open(dsn.SQLite(cfg))
	default:
		return nil, fmt.Errorf("unknown database engine %q", cfg.DB.GormEngine)
	}

	// TranslateError maps driver-specific unique violations to
	// gorm.ErrDuplicatedKey, which the lifecycle engine relies on.
	return gorm.Open(dialector, &gorm.Config{TranslateError: true})
}

// New creates a new Daemon instance with the provided configuration.
func New(cfg *config.Config) *Daemon {
	if cfg == nil {
		log.Fatal().Msg("config is nil")
		return nil
	}

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	if err = db.AutoMigrate(
		&models.Department{},
		&models.Identity{},
		&models.Account{},
	); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	seed(cfg, db)

	enc, err := secret.NewEncryptor(cfg.Secret.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init credential encryption")
	}

	gateway, err := ikuai.New(ikuai.Config{
		BaseURL:    cfg.Gateway.BaseURL,
		Username:   cfg.Gateway.Username,
		Password:   cfg.Gateway.Password,
		SkipVerify: cfg.Gateway.SkipVerify,
		Timeout:    cfg.Gateway.Timeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init gateway client")
	}

	dispatcher := jobs.NewDispatcher(cfg.Jobs.Workers, cfg.Jobs.QueueSize)

	engine := lifecycle.New(db, gateway, dispatcher, enc, lifecycle.Config{
		StaleAfter:        cfg.Schedule.StaleAfter,
		DeleteRetries:     cfg.Jobs.DeleteRetries,
		DefaultExpiryDays: cfg.VPN.DefaultExpiryDays,
	})

	renderer, err := vpnconfig.NewRenderer(vpnconfig.Config{
		ServerHost: cfg.VPN.ServerHost,
		ServerPort: cfg.VPN.ServerPort,
		Protocol:   cfg.VPN.Protocol,
		CACert:     cfg.VPN.CACert,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init client config renderer")
	}

	d := &Daemon{
		cfg:        cfg,
		webService: *web.New(cfg, db, engine, renderer),
		dispatcher: dispatcher,
		cron:       cron.New(),
	}

	if cfg.Directory.Enabled {
		reader := dirsync.NewReader(directoryConfig(cfg))
		d.reconciler = dirsync.NewReconciler(db, reader, cfg.Directory.SuperAdminUsername)
	}

	registerSchedules(d, engine)

	return d
}

func directoryConfig(cfg *config.Config) *dirsync.Config {
	return &dirsync.Config{
		Host:               cfg.Directory.Host,
		Port:               cfg.Directory.Port,
		UseSSL:             cfg.Directory.UseSSL,
		UseTLS:             cfg.Directory.UseTLS,
		SkipVerify:         cfg.Directory.SkipVerify,
		BindDN:             cfg.Directory.BindDN,
		BindPassword:       cfg.Directory.BindPassword,
		DepartmentBaseDN:   cfg.Directory.DepartmentBaseDN,
		DepartmentFilter:   cfg.Directory.DepartmentFilter,
		PersonBaseDN:       cfg.Directory.PersonBaseDN,
		PersonFilter:       cfg.Directory.PersonFilter,
		SuperAdminUsername: cfg.Directory.SuperAdminUsername,
		Timeout:            cfg.Directory.Timeout,
	}
}

func registerSchedules(d *Daemon, engine *lifecycle.Engine) {
	mustSchedule(d.cron, d.cfg.Schedule.Reconcile, "account reconcile", func() {
		result, err := engine.ReconcileAccounts()
		if err != nil {
			log.Error().Err(err).Msg("account reconcile sweep failed")
			return
		}

		log.Info().
			Int("synced", result.Synced).
			Int("missing", result.Missing).
			Int("timed_out", result.TimedOut).
			Msg("account reconcile sweep finished")
	})

	mustSchedule(d.cron, d.cfg.Schedule.Expiry, "expiry sweep", func() {
		expired, err := engine.SweepExpired()
		if err != nil {
			log.Error().Err(err).Msg("expiry sweep failed")
			return
		}

		if expired > 0 {
			log.Info().Int64("expired", expired).Msg("accounts marked expired")
		}
	})

	if d.reconciler != nil {
		mustSchedule(d.cron, d.cfg.Schedule.DirectorySync, "directory sync", func() {
			if err := d.SyncDirectory(); err != nil {
				log.Error().Err(err).Msg("scheduled directory sync failed")
			}
		})
	}
}

func mustSchedule(c *cron.Cron, spec, name string, fn func()) {
	if _, err := c.AddFunc(spec, fn); err != nil {
		log.Fatal().Err(err).Str("job", name).Str("spec", spec).Msg("invalid cron spec")
	}
}

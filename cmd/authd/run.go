package main

import (
	"context"
	"fmt"
	"time"

	"github.com/HLeNam/user-registration-system-backend/internal/api"
	"github.com/HLeNam/user-registration-system-backend/internal/audit"
	"github.com/HLeNam/user-registration-system-backend/internal/auth"
	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/config"
	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/database"
	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/influxdb"
	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/logging"
	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/mqtt"
)

// startupHealthTimeout bounds the dependency checks before the API starts.
const startupHealthTimeout = 10 * time.Second

// run wires every component from cfg and serves until ctx is cancelled.
// Deferred closes run in reverse order: API, recorder, MQTT/InfluxDB, database.
func run(ctx context.Context, cfg *config.Config) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.New(cfg.Logging, version)
	log.Info("starting authd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	db, err := database.Open(databaseConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "driver", cfg.Database.Driver)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	metrics := api.NewMetrics()
	auditRepo := audit.NewSQLRepository(db)
	recorderOpts := []audit.RecorderOption{
		audit.WithWriter("audit_log", audit.NewRepositoryWriter(auditRepo, audit.SourceAPI)),
		audit.WithWriter("metrics", metrics),
	}

	var mqttHealth, influxHealth api.HealthChecker

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		recorderOpts = append(recorderOpts,
			audit.WithAsyncWriter("mqtt", audit.NewMQTTPublisher(mqttClient, mqttClient.Topics())))
		mqttHealth = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		recorderOpts = append(recorderOpts,
			audit.WithAsyncWriter("influxdb", audit.NewInfluxWriter(influxClient)))
		influxHealth = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	recorder := audit.NewRecorder(log, recorderOpts...)
	defer func() {
		log.Info("draining session event queue")
		recorder.Close()
	}()

	service, authenticator, now, err := buildAuth(cfg.Security, db, recorder, log)
	if err != nil {
		return err
	}

	healthCtx, cancel := context.WithTimeout(ctx, startupHealthTimeout)
	defer cancel()
	if err := db.HealthCheck(healthCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	server, err := api.New(api.Deps{
		Config:        cfg.API,
		Security:      cfg.Security,
		MetricsConfig: cfg.Metrics,
		Logger:        log,
		Service:       service,
		Authenticator: authenticator,
		AuditRepo:     auditRepo,
		Metrics:       metrics,
		Store:         db,
		MQTT:          mqttHealth,
		InfluxDB:      influxHealth,
		Now:           now,
		Version:       version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// buildAuth constructs the codec, hasher, store, lifecycle manager, session
// service and authenticator from the security config. The returned clock is
// the codec's, for cookie lifetimes.
func buildAuth(sec config.SecurityConfig, db *database.DB, events auth.EventSink, log *logging.Logger) (*auth.Service, *auth.Authenticator, func() int64, error) {
	codec, err := auth.NewCodec(sec.JWT.Secret, sec.JWT.Issuer, sec.JWT.Audience)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating token codec: %w", err)
	}

	hasher, err := auth.NewPasswordHasher(sec.Password.Algorithm, sec.Password.BcryptCost)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating password hasher: %w", err)
	}

	store := auth.NewAccountRepository(db)

	manager, err := auth.NewManager(store, codec, auth.LifecycleConfig{
		AccessTTL:      int64(sec.JWT.AccessTokenTTL),
		RenewalTTL:     int64(sec.JWT.RefreshTokenTTL),
		MinRotationTTL: int64(sec.JWT.MinRotationTTL),
		RevokeOnReuse:  sec.JWT.RevokeOnReuse,
	}, auth.WithEventSink(events), auth.WithLogger(log))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating lifecycle manager: %w", err)
	}

	service, err := auth.NewService(store, hasher, manager, events)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating session service: %w", err)
	}

	authenticator := auth.NewAuthenticator(codec, store,
		auth.WithSources(sec.Cookie.UsesHeader(), sec.Cookie.UsesCookies()))

	return service, authenticator, codec.Now, nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	examsso "github.com/pilab-dev/exam-sso"
	ssogin "github.com/pilab-dev/exam-sso/api/gin"
	"github.com/pilab-dev/exam-sso/cache/redis"
	"github.com/pilab-dev/exam-sso/config"
	"github.com/pilab-dev/exam-sso/domain"
	"github.com/pilab-dev/exam-sso/internal/audit"
	"github.com/pilab-dev/exam-sso/internal/auth"
	"github.com/pilab-dev/exam-sso/internal/crypto"
	"github.com/pilab-dev/exam-sso/internal/federation"
	"github.com/pilab-dev/exam-sso/internal/memstore"
	"github.com/pilab-dev/exam-sso/internal/metrics"
	"github.com/pilab-dev/exam-sso/internal/oidcflow"
	"github.com/pilab-dev/exam-sso/internal/server"
	"github.com/pilab-dev/exam-sso/internal/telemetry"
	"github.com/pilab-dev/exam-sso/log"
	"github.com/pilab-dev/exam-sso/mongodb"
	"github.com/pilab-dev/exam-sso/services"
)

const (
	defaultRSAKeyID  = "rsa-1"
	defaultHMACKeyID = "hs-1"
	redisKeyPrefix   = "examsso"
)

type closeFunc func(ctx context.Context) error

// app holds the wired dependency graph of one process.
type app struct {
	cfg    *config.Config
	logger log.Logger

	registry *prometheus.Registry
	checks   map[string]server.ReadinessCheck

	users      domain.UserRepository
	tokens     domain.RefreshTokenRepository
	identities domain.FederatedIdentityRepository
	states     domain.SSOStateRepository
	auditSink  domain.AuditSink
	// auditLog is nil unless audit events are stored in MongoDB.
	auditLog ssogin.AuditReader

	signer       *examsso.TokenSigner
	tokenService *examsso.TokenService
	refresh      *examsso.RefreshTokenManager
	federation   *federation.Service
	sessions     *services.SessionService

	closers []closeFunc
}

// newApp wires storage, signing keys, providers and services. On error the
// resources opened so far are released.
func newApp(ctx context.Context, cfg *config.Config, logger log.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		checks:   make(map[string]server.ReadinessCheck),
	}

	if err := a.init(ctx); err != nil {
		_ = a.Close(context.WithoutCancel(ctx))
		return nil, err
	}

	return a, nil
}

func (a *app) init(ctx context.Context) error {
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.InitCustomMetrics(a.registry)

	mp, err := telemetry.InitMeterProvider(a.registry)
	if err != nil {
		return fmt.Errorf("failed to initialize MeterProvider: %w", err)
	}
	a.closers = append(a.closers, func(ctx context.Context) error {
		telemetry.Shutdown(ctx, mp)
		return nil
	})

	if err := a.initStorage(ctx); err != nil {
		return err
	}
	if err := a.initStateStore(ctx); err != nil {
		return err
	}
	if err := a.initAudit(ctx); err != nil {
		return err
	}
	if err := a.initSigner(); err != nil {
		return err
	}

	a.tokenService = examsso.NewTokenService(a.signer, a.tokens, examsso.TokenServiceConfig{
		Issuer:             a.cfg.JWTIssuer,
		Audience:           a.cfg.JWTAudience,
		AccessTokenTTL:     a.cfg.AccessTokenTTL,
		RefreshTokenTTL:    a.cfg.RefreshTokenTTL,
		SessionMaxLifetime: a.cfg.SessionMaxLifetime,
	})
	a.refresh = examsso.NewRefreshTokenManager(a.tokens, a.users, a.tokenService, a.auditSink)

	if err := a.initFederation(); err != nil {
		return err
	}

	verifier := examsso.NewCredentialVerifier(a.users, auth.NewBcryptPasswordHasher(a.cfg.BcryptCost))
	a.sessions = services.NewSessionService(
		verifier,
		a.tokenService,
		a.refresh,
		a.federation,
		a.users,
		a.auditSink,
		services.NewRedirectPolicy(a.cfg.AllowedRedirectURIs),
	)

	return nil
}

func (a *app) initStorage(ctx context.Context) error {
	switch a.cfg.StorageDriver {
	case config.StorageMongo:
		if err := mongodb.InitMongoDB(ctx, a.cfg.MongoURI, a.cfg.MongoDBName); err != nil {
			return fmt.Errorf("failed to initialize MongoDB connection: %w", err)
		}
		a.closers = append(a.closers, func(ctx context.Context) error {
			mongodb.CloseMongoDB(ctx)
			return nil
		})
		a.checks["mongo"] = mongodb.Ping

		db := mongodb.GetDB()

		users, err := mongodb.NewUserRepository(ctx, db)
		if err != nil {
			return err
		}
		tokens, err := mongodb.NewRefreshTokenRepository(ctx, db, a.cfg.TokenRetention)
		if err != nil {
			return err
		}
		identities, err := mongodb.NewFederatedIdentityRepository(ctx, db)
		if err != nil {
			return err
		}
		a.users, a.tokens, a.identities = users, tokens, identities

	default:
		a.logger.Warn(ctx, "Using in-memory storage; sessions are lost on restart")
		a.users = memstore.NewUserStore()
		a.tokens = memstore.NewRefreshTokenStore()
		a.identities = memstore.NewFederatedIdentityStore()
	}

	return nil
}

// initStateStore keeps expired states around for one more TTL so a late
// callback is reported as expired rather than unknown.
func (a *app) initStateStore(ctx context.Context) error {
	grace := a.cfg.SSOStateTTL

	switch a.cfg.StateStore {
	case config.StateStoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })

		store := redis.NewStateStore(client, redisKeyPrefix, grace)
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", a.cfg.RedisAddr, err)
		}
		a.checks["redis"] = store.Ping
		a.states = store

	default:
		store := oidcflow.NewInMemoryStateStore(grace)
		a.closers = append(a.closers, func(context.Context) error {
			store.Close()
			return nil
		})
		a.states = store
	}

	return nil
}

func (a *app) initAudit(ctx context.Context) error {
	var w io.Writer = os.Stdout
	if a.cfg.AuditLogFile != "" {
		file := log.NewRotatingFile(a.cfg.AuditLogFile)
		a.closers = append(a.closers, func(context.Context) error { return file.Close() })
		w = file
	}

	sinks := audit.Fanout{audit.NewLogSink(w, a.cfg.OtelServiceName)}

	if db := mongodb.GetDB(); a.cfg.StorageDriver == config.StorageMongo && db != nil {
		repo, err := mongodb.NewAuditRepository(ctx, db)
		if err != nil {
			return err
		}
		sinks = append(sinks, repo)
		a.auditLog = repo
	}
	a.auditSink = sinks

	return nil
}

// initSigner prefers an RSA key file, then a shared secret. Without either a
// throwaway RSA key is generated, which config validation only allows outside
// production.
func (a *app) initSigner() error {
	a.signer = examsso.NewTokenSigner()
	keyID := a.cfg.JWTKeyID

	switch {
	case a.cfg.JWTPrivateKeyFile != "":
		key, err := crypto.LoadRSAPrivateKey(a.cfg.JWTPrivateKeyFile)
		if err != nil {
			return err
		}
		if keyID == "" {
			keyID = defaultRSAKeyID
		}
		a.signer.AddRSAKey(keyID, key)

	case a.cfg.JWTSecretKey != "":
		if keyID == "" {
			keyID = defaultHMACKeyID
		}
		a.signer.AddHMACKey(keyID, []byte(a.cfg.JWTSecretKey))

	default:
		key, err := crypto.GenerateRSAKey()
		if err != nil {
			return err
		}
		if keyID == "" {
			keyID = defaultRSAKeyID
		}
		a.logger.Warn(context.Background(), "No signing key configured, generated an ephemeral RSA key",
			map[string]interface{}{"kid": keyID})
		a.signer.AddRSAKey(keyID, key)
	}

	return nil
}

func (a *app) initFederation() error {
	policy, err := federation.ParseLinkingPolicy(a.cfg.LinkingPolicy)
	if err != nil {
		return err
	}

	resolver := federation.NewResolver(a.users, a.identities, policy, a.cfg.DefaultRoles)
	states := oidcflow.NewStateManager(a.states, a.cfg.SSOStateTTL)
	a.federation = federation.NewService(states, resolver, a.cfg.SSOCallbackBaseURL, a.cfg.ProviderTimeout)

	httpClient := &http.Client{
		Timeout:   a.cfg.ProviderTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	for _, pc := range a.cfg.Providers {
		provider, err := federation.NewProvider(federation.ProviderConfig{
			Name:         pc.Name,
			Type:         pc.Type,
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			AuthURL:      pc.AuthURL,
			TokenURL:     pc.TokenURL,
			UserInfoURL:  pc.UserInfoURL,
			Scopes:       pc.Scopes,
			HTTPClient:   httpClient,
		})
		if err != nil {
			return fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		if err := a.federation.RegisterProvider(provider); err != nil {
			return err
		}
	}

	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil

	return result.ErrorOrNil()
}

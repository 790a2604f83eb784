package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/joho/godotenv"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"nexus-gateway/api"
	"nexus-gateway/domain"
	"nexus-gateway/gateway"
	"nexus-gateway/mirror"
	"nexus-gateway/mode"
	"nexus-gateway/probe"
	"nexus-gateway/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("load .env: %v", err)
	}
	logger := newLogger()
	ctx := context.Background()

	var rc *redis.Client
	if conn := os.Getenv("REDIS_CONNECTION_STRING"); conn != "" {
		rc = redis.NewClient(redisOptions(conn))
	}

	store, err := openMirrorStore(envStr("MIRROR_BACKEND", "file"), envStr("MIRROR_PATH", "./.nexus"), rc)
	if err != nil {
		log.Fatalf("mirror: %v", err)
	}
	remote, err := openRemote(envStr("REMOTE_BACKEND", "rest"))
	if err != nil {
		log.Fatalf("remote: %v", err)
	}

	var opts []gateway.Option
	opts = append(opts, gateway.WithLogger(logger))
	if queue := os.Getenv("CHANGE_QUEUE"); queue != "" {
		feed, err := storage.NewQueueFeed(os.Getenv("STORAGE_CONNECTION_STRING"), queue)
		if err != nil {
			log.Fatalf("change feed: %v", err)
		}
		opts = append(opts, gateway.WithNotifier(feed))
	}

	flag := mode.NewStored(store, logger)
	gw := gateway.New(remote, mirror.New(store, logger), flag, opts...)
	initialMode(ctx, flag, gw, remote, logger)

	var deduper api.Deduper
	if rc != nil {
		deduper = api.NewRedisDeduper(rc, envDur("DEDUPER_TTL", 24*time.Hour))
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(api.GzipRequestMiddleware(0))
	e.Use(echoprometheus.NewMiddleware("nexus"))
	e.GET("/metrics", echoprometheus.NewHandler())
	prometheus.MustRegister(guestModeGauge(flag))

	api.Register(e, api.Deps{
		Gateway: gw,
		Mode:    flag,
		Auth:    authenticator(),
		Deduper: deduper,
		Logger:  logger,
	})

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	} else if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// initialMode settles the guest flag once at start-up. GUEST_MODE wins;
// otherwise an unreachable remote switches to guest mode and a reachable
// one warms the mirror.
func initialMode(ctx context.Context, flag mode.Toggler, gw *gateway.Gateway, remote storage.Remote, logger *log.Logger) {
	if raw, ok := os.LookupEnv("GUEST_MODE"); ok {
		guest, err := strconv.ParseBool(raw)
		if err != nil {
			log.Fatalf("invalid GUEST_MODE: %v", err)
		}
		if err := flag.SetGuest(ctx, guest); err != nil {
			log.Fatalf("set guest mode: %v", err)
		}
		return
	}
	if flag.IsGuest(ctx) {
		logger.Info("guest mode enabled, remote service not contacted")
		return
	}
	if !probe.Check(ctx, remote, envDur("PROBE_TIMEOUT", probe.DefaultTimeout)) {
		if err := flag.SetGuest(ctx, true); err != nil {
			log.Fatalf("set guest mode: %v", err)
		}
		logger.Warn("remote service unreachable, starting in guest mode")
		return
	}
	if err := gw.Warm(ctx, domain.Tasks, domain.Projects, domain.VoiceNotes); err != nil {
		logger.WithError(err).Warn("mirror warm-up failed")
	}
}

func guestModeGauge(p mode.Provider) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "nexus",
		Name:      "guest_mode",
		Help:      "1 while persistence is local only.",
	}, func() float64 {
		if p.IsGuest(context.Background()) {
			return 1
		}
		return 0
	})
}

func authenticator() api.Authenticator {
	if os.Getenv("LOCAL_AUTH_MODE") != "" {
		auth, err := api.NewAuth(nil, os.Getenv("AUTH_AUDIENCE"), os.Getenv("AUTH_ISSUER"))
		if err != nil {
			log.Fatalf("auth: %v", err)
		}
		return auth
	}
	jwksURL := os.Getenv("AUTH_JWKS_URL")
	if jwksURL == "" {
		log.Info("no AUTH_JWKS_URL, bearer tokens are not validated")
		return nil
	}
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: time.Hour})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	auth, err := api.NewAuth(jwks, os.Getenv("AUTH_AUDIENCE"), os.Getenv("AUTH_ISSUER"))
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	return auth
}

package internal

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/liftlog/internal/backup"
	"github.com/2beens/liftlog/internal/config"
	"github.com/2beens/liftlog/internal/library"
	"github.com/2beens/liftlog/internal/logbook"
	"github.com/2beens/liftlog/internal/middleware"
	"github.com/2beens/liftlog/internal/profile"
	"github.com/2beens/liftlog/internal/stats"
	"github.com/2beens/liftlog/internal/store"
	"github.com/2beens/liftlog/internal/telemetry/metrics"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config      *config.Config
	redisClient *redis.Client
	kv          store.KV

	library *library.Service
	logbook *logbook.Repo

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
}

type NewServerParams struct {
	Config        *config.Config
	RedisPassword string
	VersionInfo   string
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	promRegistry := metrics.SetupPrometheus()
	metricsManager := metrics.NewManager("liftlog", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	// the tracker must stay usable without its storage: fall back to the
	// in-memory store and lose persistence, not features
	var kv store.KV
	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis, falling back to in-memory store: %s", err)
		kv = store.NewMemoryKV()
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
		kv = store.NewRedisKV(rdb)
	}

	libraryService, err := library.NewService(ctx, kv)
	if err != nil {
		return nil, err
	}
	logbookRepo, err := logbook.NewRepo(ctx, kv)
	if err != nil {
		return nil, err
	}

	exercises, categories := libraryService.Counts()
	metricsManager.GaugeExercises.Set(float64(exercises))
	metricsManager.GaugeCategories.Set(float64(categories))

	return &Server{
		config:      params.Config,
		versionInfo: params.VersionInfo,

		redisClient: rdb,
		kv:          kv,
		library:     libraryService,
		logbook:     logbookRepo,

		metricsManager: metricsManager,
		promRegistry:   promRegistry,
	}, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	libraryHandler := library.NewHandler(s.library, s.metricsManager)
	libraryHandler.SetupRoutes(r)

	logbookHandler := logbook.NewHandler(s.logbook, s.library, s.metricsManager)
	logbookHandler.SetupRoutes(r.PathPrefix("/logbook").Subrouter())

	statsHandler := stats.NewHandler(
		stats.NewAnalyzer(s.logbook, s.library),
		s.library,
	)
	statsHandler.SetupRoutes(r.PathPrefix("/stats").Subrouter())

	backupRouter := r.PathPrefix("/backup").Subrouter()
	backupHandler := backup.NewHandler(
		s.kv, s.metricsManager,
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.library.Reload(ctx); err != nil {
				return err
			}
			return s.logbook.Reload(ctx)
		},
	)
	backupHandler.SetupRoutes(backupRouter)
	backupRouter.Use(middleware.RateLimit(
		redis_rate.NewLimiter(s.redisClient),
		"backup",
		s.config.ImportRateLimitAllowedPerMin,
	))

	profileHandler := profile.NewHandler(s.kv)
	profileHandler.SetupRoutes(r.PathPrefix("/profile").Subrouter())

	r.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(s.versionInfo))
	}).Methods("GET").Name("version")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve(_ context.Context, host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown http server")
		}
		log.Warnln("server shut down")
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown metrics http server")
		}
		log.Warnln("metrics server shut down")
	}
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}

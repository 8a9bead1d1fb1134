package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"location-tracker/internal/adapters/cache"
	"location-tracker/internal/adapters/repositories"
	"location-tracker/internal/adapters/routing"
	"location-tracker/internal/adapters/sensor"
	"location-tracker/internal/adapters/socket"
	"location-tracker/internal/api"
	"location-tracker/internal/config"
	"location-tracker/internal/domain"
	"location-tracker/internal/geofeed"
	"location-tracker/internal/motion"
	"location-tracker/internal/participants"
	"location-tracker/internal/platform/clock"
	"location-tracker/internal/platform/db"
	"location-tracker/internal/platform/obs"
	"location-tracker/internal/ports"
	"location-tracker/internal/services"
	"location-tracker/internal/status"
	"location-tracker/internal/transport"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// Fallback track endpoints used when no track file is configured.
var (
	demoStart = domain.LatLng{Lat: 37.7749, Lng: -122.4194}
	demoEnd   = domain.LatLng{Lat: 37.7955, Lng: -122.3937}
)

// main is the application composition root.
// It wires concrete adapters (SQLite, Postgres, Redis, ORS, WebSocket)
// behind ports, runs the tracker loop and serves the HTTP read model.
func main() {
	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to a YAML config file")
	envPath := flags.String("env", ".env", "path to a dotenv file")
	seedPath := flags.String("seed", "data/seeds/places.json", "known places for the offline routing provider")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := godotenv.Load(*envPath); err != nil {
		slog.Info("No .env file found (using environment variables)", "path", *envPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}

	logger := obs.NewLogger(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *seedPath, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.AppConfig, seedPath string, logger *slog.Logger) error {
	local, err := db.OpenSQLite(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer local.Close()

	if err := repositories.InitSchema(ctx, local); err != nil {
		return err
	}

	identity, err := services.EnsureIdentity(
		ctx,
		repositories.NewSqliteIdentityRepository(local),
		os.Getenv("TRACKER_TOKEN"),
		config.Get("TRACKER_NAME", ""),
	)
	if err != nil {
		return err
	}

	clk := clock.Real()

	provider, closeProvider, err := newProvider(ctx, cfg, local, seedPath, clk, logger)
	if err != nil {
		return err
	}
	defer closeProvider()

	codec, err := socket.ParseCodec(cfg.Transport.Codec)
	if err != nil {
		return err
	}

	session := transport.NewSession(socket.NewDialer(codec), sessionOptions(cfg.Transport), clk, logger)

	track, err := loadTrack(ctx, cfg.Sensor.TrackFile)
	if err != nil {
		return err
	}
	replay := sensor.NewReplaySensor(track, cfg.Sensor.Interval, clk)
	replay.Loop = true

	mover := motion.NewMover(clk, cfg.Motion.Duration, cfg.Motion.Frame, nil)
	defer mover.Close()

	reporter := status.NewReporter(clk, cfg.Status.ClearAfter, session.State)
	defer reporter.Close()

	tracker, err := services.NewTracker(services.TrackerDeps{
		Session:  session,
		Feed:     geofeed.New(replay, clk, logger),
		Store:    participants.NewStore(clk),
		Mover:    mover,
		Engine:   services.NewRouteEngine(provider),
		Board:    services.NewETABoard(),
		Reporter: reporter,
		Geocoder: provider,
		Clock:    clk,
		Logger:   logger,
	}, services.TrackerOptions{
		Self: identity,
		Feed: geofeed.Options{
			HighAccuracy: cfg.Sensor.HighAccuracy,
			MaxSampleAge: cfg.Sensor.MaxSampleAge,
			Timeout:      cfg.Sensor.Timeout,
		},
		RetryAttempts:  cfg.Routing.RetryAttempts,
		ETAConcurrency: cfg.Routing.ETAConcurrency,
	})
	if err != nil {
		return err
	}

	creds := &transport.Credentials{ParticipantID: identity.ParticipantID, Token: identity.Token}
	if err := session.Connect(ctx, creds); err != nil {
		return err
	}
	defer session.Disconnect()

	// Timeouts are tuned for routing calls that may wait on the rate limiter.
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(tracker, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return tracker.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("Server listening", "addr", cfg.HTTP.Addr, "participant_id", identity.ParticipantID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type routingGeocoder interface {
	ports.RoutingProvider
	ports.Geocoder
}

// newProvider picks ORS when an API key is configured and the offline
// provider otherwise. The returned func releases cache connections.
func newProvider(
	ctx context.Context,
	cfg config.AppConfig,
	local *sql.DB,
	seedPath string,
	clk clock.Clock,
	logger *slog.Logger,
) (routingGeocoder, func(), error) {
	if strings.TrimSpace(cfg.Routing.APIKey) == "" {
		logger.Warn("ORS_API_KEY not set, using offline routing")
		return routing.NewMockRoutingProvider(seedPlaces(seedPath, logger), 0), func() {}, nil
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var geocodeCache ports.GeocodeCache = cache.NewSqliteGeocodeCache(local)
	if cfg.Storage.DatabaseURL != "" {
		shared, err := db.Open(cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { shared.Close() })
		geocodeCache = cache.NewSQLGeocodeCache(shared)
	}

	var etaCache ports.ETACache = cache.NewSqliteETACache(local, cfg.Routing.ETACacheTTL, clk)
	if cfg.Storage.RedisURL != "" {
		client, err := cache.OpenRedis(ctx, cfg.Storage.RedisURL)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { client.Close() })
		etaCache = cache.NewRedisETACache(client, cfg.Routing.ETACacheTTL)
	}

	provider, err := routing.NewORSProvider(routing.ORSConfig{
		APIKey:            cfg.Routing.APIKey,
		BaseURL:           cfg.Routing.BaseURL,
		Profile:           cfg.Routing.Profile,
		RequestsPerMinute: cfg.Routing.RequestsPerMinute,
	}, geocodeCache, etaCache)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	return provider, closeAll, nil
}

func seedPlaces(path string, logger *slog.Logger) []domain.Place {
	seeds, err := repositories.ReadPlaceSeeds(path)
	if err != nil {
		logger.Warn("no known places for offline routing", "err", err)
		return nil
	}

	places := make([]domain.Place, 0, len(seeds))
	for _, s := range seeds {
		places = append(places, domain.Place{
			FormattedAddress: s.FormattedAddress,
			Coordinate:       domain.LatLng{Lat: s.Lat, Lng: s.Lng},
		})
	}
	return places
}

func sessionOptions(t config.TransportConfig) transport.Options {
	opts := transport.DefaultOptions(t.URL)
	opts.ReconnectDelay = t.ReconnectDelay
	opts.ReconnectDelayMax = t.ReconnectDelayMax
	opts.ReconnectAttempts = t.ReconnectAttempts
	opts.ReplayLastLocation = t.ReplayLast()
	if t.Payload == "simple" {
		opts.Payload = transport.PayloadSimple
	} else {
		opts.Payload = transport.PayloadRich
	}
	return opts
}

// loadTrack reads the configured track, or walks a straight demo route
// when none is set.
func loadTrack(ctx context.Context, path string) ([]domain.LatLng, error) {
	if path != "" {
		return sensor.LoadTrack(path)
	}

	route, err := routing.NewMockRoutingProvider(nil, 0).Directions(ctx, demoStart, demoEnd)
	if err != nil {
		return nil, fmt.Errorf("demo track: %w", err)
	}
	return sensor.TrackFromRoute(route, 20), nil
}

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/katatrina/auction-house/api"
	"github.com/katatrina/auction-house/internal/announcer"
	"github.com/katatrina/auction-house/internal/auction"
	"github.com/katatrina/auction-house/internal/directory"
	"github.com/katatrina/auction-house/internal/engine"
	"github.com/katatrina/auction-house/internal/event"
	"github.com/katatrina/auction-house/internal/linestream"
	"github.com/katatrina/auction-house/internal/scheduler"
	"github.com/katatrina/auction-house/internal/util"
	"github.com/katatrina/auction-house/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configurations
	config, err := util.LoadConfig("./app.env")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config file 😣")
	}

	log.Info().Msg("configurations loaded successfully ✅")

	items, err := auction.LoadCatalog(config.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load item catalog 😣")
	}
	log.Info().Int("items", len(items)).Msg("item catalog loaded ✅")

	var redisDb *redis.Client
	if config.RedisServerAddress != "" {
		redisDb = redis.NewClient(&redis.Options{
			Addr:     config.RedisServerAddress,
			Password: "", // no password set
			DB:       0,  // use default DB
		})

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = redisDb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis 😣")
		}
		log.Info().Msg("connected to redis ✅")
	}

	roundScheduler, err := newRoundScheduler(config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create round scheduler 😣")
	}
	log.Info().Str("backend", config.SchedulerBackend).Msg("round scheduler created ✅")

	registry := event.NewRegistry()
	dispatcher := event.NewDispatcher(registry, config.DeliveryTimeout)

	if config.DiscordBotToken != "" {
		discord, err := announcer.NewDiscord(config.DiscordBotToken, config.DiscordChannelID)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create Discord announcer 😣")
		}
		dispatcher.AddObserver(discord)
		log.Info().Msg("Discord announcer attached ✅")
	}

	var engineOpts []engine.Option
	if config.SchedulerBackend == util.SchedulerBackendRedis {
		// Rounds keep their timer in process when Redis refuses it
		fallback, err := scheduler.NewLocal()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create fallback round scheduler 😣")
		}
		engineOpts = append(engineOpts, engine.WithFallbackScheduler(fallback))
	}

	auctionEngine := engine.New(items, registry, dispatcher, roundScheduler, engineOpts...)

	httpListener, err := util.ListenTCP(config.HTTPServerHost, config.HTTPServerPort, config.HTTPPortAttempts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bind HTTP listener 😣")
	}
	lineListener, err := util.ListenTCP(config.LineServerHost, config.LineServerPort, config.LinePortAttempts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bind line protocol listener 😣")
	}

	dir, err := newDirectory(config, redisDb)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create directory 😣")
	}
	serviceURL := advertisedURL(config.HTTPServerHost, httpListener)
	if err = dir.Publish(context.Background(), config.DirectoryBindingName, serviceURL); err != nil {
		log.Fatal().Err(err).Msg("failed to publish directory binding 😣")
	}

	go dispatcher.Run()
	if err = auctionEngine.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start auction 😣")
	}

	runServers(config, auctionEngine, dir, httpListener, lineListener)

	if closer, ok := dir.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if redisDb != nil {
		_ = redisDb.Close()
	}
	log.Info().Msg("auction house stopped")
}

func runServers(config util.Config, auctionEngine *engine.Engine, dir directory.Directory, httpListener net.Listener, lineListener net.Listener) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := api.NewServer(auctionEngine, config)
	lineServer := linestream.NewServer(auctionEngine, config.DeliveryTimeout)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return httpServer.Serve(httpListener)
	})
	group.Go(func() error {
		return lineServer.Serve(lineListener)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info().Msg("shutting down the auction house")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := dir.Withdraw(shutdownCtx, config.DirectoryBindingName); err != nil {
			log.Warn().Err(err).Msg("failed to withdraw directory binding")
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("failed to shut down HTTP server")
		}
		if err := lineServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("failed to shut down line server")
		}
		return auctionEngine.Shutdown()
	})

	if err := group.Wait(); err != nil {
		log.Error().Err(err).Msg("auction house stopped with an error 😣")
	}
}

func newRoundScheduler(config util.Config) (scheduler.RoundScheduler, error) {
	if config.SchedulerBackend == util.SchedulerBackendRedis {
		return worker.NewRoundScheduler(asynq.RedisClientOpt{Addr: config.RedisServerAddress})
	}
	return scheduler.NewLocal()
}

func newDirectory(config util.Config, redisDb *redis.Client) (directory.Directory, error) {
	if redisDb == nil {
		log.Warn().Msg("no REDIS_SERVER_ADDRESS set, the directory binding is only visible in this process")
		return directory.NewStatic(nil), nil
	}
	return directory.NewRedis(redisDb, directory.WithTTL(config.DirectoryTTL))
}

// advertisedURL is the address clients should use for listener. Wildcard
// hosts are advertised as localhost.
func advertisedURL(host string, listener net.Listener) string {
	port := listener.Addr().(*net.TCPAddr).Port
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(port)))
}

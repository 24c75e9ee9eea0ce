package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	offlinecache "github.com/cat-feeder/offline-cache"
	"github.com/cat-feeder/offline-cache/cache"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	portFlag           int
	originFlag         string
	configFlag         string
	versionFlag        string
	dbFilenameFlag     string
	storeFlag          string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

// environment overrides for container deployments
type envConfig struct {
	Origin string `env:"ORIGIN"`
	Port   int    `env:"PORT"`
	DBFile string `env:"DB_FILE"`
}

func init() {
	flag.StringVar(&originFlag, "origin", "", "Origin URL of the application")
	flag.StringVar(&configFlag, "config", "", "Config file (yaml)")
	flag.StringVar(&versionFlag, "version", "", "Store version (defaults to the build-time constant)")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&dbFilenameFlag, "db", "offline-cache.db", "Store DB file name (use 'memory' for in-memory db)")
	flag.StringVar(&storeFlag, "store", "sqlite", "Store backend: sqlite or bolt")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		log.Fatal().Err(err).Msg("Could not parse environment")
	}
	if originFlag == "" {
		originFlag = envCfg.Origin
	}
	if envCfg.Port != 0 {
		portFlag = envCfg.Port
	}
	if envCfg.DBFile != "" {
		dbFilenameFlag = envCfg.DBFile
	}

	workerCfg := offlinecache.Config{
		Version: versionFlag,
		Logger:  &log.Logger,
	}

	if configFlag != "" {
		fileCfg, err := offlinecache.LoadConfig(configFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read config file")
		}
		if originFlag == "" {
			originFlag = fileCfg.Origin
		}
		if workerCfg.Version == "" {
			workerCfg.Version = fileCfg.Version
		}
		workerCfg.Preload = fileCfg.Preload
		workerCfg.AssetPrefixes = fileCfg.AssetPrefixes
		workerCfg.AssetExtensions = fileCfg.AssetExtensions
	}

	if originFlag == "" {
		log.Fatal().Msg("Origin URL is required")
	}
	originURL, err := url.Parse(originFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}
	workerCfg.OriginURL = *originURL

	workerCfg.Store = openStore()

	worker := offlinecache.New(workerCfg)
	controller := offlinecache.NewController(worker)
	if err := controller.Run(context.Background()); err != nil {
		// serve anyway: a previously installed store version keeps working
		log.Error().Err(err).Msg("Install did not complete, serving previous version")
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/*", worker)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", portFlag),
		Handler: r,
	}

	go func() {
		log.Info().Msgf("Listening on port %v", portFlag)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Could not start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	// let detached store writes finish before exiting
	worker.Flush()
}

func openStore() cache.StoreProvider {
	dbFilename := dbFilenameFlag
	if dbFilename == "memory" {
		return cache.NewMemStore()
	}
	switch storeFlag {
	case "bolt":
		store, err := cache.OpenBolt(dbFilename)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open bolt store")
		}
		return store
	case "sqlite":
		return cache.NewSQLiteStore(dbFilename)
	default:
		log.Fatal().Msgf("Unknown store backend %q", storeFlag)
		return nil
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/coffersTech/ruleast/internal/config"
	"github.com/coffersTech/ruleast/internal/engine"
	"github.com/coffersTech/ruleast/internal/observability"
	"github.com/coffersTech/ruleast/internal/pkg/security"
	"github.com/coffersTech/ruleast/internal/server"
	"github.com/coffersTech/ruleast/internal/storage"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	defaults := config.Defaults()

	// Command-line flags
	port := flag.Int("port", defaults.Port, "HTTP port to listen on")
	dataDir := flag.String("data", defaults.DataDir, "Directory for the rule store")
	storeKind := flag.String("store", defaults.Store, "Rule store backend: file or sqlite")
	webDir := flag.String("web", defaults.WebDir, "Directory for static web files (optional)")
	compact := flag.Duration("compact", defaults.CompactInterval, "Snapshot interval for the file store")
	encrypt := flag.Bool("encrypt", defaults.Encrypt, "Encrypt file store snapshots with the master key")
	configPath := flag.String("config", "", "YAML or JSON config file")
	hashToken := flag.String("hash-token", "", "Print the bcrypt hash of the given API token and exit")
	flag.Parse()

	if *hashToken != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*hashToken), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("Failed to hash token: %v", err)
		}
		fmt.Println(string(hash))
		return
	}

	// Defaults, then the config file, then explicit flags
	cfg := defaults
	if *configPath != "" {
		file, err := config.FromFile(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		keys := cfg.Apply(file)
		log.Printf("Config loaded from %s (keys: %s)", *configPath, strings.Join(keys, ", "))
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "data":
			cfg.DataDir = *dataDir
		case "store":
			cfg.Store = *storeKind
		case "web":
			cfg.WebDir = *webDir
		case "compact":
			cfg.CompactInterval = *compact
		case "encrypt":
			cfg.Encrypt = *encrypt
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	log.Println("ruleast v0.1 Started...")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 1. Open the rule store
	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Store, err)
	}

	// 2. Metrics, tracing and the engine
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := observability.NewMetricsRecorder(provider)
	if err != nil {
		log.Printf("Metrics disabled: %v", err)
		metrics = observability.NoopMetrics{}
	}
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(observability.NewSpanLogger(nil)))
	eng := engine.New(store, engine.Options{
		Metrics: metrics,
		Spans:   observability.NewSpanManager(tracerProvider),
	})

	// 3. HTTP API
	if cfg.TokenHash == "" {
		log.Println("Warning: no token_hash configured, mutating routes are open")
	}
	srv := server.NewRuleServer(eng, server.Options{
		WebDir:         cfg.WebDir,
		TokenHash:      cfg.TokenHash,
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        reader,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	go func() {
		if cfg.WebDir != "" {
			log.Printf("Web UI available at http://localhost%s", addr)
		}
		if err := srv.Start(addr); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// 4. Graceful Shutdown Hook
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal: %v. Shutting down...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	stop()

	if err := store.Close(); err != nil {
		log.Printf("Store close failed: %v", err)
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		log.Printf("Meter provider shutdown error: %v", err)
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Printf("Tracer provider shutdown error: %v", err)
	}

	log.Println("ruleast exited gracefully.")
}

// openStore opens the configured backend and starts the compactor for the file store.
func openStore(ctx context.Context, cfg config.ServerConfig) (storage.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	switch cfg.Store {
	case config.StoreSQLite:
		path := filepath.Join(cfg.DataDir, "rules.db")
		s, err := storage.NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		log.Printf("SQLite store opened: %s", path)
		return s, nil

	default:
		var c *security.Cipher
		if cfg.Encrypt {
			key, generated, err := security.LoadKey(filepath.Join(cfg.DataDir, "master.key"))
			if err != nil {
				return nil, err
			}
			if generated {
				log.Printf("Generated new master key in %s", cfg.DataDir)
			}
			if c, err = security.NewCipher(key); err != nil {
				return nil, err
			}
		}

		s, err := storage.OpenFileStore(cfg.DataDir, c)
		if err != nil {
			return nil, err
		}
		go s.RunCompactor(ctx, cfg.CompactInterval)
		log.Printf("File store opened: %s (encrypted: %v)", cfg.DataDir, cfg.Encrypt)
		return s, nil
	}
}

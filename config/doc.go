// Package config provides configuration types and loading for the
// telemetry stack.
//
// This package defines the configuration model, YAML loading with
// environment variable substitution, validation, and file watching for
// hot-reload support.
//
// # Configuration Loading
//
// Load configuration from a YAML file:
//
//	cfg, err := config.LoadConfig("telemetry.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Keys the file omits keep their defaults, so a minimal file only names
// what differs:
//
//	service:
//	  name: orders
//	tracing:
//	  endpoint: ${OTLP_ENDPOINT:-localhost:4317}
//
// # File Watching
//
// Watch for configuration changes:
//
//	watcher, err := config.NewWatcher(path, func(cfg *config.Config) {
//	    logger.SetLevel(logging.Level(cfg.Logging.Level))
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := watcher.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer watcher.Stop()
package config

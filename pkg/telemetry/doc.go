// Package telemetry provides the observability stack for macup runs.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry), metrics
// (Prometheus) and an in-process event publisher into one Telemetry bundle.
//
// # Usage
//
// Load the configuration from MACUP_* environment variables and build the
// bundle at startup:
//
//	cfg, err := telemetry.LoadConfig()
//	if err != nil {
//	    return err
//	}
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger.WithRunID(runID).WithSection("npm", "npm").Info("section started")
//
// Log levels: trace, debug, info, warn, error, fatal, disabled.
//
// # Tracing
//
// Spans are created per run, per section and per item install:
//
//	ctx, span := tel.Tracer.StartSectionSpan(ctx, "npm", "npm")
//	defer telemetry.EndSpan(span, err)
//
// Exporters: otlp (gRPC), stdout, none.
//
// # Metrics
//
// Counters and histograms cover runs, sections, items and backend queries.
// After a run the registry can be written in the node-exporter textfile
// format:
//
//	_ = tel.Metrics.WriteTextfile("/var/lib/node_exporter/macup.prom")
//
// # Events
//
// The engine publishes run, section and item events. Subscribers receive them
// in publish order:
//
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Println(event.Message)
//	}, telemetry.FilterByType(telemetry.EventTypeItemCompleted))
package telemetry

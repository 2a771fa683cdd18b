package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"cleanse/internal/config"
	"cleanse/internal/metrics"
	"cleanse/internal/metrics/prompush"

	// register the builtin standardizers and validators with the policy
	// factories. Policy documents select by kind at load time.
	_ "cleanse/internal/policy/builtin"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "cleanse/internal/storage/all"
)

// main is the entry point for the cleanse binary. It loads the run spec,
// optionally initializes a metrics backend, and executes the streaming run.
func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/runs/sample.json", "run spec JSON path")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (pushgateway, none; defaults to env METRICS_BACKEND, then pushgateway)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (defaults to env PUSHGATEWAY_URL, then http://localhost:9091)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	f, err := os.Open(cfgPath)
	if err != nil {
		fatalf("open config: %v", err)
	}
	defer f.Close()

	var spec config.Run
	if err := json.NewDecoder(f).Decode(&spec); err != nil {
		fatalf("decode config: %v", err)
	}

	// Validate the run spec before touching any external system.
	issues := config.ValidateRun(spec)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}

	// If validate flag is set, only validate the configuration and exit
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	backendName := resolveMetricsBackend(metricsBackendFlg)
	switch backendName {
	case "pushgateway":
		gwURL := resolvePushgatewayURL(pushGatewayURLFlg)

		jobName := spec.Job
		if jobName == "" {
			jobName = "cleanse_job"
		}

		b, err := prompush.NewBackend(jobName, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
		} else {
			log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backendName, jobName)
			metrics.SetBackend(b)
			defer func() {
				if err := metrics.Flush(); err != nil {
					log.Printf("metrics: flush error: %v", err)
				}
			}()
		}

	case "none":
		// metrics disabled; nop backend remains
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx := context.Background()
	start := time.Now()

	if *verbose {
		log.Printf("run: source=%s parser=%s storage=%s entity=%s",
			spec.Source.Kind, spec.Parser.Kind, spec.Storage.Kind, spec.Storage.DB.Entity)
	}

	if err := run(ctx, spec); err != nil {
		log.Fatalf("%v", err)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// resolveMetricsBackend applies flag → env → default precedence for the
// metrics backend name.
func resolveMetricsBackend(flagVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if v := os.Getenv("METRICS_BACKEND"); v != "" {
		return v
	}
	return "pushgateway"
}

// resolvePushgatewayURL applies flag → env → default precedence for the
// Pushgateway base URL.
func resolvePushgatewayURL(flagVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if v := os.Getenv("PUSHGATEWAY_URL"); v != "" {
		return v
	}
	return "http://localhost:9091"
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

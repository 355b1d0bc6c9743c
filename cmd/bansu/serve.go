package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/hgonomeg/bansu/internal/bansu/applog"
	"github.com/hgonomeg/bansu/internal/bansu/config"
	"github.com/hgonomeg/bansu/internal/bansu/httpapi"
	"github.com/hgonomeg/bansu/internal/bansu/job"
	"github.com/hgonomeg/bansu/internal/bansu/manager"
	"github.com/hgonomeg/bansu/internal/bansu/ratelimit"
	"github.com/hgonomeg/bansu/internal/bansu/stats"
)

// version is stamped at build time via -ldflags; it is surfaced in GET
// /vibe.
var version = "dev"

func serveCmd() *cobra.Command {
	// Env values become the flag defaults, so an explicit flag wins over env.
	cfg := config.FromEnv(config.Default())

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the bansu HTTP/WebSocket service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.ListenAddress, "address", cfg.ListenAddress, "bind address")
	flags.IntVar(&cfg.ListenPort, "port", cfg.ListenPort, "bind port")
	flags.StringVar(&cfg.ContainerImage, "docker-image", cfg.ContainerImage, "container image to run jobs in (empty disables the container backend)")
	flags.BoolVar(&cfg.DisallowNoContainer, "disallow-dockerless", cfg.DisallowNoContainer, "refuse to boot unless a container image is configured")
	flags.IntVar(&cfg.MaxConcurrentJobs, "max-concurrent-jobs", cfg.MaxConcurrentJobs, "admission limit (0 = unlimited)")
	flags.IntVar(&cfg.MaxQueueLength, "max-queue-length", cfg.MaxQueueLength, "queue cap (0 = no queueing)")
	flags.DurationVar(&cfg.DefaultJobTimeout, "job-timeout", cfg.DefaultJobTimeout, "default per-job timeout")
	flags.DurationVar(&cfg.WSUpdateInterval, "ws-update-interval", cfg.WSUpdateInterval, "periodic WebSocket poll interval")
	flags.IntVar(&cfg.RateLimitBurst, "rate-limit-burst", cfg.RateLimitBurst, "rate limit token bucket burst size")
	flags.DurationVar(&cfg.RateLimitPeriod, "rate-limit-period", cfg.RateLimitPeriod, "rate limit refill period")
	flags.BoolVar(&cfg.RateLimitDisabled, "rate-limit-disable", cfg.RateLimitDisabled, "disable rate limiting")
	flags.StringVar(&cfg.BaseURLPrefix, "base-url-prefix", cfg.BaseURLPrefix, "path prefix for all routes")
	flags.SortFlags = false

	return cmd
}

func runServe(cfg config.Config) error {
	if cfg.DisallowNoContainer && cfg.ContainerImage == "" {
		return fmt.Errorf("disallow-dockerless is set but no container image was configured")
	}

	mgr := manager.New(manager.Config{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		MaxQueueLength:    cfg.MaxQueueLength,
		HandleConfig:      job.HandleConfig{ContainerImage: cfg.ContainerImage},
		TimeoutOverride:   cfg.DefaultJobTimeout,
	})

	limiter := ratelimit.New(ratelimit.Config{
		Burst:    cfg.RateLimitBurst,
		Period:   cfg.RateLimitPeriod,
		Disabled: cfg.RateLimitDisabled,
	})
	go sweepLoop(limiter)

	srv := httpapi.NewServer(mgr, stats.NewLogSink(), cfg.WSUpdateInterval, cfg.BaseURLPrefix, version)
	handler := limiter.Middleware(srv.Routes())

	addr := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
	applog.Info("listening on %s (container backend: %v)", addr, cfg.ContainerImage != "")
	return http.ListenAndServe(addr, handler)
}

func sweepLoop(l *ratelimit.Limiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		l.Sweep(30 * time.Minute)
	}
}

// Command gateway-server runs the Ingestion Gateway of spec.md §4.2: bearer
// authentication against the Identity Authority's JWKS, per-subject rate
// limiting, idempotent delivery, code normalization, and forwarding to the
// Clinical Emitter.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yanniks/health-companion-prototype/gateway"
	"github.com/yanniks/health-companion-prototype/gateway/audit"
	"github.com/yanniks/health-companion-prototype/gateway/auth"
	"github.com/yanniks/health-companion-prototype/gateway/forward"
	"github.com/yanniks/health-companion-prototype/gateway/idempotency"
	"github.com/yanniks/health-companion-prototype/gateway/ratelimit"
	"github.com/yanniks/health-companion-prototype/internal/logging"
	"github.com/yanniks/health-companion-prototype/internal/procrun"
	"github.com/yanniks/health-companion-prototype/internal/telemetry"
)

const sweepInterval = 5 * time.Minute

func commandServe() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Ingestion Gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	logger := logging.New(logrus.InfoLevel)

	port := envOrDefault("CLIENT_PORT", "8081")
	storageDir := envOrDefault("CLIENT_STORAGE_DIR", "./data/gateway")
	iamBaseURL := envOrDefault("IAM_BASE_URL", "http://localhost:8080")
	clinicalBaseURL := envOrDefault("CLINICAL_BASE_URL", "http://localhost:8082")

	rateLimitMax, err := strconv.Atoi(envOrDefault("RATE_LIMIT_MAX", "60"))
	if err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_MAX: %w", err)
	}
	rateLimitWindow, err := strconv.Atoi(envOrDefault("RATE_LIMIT_WINDOW", "60"))
	if err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
	}

	idempotencyCache, err := idempotency.Open(filepath.Join(storageDir, "idempotency.txt"), logger)
	if err != nil {
		return fmt.Errorf("opening idempotency cache: %w", err)
	}
	auditLog, err := audit.Open(filepath.Join(storageDir, "audit.log"))
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer auditLog.Close()

	reg := telemetry.New("gateway")

	srv := gateway.NewServer(gateway.Config{
		Verifier:        auth.NewVerifier(context.Background(), iamBaseURL+"/jwks", auth.ExpectedAudience, logger),
		RateLimiter:     ratelimit.New(rateLimitMax, time.Duration(rateLimitWindow)*time.Second),
		Idempotency:     idempotencyCache,
		Audit:           auditLog,
		Forwarder:       forward.New(clinicalBaseURL),
		IAMDiscoveryURL: iamBaseURL + "/.well-known/openid-configuration",
		Logger:          logger,
		Telemetry:       reg,
	})

	httpServer := &http.Server{Addr: ":" + port, Handler: srv}

	var gr run.Group
	gr.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))

	runner := procrun.New("gateway", httpServer, logger)
	if cert, key := os.Getenv("TLS_CERT_PATH"), os.Getenv("TLS_KEY_PATH"); cert != "" && key != "" {
		runner = runner.WithTLS(cert, key)
	}
	if err := runner.AddTo(&gr); err != nil {
		return err
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if n := idempotencyCache.Sweep(); n > 0 {
					logger.Infof("swept %d expired idempotency entries", n)
				}
			}
		}
	}()
	gr.Add(func() error {
		<-stop
		return nil
	}, func(error) { close(stop) })

	return gr.Run()
}

func commandRoot() *cobra.Command {
	root := &cobra.Command{
		Use: "gateway-server",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(2)
		},
	}
	root.AddCommand(commandServe())
	return root
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := commandRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
}

// Command iam-server runs the Identity Authority service of spec.md §4.1:
// OAuth 2.0 Authorization Code + PKCE, OIDC Discovery/JWKS, refresh
// rotation, revocation, and patient management.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yanniks/health-companion-prototype/iam"
	"github.com/yanniks/health-companion-prototype/internal/logging"
	"github.com/yanniks/health-companion-prototype/internal/procrun"
	"github.com/yanniks/health-companion-prototype/internal/telemetry"
)

// sweepInterval is how often expired authorization codes and refresh
// tokens are dropped from their stores.
const sweepInterval = 5 * time.Minute

func commandServe() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Identity Authority HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	logger := logging.New(logrus.InfoLevel)

	port := envOrDefault("IAM_PORT", "8080")
	storageDir := envOrDefault("IAM_STORAGE_DIR", "./data/iam")
	issuerURL := strings.TrimSuffix(envOrDefault("IAM_BASE_URL", "http://localhost:"+port), "/")
	gatewayRedirect := os.Getenv("IAM_CLIENT_REDIRECT_URI")

	keys, err := iam.LoadOrGenerateKeyPair(filepath.Join(storageDir, "ec_private_key.pem"))
	if err != nil {
		return fmt.Errorf("loading signing key: %w", err)
	}

	store, err := iam.OpenStore(storageDir, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	var redirectURIs []string
	if gatewayRedirect != "" {
		redirectURIs = strings.Split(gatewayRedirect, ",")
	}
	client := iam.Client{ID: iam.GatewayAudience, RedirectURIs: redirectURIs}

	reg := telemetry.New("iam")

	srv, err := iam.NewServer(iam.Config{
		IssuerURL: issuerURL,
		Client:    client,
		Store:     store,
		Keys:      keys,
		Logger:    logger,
		Telemetry: reg,
	})
	if err != nil {
		return fmt.Errorf("constructing server: %w", err)
	}

	httpServer := &http.Server{Addr: ":" + port, Handler: srv}

	var gr run.Group
	gr.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))

	runner := procrun.New("iam", httpServer, logger)
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
				codes, refreshTokens := store.Sweep()
				if codes > 0 || refreshTokens > 0 {
					logger.Infof("swept %d expired authorization codes, %d expired refresh tokens", codes, refreshTokens)
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
		Use: "iam-server",
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

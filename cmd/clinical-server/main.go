// Command clinical-server runs the Clinical Emitter of spec.md §4.3:
// converts forwarded FHIR Observations into GDT 2.1 exchange files and
// tracks per-subject transfer status.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"syscall"

	"github.com/oklog/run"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yanniks/health-companion-prototype/clinical"
	"github.com/yanniks/health-companion-prototype/internal/filestore"
	"github.com/yanniks/health-companion-prototype/internal/logging"
	"github.com/yanniks/health-companion-prototype/internal/procrun"
	"github.com/yanniks/health-companion-prototype/internal/telemetry"
)

func commandServe() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Clinical Emitter HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	logger := logging.New(logrus.InfoLevel)

	port := envOrDefault("CLINICAL_PORT", "8082")
	storageDir := envOrDefault("CLINICAL_STORAGE_DIR", "./data/clinical")
	outputPath := envOrDefault("GDT_OUTPUT_PATH", filepath.Join(storageDir, "exchange"))
	senderID := envOrDefault("GDT_SENDER_ID", "health-companion-ce")
	receiverID := envOrDefault("GDT_RECEIVER_ID", "pms")

	statusStore, err := filestore.Open[clinical.TransferStatus](filepath.Join(storageDir, "clinical_status.txt"), logger)
	if err != nil {
		return fmt.Errorf("opening status store: %w", err)
	}

	reg := telemetry.New("clinical")

	srv := clinical.NewServer(clinical.Config{
		OutputPath: outputPath,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     statusStore,
		Logger:     logger,
		Telemetry:  reg,
	})

	httpServer := &http.Server{Addr: ":" + port, Handler: srv}

	var gr run.Group
	gr.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))

	runner := procrun.New("clinical", httpServer, logger)
	if cert, key := os.Getenv("TLS_CERT_PATH"), os.Getenv("TLS_KEY_PATH"); cert != "" && key != "" {
		runner = runner.WithTLS(cert, key)
	}
	if err := runner.AddTo(&gr); err != nil {
		return err
	}

	return gr.Run()
}

func commandRoot() *cobra.Command {
	root := &cobra.Command{
		Use: "clinical-server",
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

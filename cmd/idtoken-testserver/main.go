package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"git.sr.ht/~jakintosh/idtoken/pkg/idtokentest"
)

// Config holds all command-line configuration
type Config struct {
	ListenAddr  string
	ClientEmail string
	Issuer      string
	DataDir     string
	Keep        bool
	Quiet       bool
}

// OutputContract is the JSON structure emitted on stdout
type OutputContract struct {
	BaseURL      string `json:"base_url"`
	TokenURI     string `json:"token_uri"`
	TokenInfoURL string `json:"tokeninfo_url"`
	KeyFile      string `json:"key_file"`
	ClientEmail  string `json:"client_email"`
	Issuer       string `json:"issuer"`
	KeyID        string `json:"key_id"`
}

func main() {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "idtoken-testserver",
		Short: "Serve fake Google token and tokeninfo endpoints for local runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg, cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	fs := cmd.Flags()
	fs.StringVar(&cfg.ListenAddr, "listen", "127.0.0.1:0", "Listen address (default uses ephemeral port)")
	fs.StringVar(&cfg.ClientEmail, "client-email", "idtoken-test@idtoken-test.iam.gserviceaccount.com", "Service account email written into the key file")
	fs.StringVar(&cfg.Issuer, "issuer", idtokentest.DefaultIssuer, "iss claim of minted identity tokens")
	fs.StringVar(&cfg.DataDir, "data-dir", "", "Directory for the key file (uses temp dir if not set)")
	fs.BoolVar(&cfg.Keep, "keep", false, "Keep data directory on exit")
	fs.BoolVar(&cfg.Quiet, "quiet", false, "Suppress log output")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Error("testserver failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg Config, stdout io.Writer) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "idtoken-testserver"})
	if cfg.Quiet {
		logger.SetOutput(io.Discard)
	}

	// Create workspace
	dataDir, cleanup, err := createDataDir(cfg)
	if err != nil {
		return errors.Wrap(err, "create data dir")
	}
	defer cleanup()

	srv, err := idtokentest.NewServer(idtokentest.Config{
		Issuer: cfg.Issuer,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	// Start listening with ephemeral port
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", cfg.ListenAddr)
	}
	defer listener.Close()

	addr := listener.Addr().(*net.TCPAddr)
	srv.SetBaseURL(fmt.Sprintf("http://%s:%d", addr.IP, addr.Port))

	// Generate and trust a service account key
	key, err := idtokentest.GenerateKey()
	if err != nil {
		return errors.Wrap(err, "generate key")
	}
	keyFilePath := filepath.Join(dataDir, "key.json")
	if err := srv.NewKeyFile(cfg.ClientEmail, key).Write(keyFilePath); err != nil {
		return errors.Wrap(err, "write key file")
	}

	// Emit JSON contract to stdout
	contract := OutputContract{
		BaseURL:      srv.URL(),
		TokenURI:     srv.TokenURL(),
		TokenInfoURL: srv.TokenInfoURL(),
		KeyFile:      keyFilePath,
		ClientEmail:  cfg.ClientEmail,
		Issuer:       cfg.Issuer,
		KeyID:        srv.KeyID(),
	}
	if err := json.NewEncoder(stdout).Encode(contract); err != nil {
		return errors.Wrap(err, "encode JSON contract")
	}

	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Serve(listener)
	}()
	logger.Info("serving", "base_url", srv.URL())

	select {
	case err := <-serverErr:
		return errors.Wrap(err, "server error")
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func createDataDir(cfg Config) (string, func(), error) {
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return "", nil, err
		}
		return cfg.DataDir, func() {}, nil
	}

	dataDir, err := os.MkdirTemp("", "idtoken-testserver-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if !cfg.Keep {
			os.RemoveAll(dataDir)
		}
	}
	return dataDir, cleanup, nil
}

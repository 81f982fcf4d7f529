// Package testharness runs idtoken-testserver as a subprocess so that tests
// can exercise the built idtoken binary, or any other client, against a real
// listening socket.
package testharness

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"
)

// BinaryEnvVar names the environment variable consulted for the
// idtoken-testserver binary when Config.BinaryPath is empty.
const BinaryEnvVar = "IDTOKEN_TESTSERVER_BIN"

// Config holds configuration for starting the test harness.
type Config struct {
	ClientEmail string
	Issuer      string
	ListenAddr  string
	DataDir     string
	Keep        bool
	BinaryPath  string
	Quiet       bool
}

// Harness represents a running idtoken-testserver instance.
type Harness struct {
	BaseURL      string
	TokenURI     string
	TokenInfoURL string
	KeyFile      string
	ClientEmail  string
	Issuer       string
	KeyID        string

	// Internal state
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

// outputContract matches the JSON structure from idtoken-testserver
type outputContract struct {
	BaseURL      string `json:"base_url"`
	TokenURI     string `json:"token_uri"`
	TokenInfoURL string `json:"tokeninfo_url"`
	KeyFile      string `json:"key_file"`
	ClientEmail  string `json:"client_email"`
	Issuer       string `json:"issuer"`
	KeyID        string `json:"key_id"`
}

// Available reports whether an idtoken-testserver binary can be found.
func Available(cfg Config) bool {
	return FindBinary(cfg.BinaryPath) != ""
}

// Start spawns an idtoken-testserver and returns a handle to it.
// It registers cleanup with t.Cleanup().
func Start(t *testing.T, cfg Config) *Harness {
	t.Helper()

	// Find binary
	binaryPath := FindBinary(cfg.BinaryPath)
	if binaryPath == "" {
		t.Fatalf("idtoken-testserver binary not found (check PATH or set Config.BinaryPath or %s)", BinaryEnvVar)
	}

	// Create context for process lifecycle
	ctx, cancel := context.WithCancel(context.Background())

	// Start process
	cmd := exec.CommandContext(ctx, binaryPath, BuildArgs(cfg)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		t.Fatalf("failed to create stdout pipe: %v", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		t.Fatalf("failed to create stderr pipe: %v", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		t.Fatalf("failed to start idtoken-testserver: %v", err)
	}

	// Read first line (JSON contract) from stdout
	scanner := bufio.NewScanner(stdout)
	if !scanner.Scan() {
		cancel()
		cmd.Wait()
		t.Fatal("failed to read JSON contract from idtoken-testserver")
	}

	var contract outputContract
	if err := json.Unmarshal(scanner.Bytes(), &contract); err != nil {
		cancel()
		cmd.Wait()
		t.Fatalf("failed to parse JSON contract: %v", err)
	}

	// Stream logs to test output if not quiet
	if !cfg.Quiet {
		go func() {
			stderrScanner := bufio.NewScanner(stderr)
			for stderrScanner.Scan() {
				t.Logf("[idtoken-testserver] %s", stderrScanner.Text())
			}
		}()
	}

	harness := &Harness{
		BaseURL:      contract.BaseURL,
		TokenURI:     contract.TokenURI,
		TokenInfoURL: contract.TokenInfoURL,
		KeyFile:      contract.KeyFile,
		ClientEmail:  contract.ClientEmail,
		Issuer:       contract.Issuer,
		KeyID:        contract.KeyID,
		cmd:          cmd,
		cancel:       cancel,
	}

	t.Cleanup(func() {
		if err := harness.Close(); err != nil {
			t.Logf("warning: harness cleanup failed: %v", err)
		}
	})

	return harness
}

// Close terminates the idtoken-testserver process.
func (h *Harness) Close() error {
	if h.cmd == nil || h.cmd.Process == nil {
		if h.cancel != nil {
			h.cancel()
		}
		return nil
	}

	// Ask for a graceful shutdown first
	h.cmd.Process.Signal(os.Interrupt)

	done := make(chan error, 1)
	go func() {
		done <- h.cmd.Wait()
	}()

	select {
	case <-done:
		h.cancel()
		return nil
	case <-time.After(5 * time.Second):
		h.cancel()
		<-done
		return fmt.Errorf("timeout waiting for graceful shutdown, process killed")
	}
}

// FindBinary resolves the idtoken-testserver binary from configPath, then
// the environment, then PATH. It returns "" when none is found.
func FindBinary(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}

	if envPath := os.Getenv(BinaryEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	if pathBinary, err := exec.LookPath("idtoken-testserver"); err == nil {
		return pathBinary
	}

	return ""
}

// BuildArgs translates cfg into idtoken-testserver arguments.
func BuildArgs(cfg Config) []string {
	var args []string

	if cfg.ClientEmail != "" {
		args = append(args, "--client-email", cfg.ClientEmail)
	}

	if cfg.Issuer != "" {
		args = append(args, "--issuer", cfg.Issuer)
	}

	if cfg.ListenAddr != "" {
		args = append(args, "--listen", cfg.ListenAddr)
	}

	if cfg.DataDir != "" {
		args = append(args, "--data-dir", cfg.DataDir)
	}

	if cfg.Keep {
		args = append(args, "--keep")
	}

	if cfg.Quiet {
		args = append(args, "--quiet")
	}

	return args
}

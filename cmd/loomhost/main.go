package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/loomhost/internal/bridge"
	"github.com/mattjoyce/loomhost/internal/config"
	"github.com/mattjoyce/loomhost/internal/control"
	"github.com/mattjoyce/loomhost/internal/core"
	"github.com/mattjoyce/loomhost/internal/events"
	"github.com/mattjoyce/loomhost/internal/journal"
	"github.com/mattjoyce/loomhost/internal/lock"
	"github.com/mattjoyce/loomhost/internal/log"
	"github.com/mattjoyce/loomhost/internal/protocol"
	"github.com/mattjoyce/loomhost/internal/tui/watch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "start":
		return runStart(args)
	case "send":
		return runSend(args)
	case "status":
		return runStatus(args)
	case "watch":
		return runWatch(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

// lockPath keeps the instance lock next to the journal when one is
// configured, so two hosts sharing a state directory conflict loudly.
func lockPath(cfg *config.Config) string {
	if cfg.Journal.Path != "" {
		return filepath.Join(filepath.Dir(cfg.Journal.Path), "loomhost.lock")
	}
	return filepath.Join(os.TempDir(), "loomhost.lock")
}

func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		return config.Default(), "", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	hash, err := config.ComputeBlake3Hash(path)
	if err != nil {
		return nil, "", fmt.Errorf("hash config: %w", err)
	}
	return cfg, hash, nil
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, configHash, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("loomhost starting", "version", version, "config", *configPath)

	if !core.Available() {
		logger.Error("this binary was built without the embedded runtime, rebuild with -tags loomffi")
		return 1
	}

	hostLock, err := lock.Acquire(lockPath(cfg))
	if err != nil {
		logger.Error("failed to acquire instance lock", "error", err)
		return 1
	}
	defer hostLock.Release()
	logger.Info("acquired instance lock", "path", hostLock.Path())

	runtimeConfig, err := cfg.RuntimeJSON()
	if err != nil {
		logger.Error("failed to render runtime config", "error", err)
		return 1
	}

	hub := events.NewHub(cfg.Events.Buffer)

	var jnl *journal.Journal
	if cfg.Journal.Path != "" {
		jnl, err = journal.Open(context.Background(), cfg.Journal.Path)
		if err != nil {
			logger.Error("failed to open journal", "path", cfg.Journal.Path, "error", err)
			return 1
		}
		defer jnl.Close()
		jnl.Attach(hub)
	}

	b := bridge.New(core.Live(), hub, bridge.Options{
		EventBuffer:        cfg.Bridge.EventQueue,
		SlowCommandWarning: cfg.Bridge.SlowCommandWarning,
	})
	defer b.Close()

	if err := b.Initialize(runtimeConfig); err != nil {
		logger.Error("runtime init failed", "error", err)
		return 1
	}
	if err := b.Start(); err != nil {
		logger.Error("runtime start failed", "error", err)
		return 1
	}
	logger.Info("runtime started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)

	var journalReader control.JournalReader
	if jnl != nil {
		journalReader = jnl
	}
	ctl := control.New(control.Config{
		Listen:     cfg.Control.Listen,
		APIKey:     cfg.Control.APIKey,
		ConfigHash: configHash,
	}, b, hub, journalReader, log.WithComponent("control"))
	go func() {
		if err := ctl.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("control: %w", err)
		}
	}()

	logger.Info("loomhost running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("loomhost stopped")
	return 0
}

func runSend(args []string) int {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://localhost:7350", "Control API URL")
	apiKey := fs.String("api-key", os.Getenv("LOOMHOST_API_KEY"), "API bearer token")
	command := fs.String("command", "", "Command name (required)")
	payload := fs.String("payload", "", "JSON object payload")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if strings.TrimSpace(*command) == "" {
		fmt.Fprintln(os.Stderr, "Error: --command is required")
		return 1
	}

	body := control.CommandRequest{Command: *command}
	if *payload != "" {
		if err := json.Unmarshal([]byte(*payload), &body.Payload); err != nil {
			fmt.Fprintf(os.Stderr, "Error: --payload must be a JSON object: %v\n", err)
			return 1
		}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode request: %v\n", err)
		return 1
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/commands", bytes.NewReader(raw))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build request: %v\n", err)
		return 1
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp control.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		fmt.Fprintf(os.Stderr, "Command failed (%d): %s\n", resp.StatusCode, errResp.Error)
		return 1
	}

	var envelope protocol.ResponseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		fmt.Fprintf(os.Stderr, "Undecodable response: %v\n", err)
		return 1
	}

	out, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render response: %v\n", err)
		return 1
	}
	fmt.Println(string(out))

	if !envelope.OK {
		return 1
	}
	return 0
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://localhost:7350", "Control API URL")
	apiKey := fs.String("api-key", os.Getenv("LOOMHOST_API_KEY"), "API bearer token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	req, err := http.NewRequest(http.MethodGet, *apiURL+"/status", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build request: %v\n", err)
		return 1
	}
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Status request failed: %d\n", resp.StatusCode)
		return 1
	}

	var status control.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Undecodable response: %v\n", err)
		return 1
	}

	fmt.Printf("state:            %s\n", status.State)
	fmt.Printf("requests_sent:    %d\n", status.RequestsSent)
	fmt.Printf("events_delivered: %d\n", status.EventsDelivered)
	fmt.Printf("events_dropped:   %d\n", status.EventsDropped)
	fmt.Printf("events_malformed: %d\n", status.EventsMalformed)
	fmt.Printf("uptime:           %s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())
	if status.ConfigHash != "" {
		fmt.Printf("config_hash:      %s\n", status.ConfigHash)
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://localhost:7350", "Control API URL")
	apiKey := fs.String("api-key", os.Getenv("LOOMHOST_API_KEY"), "API bearer token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	m := watch.New(*apiURL, *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Runtime   bool   `json:"runtime_linked"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("loomhost %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	fmt.Printf("runtime_linked: %v\n", info.Runtime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
		Runtime:   core.Available(),
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if resolvedBuildTime != "" {
		info.BuildTime = resolvedBuildTime
	}

	return info
}

func readBuildSetting(key string) string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range bi.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func shortenCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}

func printUsage() {
	fmt.Print(`loomhost - Embedded runtime host

Usage:
  loomhost <command> [flags]

Commands:
  start     Run the host in foreground (init, start, control API)
  send      Dispatch one command via the control API
  status    Show bridge state and counters
  watch     Real-time event monitoring TUI
  version   Show version information
  help      Show this help message

Common flags for send/status/watch:
  --api-url   Control API URL (default http://localhost:7350)
  --api-key   Bearer token (or LOOMHOST_API_KEY env var)

Use 'loomhost <command> --help' for command-specific flags.
`)
}

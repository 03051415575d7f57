package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/porticodev/portico/pkg/capture"
	"github.com/porticodev/portico/pkg/fixture"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "portico",
		Short:        "Local development server for exported portal sites",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newServeCmd(), newMockgenCmd(), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the portal and admin API servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.json", "path to the configuration file")
	return cmd
}

func runServe(configPath string) error {
	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan // Wait for a signal
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	for {
		action, err := run(configPath, actionChan)
		if err != nil {
			return err
		}

		if action == actionRestart {
			baseLogger.Info("--- Server Restarting ---")
			continue
		}
		break
	}

	baseLogger.Info("Portico has shut down.")
	return nil
}

// run is the main loop that hosts both servers, and returns whenever the server is shutdown or restarted
func run(configPath string, actionChan chan string) (string, error) {

	cm, err := NewConfigManager(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	config := cm.Get()

	var logLevel slog.Level
	switch strings.ToLower(config.Server.LogLevel) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	cm.SetLogger(logger)
	logger.Info("Starting server cycle...")

	if err = os.MkdirAll(config.Server.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := initDB(config.Server.CaptureDatabasePath)
	if err != nil {
		return "", fmt.Errorf("failed to initialize database: %w", err)
	}

	if err = capture.SetupSchema(db); err != nil {
		logger.Error("Failed to setup capture schema", "error", err)
	}

	portalHttpServer := &http.Server{Addr: config.Server.ServerAddr}
	apiHttpServer := &http.Server{Addr: config.Server.ApiAddr}

	server, err := NewServer(cm, logger, db, actionChan)
	if err != nil {
		_ = db.Close()
		return "", fmt.Errorf("failed to create server object: %w", err)
	}

	portalHttpServer.Handler = server.portalMux
	apiHttpServer.Handler = server.apiMux

	go func() {
		logger.Info("Starting admin api server", "address", apiHttpServer.Addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Api server failed", "error", err)
		}
	}()

	go func() {
		logger.Info("Starting Portico portal server", "address", portalHttpServer.Addr)
		if err := portalHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Portal server failed", "error", err)
		}
	}()

	action := <-actionChan // Block here until API or OS signal sends an action.

	logger.Info("Stopping servers for " + action + "...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = apiHttpServer.Shutdown(ctx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
	}
	if err = portalHttpServer.Shutdown(ctx); err != nil {
		logger.Error("Portal server shutdown failed", "error", err)
	}
	logger.Info("HTTP servers stopped.")

	server.Close()

	logger.Info("Closing database connection.")
	if err = db.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}

	return action, nil
}

func newMockgenCmd() *cobra.Command {
	var (
		dbPath     string
		rulesPath  string
		pathPrefix string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "mockgen",
		Short: "Generate mock rules from captured backend traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMockgen(dbPath, rulesPath, pathPrefix, limit)
		},
	}
	defaults := DefaultServerConfig()
	cmd.Flags().StringVar(&dbPath, "db", defaults.CaptureDatabasePath, "path to the capture database")
	cmd.Flags().StringVar(&rulesPath, "rules", defaults.RulesPath, "path to the rule document to merge into")
	cmd.Flags().StringVar(&pathPrefix, "path", "", "only use captures whose path starts with this prefix")
	cmd.Flags().IntVar(&limit, "limit", 200, "maximum number of captures to read")
	return cmd
}

func runMockgen(dbPath, rulesPath, pathPrefix string, limit int) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	db, err := initDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open capture database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err = capture.SetupSchema(db); err != nil {
		return fmt.Errorf("failed to prepare capture schema: %w", err)
	}

	captures, err := capture.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to prepare capture store: %w", err)
	}
	defer captures.Close()
	captures.SetLogger(logger)

	rules, err := fixture.NewStore(logger, rulesPath)
	if err != nil {
		return fmt.Errorf("failed to open rule store: %w", err)
	}

	ctx := context.Background()
	transactions, err := captures.List(ctx, pathPrefix, limit, 0)
	if err != nil {
		return fmt.Errorf("failed to list captures: %w", err)
	}

	// Rules generated on an earlier run, or written by hand for the same
	// endpoint, must not come back as duplicates.
	seen := make(map[string]struct{}, rules.Len())
	for _, rule := range rules.List() {
		seen[ruleKey(rule)] = struct{}{}
	}

	added := 0
	for _, tx := range transactions {
		rule := capture.ToRule(tx)
		key := ruleKey(rule)
		if _, ok := seen[key]; ok {
			continue
		}
		if err := rules.Add(rule); err != nil {
			logger.Warn("Skipping capture", "capture_id", tx.ID, "error", err)
			continue
		}
		seen[key] = struct{}{}
		added++
	}

	logger.Info("Mock rules generated",
		"captures", len(transactions),
		"added", added,
		"rules", rules.Len(),
		"path", rules.Path())
	return nil
}

// ruleKey identifies a rule by what it matches, so regenerating rules from
// overlapping captures stays idempotent.
func ruleKey(rule *fixture.Rule) string {
	keys := make([]string, 0, len(rule.Query))
	for k := range rule.Query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(strings.ToUpper(rule.Method))
	b.WriteByte(' ')
	b.WriteString(rule.PathPattern)
	for _, k := range keys {
		b.WriteByte('&')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(rule.Query[k])
	}
	return b.String()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("portico %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}

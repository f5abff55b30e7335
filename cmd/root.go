package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/campusreport/internal/auth"
	"github.com/joescharf/campusreport/internal/issues"
	"github.com/joescharf/campusreport/internal/notify"
	"github.com/joescharf/campusreport/internal/output"
	"github.com/joescharf/campusreport/internal/store"
	"github.com/joescharf/campusreport/internal/validate"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "campusreport",
	Short: "Campus Reporting Tool - report and track facility issues",
	Long: `campusreport lets campus members report facility problems (lighting,
sanitary, HVAC, cleaning, network, IT equipment), shows a dashboard of all
reported issues, and lets facility staff override issue statuses. Submitters
are emailed when their issue is received and when it is resolved.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeStore()
	},
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		_ = closeStore()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/campusreport/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CAMPUSREPORT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setConfigDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setConfigDefaults registers every config key with its default value.
func setConfigDefaults() {
	dir, _ := configDirFunc()

	viper.SetDefault("state_dir", dir)
	viper.SetDefault("db_path", filepath.Join(dir, "campusreport.db"))
	viper.SetDefault("port", 8080)

	viper.SetDefault("campus.name", "HSG Reporting Tool")
	viper.SetDefault("campus.team", "Your HSG Service Team")
	viper.SetDefault("campus.email_domain", validate.DefaultEmailDomain)
	viper.SetDefault("campus.timezone", "Europe/Zurich")
	viper.SetDefault("campus.map_url", "https://use.mazemap.com/embed.html?v=1&zlevel=1&center=9.373611,47.429708&zoom=14.7&campusid=710")

	viper.SetDefault("smtp.enabled", false)
	viper.SetDefault("smtp.host", "smtp.gmail.com")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.username", "")
	viper.SetDefault("smtp.password", "")
	viper.SetDefault("smtp.from", "")

	viper.SetDefault("auth.session_ttl", auth.DefaultSessionTTL.String())

	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// CLI commands only surface warnings; serve raises this to info.
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	setupLogging(level)

	// The store is opened lazily by getStore so config and version
	// commands run without a db.
}

// setupLogging installs a text slog handler on stderr.
func setupLogging(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx := rootCmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// closeStore closes the shared store if it was opened. It is safe to call
// more than once.
func closeStore() error {
	if dataStore == nil {
		return nil
	}
	err := dataStore.Close()
	dataStore = nil
	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// campusLocation returns the configured campus time zone.
func campusLocation() (*time.Location, error) {
	name := viper.GetString("campus.timezone")
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid campus.timezone %q: %w", name, err)
	}
	return loc, nil
}

// newNotifier returns the SMTP notifier when smtp.enabled is set, otherwise
// a notifier that only logs.
func newNotifier() notify.Notifier {
	if !viper.GetBool("smtp.enabled") {
		return notify.LogNotifier{}
	}
	return notify.NewSMTPNotifier(notify.Config{
		Host:     viper.GetString("smtp.host"),
		Port:     viper.GetInt("smtp.port"),
		Username: viper.GetString("smtp.username"),
		Password: viper.GetString("smtp.password"),
		From:     viper.GetString("smtp.from"),
		TeamName: viper.GetString("campus.team"),
		ToolName: viper.GetString("campus.name"),
	})
}

// getIssueService wires the store, notifier, validation rules and time zone.
func getIssueService() (*issues.Service, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	loc, err := campusLocation()
	if err != nil {
		return nil, err
	}
	rules := validate.NewRules(viper.GetString("campus.email_domain"))
	return issues.NewService(s, newNotifier(), rules, loc), nil
}

// getAuthService returns the login/session service.
func getAuthService() (*auth.Service, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	ttl, err := time.ParseDuration(viper.GetString("auth.session_ttl"))
	if err != nil || ttl <= 0 {
		return nil, fmt.Errorf("invalid auth.session_ttl %q", viper.GetString("auth.session_ttl"))
	}
	return auth.NewService(s, ttl), nil
}

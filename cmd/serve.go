package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/campusreport/internal/api"
	"github.com/joescharf/campusreport/internal/daemon"
	"github.com/joescharf/campusreport/internal/output"
	"github.com/joescharf/campusreport/internal/web"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the HTTP server in the foreground. It serves the issue form at /,
the dashboard at /dashboard, the status override at /override (login
required) and the JSON API under /api/v1/.

Use 'serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the web server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background web server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8080, "Port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "campusreport-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "campusreport-serve.log")
}

// buildHandler mounts the JSON API and the HTML pages on one mux.
func buildHandler() (http.Handler, error) {
	issueSvc, err := getIssueService()
	if err != nil {
		return nil, err
	}
	authSvc, err := getAuthService()
	if err != nil {
		return nil, err
	}

	pages, err := web.NewServer(issueSvc, authSvc, web.Options{
		Title:  viper.GetString("campus.name"),
		MapURL: viper.GetString("campus.map_url"),
	})
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", api.NewServer(issueSvc, authSvc).Router())
	pages.Register(mux)
	return mux, nil
}

func serveRun(ctx context.Context) error {
	if !verbose {
		setupLogging(slog.LevelInfo)
	}

	if err := os.MkdirAll(viper.GetString("state_dir"), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	pf := pidFile()
	if err := pf.Acquire(); err != nil {
		return err
	}
	defer func() { _ = pf.Release() }()

	handler, err := buildHandler()
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			slog.Warn("close database", "error", err)
		}
	}()

	if authSvc, err := getAuthService(); err == nil {
		if n, err := authSvc.PurgeExpired(ctx); err != nil {
			slog.Warn("purge expired sessions", "error", err)
		} else if n > 0 {
			slog.Info("purged expired sessions", "count", n)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", viper.GetInt("port")),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr, "db", viper.GetString("db_path"))
		errCh <- srv.ListenAndServe()
	}()
	ui.Info("Serving %s at %s", viper.GetString("campus.name"), output.Cyan(fmt.Sprintf("http://localhost%s", srv.Addr)))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func serveStartRun() error {
	pf := pidFile()
	if pid, ok := pf.IsRunning(); ok {
		return &daemon.AlreadyRunningError{PID: pid}
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	args := []string{"serve", "--port", strconv.Itoa(viper.GetInt("port"))}
	if cfgFile := viper.ConfigFileUsed(); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}

	if dryRun {
		ui.DryRunMsg("Would run: %s %v", exe, args)
		return nil
	}

	if err := os.MkdirAll(viper.GetString("state_dir"), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	_ = child.Process.Release()

	for i := 0; i < 30; i++ {
		if pid, ok := pf.IsRunning(); ok {
			ui.Success("Server started (pid %d) on port %d", pid, viper.GetInt("port"))
			ui.Info("Logs: %s", serveLogPath())
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server did not start, see %s", serveLogPath())
}

func serveStopRun() error {
	pf := pidFile()
	if dryRun {
		if pid, ok := pf.IsRunning(); ok {
			ui.DryRunMsg("Would stop server (pid %d)", pid)
			return nil
		}
		return daemon.ErrNotRunning
	}

	pid, err := pf.Stop(shutdownTimeout)
	if err != nil {
		return err
	}
	ui.Success("Server stopped (pid %d)", pid)
	return nil
}

func serveStatusRun() error {
	pid, ok := pidFile().IsRunning()
	if !ok {
		ui.Info("Server is %s", output.Yellow("not running"))
		return nil
	}
	ui.Info("Server is %s (pid %d)", output.Green("running"), pid)
	ui.Info("Logs: %s", serveLogPath())
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dalnet/ircserv/internal/config"
	"github.com/dalnet/ircserv/internal/irc"
	"github.com/dalnet/ircserv/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

type options struct {
	configPath  string
	envFile     string
	pidFile     string
	showVersion bool
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "ircserv [port] [password]",
		Short: "Multi-client IRC chat server",
		Long: `ircserv accepts IRC clients on a single port, registers them with a
server password and relays channel and private messages between them.
The port and password arguments override the configuration file.`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Printf("ircserv version %s\n", version)
				fmt.Printf("Built: %s\n", buildDate)
				fmt.Printf("Commit: %s\n", gitCommit)
				return nil
			}
			return run(cmd.Context(), opts, args)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML or TOML configuration file")
	flags.StringVar(&opts.envFile, "env-file", "", "Load IRCSERV_* variables from a dotenv file")
	flags.StringVar(&opts.pidFile, "pid-file", "", "Write the process id to this file")
	flags.BoolVarP(&opts.showVersion, "version", "v", false, "Show version information and exit")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options, args []string) error {
	// Set version info in irc package
	irc.Version = version
	irc.BuildDate = buildDate
	irc.GitCommit = gitCommit

	if opts.envFile != "" {
		if err := config.LoadEnvFile(opts.envFile); err != nil {
			return err
		}
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := applyArgs(cfg, args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logOut, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer logOut.Close()

	if opts.pidFile != "" {
		if err := writePIDFile(opts.pidFile); err != nil {
			log.Printf("Warning: could not write PID file: %v", err)
		} else {
			defer os.Remove(opts.pidFile)
		}
	}

	motd, err := storage.LoadMOTD(cfg.MOTD)
	if err != nil {
		return fmt.Errorf("failed to load MOTD: %w", err)
	}

	metrics := irc.NewMetrics(prometheus.DefaultRegisterer)
	if cfg.Metrics.Listen != "" {
		go serveMetrics(cfg.Metrics.Listen)
	}

	srv, err := irc.Listen(cfg, motd, metrics)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddress(), err)
	}
	return srv.Run(ctx)
}

// applyArgs lets the positional port and password override the file.
func applyArgs(cfg *config.Config, args []string) error {
	if len(args) > 0 {
		port, err := config.ParsePort(args[0])
		if err != nil {
			return err
		}
		cfg.Server.Port = port
	}
	if len(args) > 1 {
		if err := config.ValidatePassword(args[1]); err != nil {
			return err
		}
		cfg.Server.Password = args[1]
		cfg.Server.PasswordHash = ""
	}
	return nil
}

// nopCloser keeps stderr open when no log file is configured.
type nopCloser struct{ *os.File }

func (nopCloser) Close() error { return nil }

// setupLogging points the server loggers and the standard logger at the
// configured log file, or stderr.
func setupLogging(cfg *config.Config) (io.Closer, error) {
	out, err := openLog(cfg.Log.File)
	if err != nil {
		return nil, err
	}
	log.SetOutput(out)
	irc.SetLogOutput(out, cfg.Log.Debug)
	return out, nil
}

func openLog(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stderr}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Printf("Metrics server listening on %s (/metrics)", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Metrics server error: %v", err)
	}
}

func writePIDFile(path string) error {
	pid := os.Getpid()
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0644)
}

// Package commands provides the CLI commands for chatsync.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/chatsync/internal/config"
	"github.com/opencode-ai/chatsync/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	serverURL string
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "chatsync - streaming chat sessions over HTTP",
	Long: `chatsync serves chat sessions with LLM providers over HTTP. Replies
stream to the requesting client as incremental updates, and any number of
observers can follow a chat live.

Run 'chatsync serve' to start the server, or 'chatsync chat' to talk to a
running one.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := logging.DefaultConfig()
		cfg.Level = logging.ParseLevel(logLevel)
		cfg.Pretty = true
		if !printLogs {
			cfg.Output = nopWriter{}
			cfg.LogToFile = true
			cfg.LogDir = config.GetPaths().LogPath()
		}
		logging.Init(cfg)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", defaultServerURL(), "Server URL for client commands")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.SetVersionTemplate(fmt.Sprintf("chatsync %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(modelsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func defaultServerURL() string {
	if u := os.Getenv("CHATSYNC_URL"); u != "" {
		return u
	}
	return fmt.Sprintf("http://%s:%d", config.DefaultHostname, config.DefaultPort)
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

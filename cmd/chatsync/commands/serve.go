package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/chatsync/internal/audio"
	"github.com/opencode-ai/chatsync/internal/config"
	"github.com/opencode-ai/chatsync/internal/event"
	"github.com/opencode-ai/chatsync/internal/logging"
	"github.com/opencode-ai/chatsync/internal/mcp"
	"github.com/opencode-ai/chatsync/internal/provider"
	"github.com/opencode-ai/chatsync/internal/server"
	"github.com/opencode-ai/chatsync/internal/session"
	"github.com/opencode-ai/chatsync/internal/storage"
	"github.com/opencode-ai/chatsync/pkg/mcpserver/search"
	"github.com/opencode-ai/chatsync/pkg/types"
)

var (
	servePort       int
	serveHostname   string
	serveDir        string
	serveConfigFile string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chatsync server",
	Long: `Start chatsync as an HTTP server.

Configuration is read from chatsync.json, .jsonc, .yaml or .yml in the
global config directory and the working directory, then from the
environment.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
	serveCmd.Flags().StringVar(&serveConfigFile, "config", "", "Config file; replaces the directory lookup")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	var appConfig *types.Config
	if serveConfigFile != "" {
		appConfig, err = config.LoadFile(serveConfigFile)
	} else {
		appConfig, err = config.Load(workDir)
	}
	if err != nil {
		return err
	}
	applyServeFlags(appConfig)

	log := logging.Component("serve")
	log.Info().Str("version", Version).Str("directory", workDir).Msg("Starting chatsync server")

	store, err := storage.Open(appConfig.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	bus, err := event.Open(appConfig.EventBus)
	if err != nil {
		return fmt.Errorf("open event bus: %w", err)
	}
	defer bus.Close()

	registry := provider.InitializeProviders(appConfig)
	if len(registry.List()) == 0 {
		log.Warn().Msg("No provider has an API key; chat requests will fail")
	}

	tools, err := mcp.NewProvisioner(appConfig.MCP, appConfig.Tools)
	if err != nil {
		return err
	}

	opts := session.Options{
		Store:           store,
		Models:          provider.NewModelCache(registry),
		Tools:           tools,
		Publisher:       bus,
		Serialize:       appConfig.SessionsSerialized(),
		DefaultProvider: appConfig.Provider,
		DefaultModel:    appConfig.Model,
		SystemPrompt:    appConfig.SystemPrompt,
	}

	var audioStore *audio.Store
	if appConfig.Audio.Enabled {
		synth, err := audio.NewSynthesizer(appConfig.Audio)
		if err != nil {
			log.Warn().Err(err).Msg("Speech synthesis disabled")
		} else {
			audioStore = audio.NewStore(paths.AudioPath())
			opts.Speaker = audio.NewSpeaker(synth, audioStore)
		}
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Port = appConfig.Server.Port
	serverConfig.Hostname = appConfig.Server.Hostname
	if appConfig.Server.EnableCORS != nil {
		serverConfig.EnableCORS = *appConfig.Server.EnableCORS
	}
	serverConfig.RateLimit = appConfig.Server.RateLimit
	serverConfig.RateBurst = appConfig.Server.RateBurst

	srv := server.New(serverConfig, server.Deps{
		Sessions: session.NewService(opts),
		Bus:      bus,
		Audio:    audioStore,
		Tools: search.NewHTTPHandler(search.NewServer(search.Options{
			SearchURL: os.Getenv("CHATSYNC_SEARCH_URL"),
		})),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", "http://"+srv.Addr()).Msg("Server listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Server stopped")
	return nil
}

// applyServeFlags applies command line overrides. The default tool server
// follows the listen port.
func applyServeFlags(cfg *types.Config) {
	if serveHostname != "" {
		cfg.Server.Hostname = serveHostname
	}
	if servePort == 0 || servePort == cfg.Server.Port {
		return
	}
	oldURL := fmt.Sprintf("http://localhost:%d/mcp/search", cfg.Server.Port)
	cfg.Server.Port = servePort
	if m, ok := cfg.MCP[config.DefaultMCPServer]; ok && m.URL == oldURL {
		m.URL = fmt.Sprintf("http://localhost:%d/mcp/search", servePort)
		cfg.MCP[config.DefaultMCPServer] = m
	}
}

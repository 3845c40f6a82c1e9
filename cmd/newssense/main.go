package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/NewsSense/internal/config"
	"github.com/TobiSchelling/NewsSense/internal/logger"
	"github.com/TobiSchelling/NewsSense/internal/news"
	"github.com/TobiSchelling/NewsSense/internal/server"
	"github.com/TobiSchelling/NewsSense/internal/session"
	"github.com/TobiSchelling/NewsSense/internal/tui"
	"github.com/TobiSchelling/NewsSense/internal/vectorindex"
	"github.com/TobiSchelling/NewsSense/internal/vectorindex/sqlite"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	log        *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "newssense",
	Short:   "Daily news digest with grounded Q&A",
	Long:    "NewsSense collects today's news, summarizes it per category, and answers questions grounded in the indexed articles.",
	Version: version,
	// Runtime failures are not usage mistakes.
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}

		log = logger.New("info")

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		log = logger.New(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("newssense", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/newssense/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to choose categories, feeds, providers and the index backend.")
		fmt.Println("Put API keys in the environment or a .env file.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, credentials and index status",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Providers:")
		fmt.Printf("  LLM: %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
		fmt.Printf("  Embeddings: %s (%s, %d dims)\n", cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimension)
		fmt.Printf("  Embedding cache: %s\n", cfg.Embedding.Cache.Type)

		fmt.Println("\nSources:")
		fmt.Printf("  Categories: %s\n", strings.Join(cfg.Sources.Categories, ", "))
		fmt.Printf("  NewsAPI enabled: %v\n", cfg.Sources.NewsAPI.Enabled)
		fmt.Printf("  Feeds: %d\n", len(cfg.Sources.Feeds))

		fmt.Println("\nCredentials:")
		if err := cfg.Validate(); err != nil {
			fmt.Printf("  %v\n", err)
		} else {
			fmt.Println("  All required credentials present")
		}

		fmt.Println("\nIndex:")
		fmt.Printf("  Backend: %s\n", cfg.Index.Backend)
		fmt.Printf("  Name: %s (mode %s)\n", cfg.Index.Name, cfg.Index.Mode)

		backend, closeBackend, err := session.OpenBackend(cfg, log)
		if err != nil {
			fmt.Printf("  Unavailable: %v\n", err)
			return nil
		}
		if closeBackend != nil {
			defer closeBackend()
		}
		if sb, ok := backend.(*sqlite.Backend); ok {
			fmt.Printf("  Path: %s\n", sb.Path())
		}

		idx := vectorindex.New(backend, nil, vectorindex.Options{Name: cfg.Index.Name, Dimension: cfg.Embedding.Dimension})
		stats, err := idx.Stats(cmd.Context())
		switch {
		case errors.Is(err, vectorindex.ErrIndexNotFound):
			fmt.Println("  Not created yet. Run 'newssense refresh'.")
		case err != nil:
			fmt.Printf("  Unavailable: %v\n", err)
		default:
			fmt.Printf("  Ready: %v\n", stats.Ready)
			fmt.Printf("  Dimension: %d\n", stats.Dimension)
			fmt.Printf("  Vectors: %d\n", stats.VectorCount)
		}
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch news, rebuild the index and print per-category summaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		result := sess.Refresh(cmd.Context())
		printSteps(result)
		if err := result.Err(); err != nil && len(sess.Summaries()) == 0 {
			return err
		}

		for _, s := range sess.Summaries() {
			fmt.Printf("\n== %s ==\n%s\n", strings.ToUpper(s.Category), s.Text)
		}
		return nil
	},
}

var askTopK int

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed articles",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if askTopK > 0 {
			cfg.QA.TopK = askTopK
		}

		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		return answerQuestion(cmd.Context(), sess, strings.Join(args, " "), os.Stdout, terminalWidth())
	},
}

type asker interface {
	Ask(ctx context.Context, question string) (session.ChatTurn, error)
}

// answerQuestion prints the AI turn and its sources. A failed answer prints
// the session apology; the cause goes to the log, not the terminal.
func answerQuestion(ctx context.Context, a asker, question string, out io.Writer, width int) error {
	turn, err := a.Ask(ctx, question)
	if errors.Is(err, session.ErrEmptyQuestion) {
		return err
	}

	fmt.Fprintln(out, turn.Message)
	if len(turn.Sources) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for i, src := range turn.Sources {
			fmt.Fprintln(out, formatSource(i+1, src, width))
		}
	}
	return nil
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "Number of articles to retrieve (default from config)")
}

var chatRefresh bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive terminal chat over today's news",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Keep log output off the alternate screen.
		if !verbose {
			log = logger.Discard()
		}

		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		if chatRefresh {
			fmt.Println("Refreshing news...")
			printSteps(sess.Refresh(cmd.Context()))
		}
		return tui.Run(cmd.Context(), sess)
	},
}

func init() {
	chatCmd.Flags().BoolVar(&chatRefresh, "refresh", false, "Refresh news before opening the chat")
}

var (
	servePort    int
	serveRefresh bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		if serveRefresh {
			printSteps(sess.Refresh(cmd.Context()))
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(cmd.Context(), sess, port, log)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
	serveCmd.Flags().BoolVar(&serveRefresh, "refresh", false, "Refresh news before serving")
}

func openSession(ctx context.Context) (*session.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return session.Build(ctx, cfg, log)
}

func printSteps(result *session.Result) {
	for i, step := range result.Steps {
		fmt.Printf("\nStep %d/3: %s\n", i+1, step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

func formatSource(n int, a news.Article, width int) string {
	line := fmt.Sprintf("  [%d] %s", n, a.Title)
	if a.Source != "" {
		line += " (" + a.Source + ")"
	}
	line = runewidth.Truncate(line, width, "...")
	if a.URL != "" {
		line += "\n      " + runewidth.Truncate(a.URL, width-6, "...")
	}
	return line
}

func terminalWidth() int {
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && cols > 20 {
		return cols
	}
	return 100
}

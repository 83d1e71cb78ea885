package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/pantry-tracker/internal/pantry"
	"github.com/zombor/pantry-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// envFileArg finds --env-file before flag parsing so its values can feed env var lookups
func envFileArg(args []string) string {
	for i, arg := range args {
		switch {
		case strings.HasPrefix(arg, "--env-file="):
			return strings.TrimPrefix(arg, "--env-file=")
		case arg == "--env-file" && i+1 < len(args):
			return args[i+1]
		}
	}
	return ""
}

func newScanner(kind, openaiKey, openaiURL, openaiModel, geminiKey, geminiModel, ollamaURL, ollamaModel string, timeout time.Duration) (scanning.Scanner, error) {
	switch kind {
	case "openai":
		if openaiKey == "" {
			openaiKey = os.Getenv("OPENAI_API_KEY")
		}
		if openaiKey == "" {
			return nil, fmt.Errorf("openai api key is required: set --openai-key or OPENAI_API_KEY")
		}
		slog.Info("Initializing OpenAI scanner...", "model", openaiModel)
		return scanning.NewOpenAI(openaiKey, openaiURL, openaiModel, timeout)
	case "gemini":
		if geminiKey == "" {
			geminiKey = os.Getenv("GEMINI_API_KEY")
		}
		if geminiKey == "" {
			return nil, fmt.Errorf("gemini api key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", geminiModel)
		return scanning.NewGemini(geminiKey, geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", ollamaURL, "model", ollamaModel)
		return scanning.NewOllama(ollamaURL, ollamaModel, timeout)
	}
	return nil, fmt.Errorf("invalid scanner type %q (valid: openai, gemini, ollama)", kind)
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if envFile := envFileArg(os.Args[1:]); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			slog.Error("Failed to load env file", "path", envFile, "error", err)
			os.Exit(1)
		}
	}

	fs := ff.NewFlagSet("pantry-tracker")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		backend        = fs.StringLong("backend", pantry.BackendSQLite, "Store backend: 'sqlite', 'bolt' or 'memory'")
		dbPath         = fs.StringLong("db", "pantry.db", "Database file path")
		memoryFallback = fs.BoolLong("memory-fallback", "Use an in-memory store when the database cannot be opened")
		capturePath    = fs.StringLong("captures", "./captures", "Directory for captured receipt images")
		scannerType    = fs.StringLong("scanner", "openai", "Scanner type: 'openai', 'gemini' or 'ollama'")
		openaiKey      = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openaiURL      = fs.StringLong("openai-url", "https://api.openai.com/v1", "OpenAI compatible API base URL")
		openaiModel    = fs.StringLong("openai-model", "gpt-4o", "OpenAI model name")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		timeout        = fs.DurationLong("timeout", 120*time.Second, "HTTP timeout for receipt analysis requests")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		_              = fs.StringLong("env-file", "", "Load environment variables from this file before reading flags")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("PANTRY_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize store
	slog.Info("Initializing store...", "backend", *backend, "path", *dbPath)
	store, err := pantry.OpenStore(context.Background(), pantry.StoreConfig{
		Backend:        *backend,
		Path:           *dbPath,
		MemoryFallback: *memoryFallback,
	})
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	scanner, err := newScanner(*scannerType, *openaiKey, *openaiURL, *openaiModel, *geminiKey, *geminiModel, *ollamaURL, *ollamaModel, *timeout)
	if err != nil {
		slog.Error("Failed to initialize scanner", "error", err)
		os.Exit(1)
	}
	defer scanner.Close()

	// Initialize capture storage
	slog.Info("Initializing capture storage...", "path", *capturePath)
	captures, err := pantry.NewLocalStorage(*capturePath)
	if err != nil {
		slog.Error("Failed to initialize capture storage", "error", err)
		os.Exit(1)
	}

	service := pantry.NewService(store, scanner, captures)
	server := pantry.NewServer(service, pantry.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	})

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

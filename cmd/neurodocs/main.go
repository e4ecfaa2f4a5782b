package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/xhad/neurodocs/internal/app"
	"github.com/xhad/neurodocs/internal/models"
	"github.com/xhad/neurodocs/internal/types"
	cfgPkg "github.com/xhad/neurodocs/pkg/config"
	"github.com/xhad/neurodocs/pkg/extractor"
	"github.com/xhad/neurodocs/pkg/watcher"
)

type options struct {
	configPath string
	file       string
	watch      bool
	verbose    bool
}

func main() {
	opts, cfg, err := parseFlags()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, cfg); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() (options, *cfgPkg.Config, error) {
	var (
		opts        options
		provider    string
		model       string
		ollamaURL   string
		dbURL       string
		chunkSize   int
		topK        int
		temperature float64
	)

	flag.StringVar(&opts.configPath, "config", "", "Path to config file")
	flag.StringVar(&opts.file, "file", "", "Document to load at start (PDF, HTML or text)")
	flag.BoolVar(&opts.watch, "watch", false, "Re-index -file whenever it changes")
	flag.BoolVar(&opts.verbose, "verbose", false, "Log pipeline details to stderr")
	flag.StringVar(&provider, "provider", "", "LLM provider: ollama or openai")
	flag.StringVar(&model, "model", "", "LLM model to use")
	flag.StringVar(&ollamaURL, "ollama-url", "", "Ollama server URL")
	flag.StringVar(&dbURL, "db-url", "", "PostgreSQL connection string for pgvector storage")
	flag.IntVar(&chunkSize, "chunk-size", 0, "Size of text chunks")
	flag.IntVar(&topK, "top-k", 0, "Number of chunks retrieved per question")
	flag.Float64Var(&temperature, "temperature", 0, "Set the LLM temperature")
	flag.Parse()

	cfg, err := cfgPkg.LoadConfig(opts.configPath)
	if err != nil {
		return opts, nil, err
	}

	// Override config with command line flags if provided
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "provider":
			cfg.LLM.Provider = provider
		case "model":
			cfg.LLM.Model = model
		case "ollama-url":
			cfg.LLM.BaseURL = ollamaURL
		case "db-url":
			cfg.Database.URL = dbURL
		case "chunk-size":
			cfg.Processor.ChunkSize = chunkSize
			if cfg.Processor.ChunkOverlap >= chunkSize {
				cfg.Processor.ChunkOverlap = chunkSize / 5
			}
		case "top-k":
			cfg.Retrieval.TopK = topK
		case "temperature":
			cfg.LLM.Temperature = temperature
		}
	})

	if opts.watch && opts.file == "" {
		return opts, nil, fmt.Errorf("-watch requires -file")
	}

	return opts, cfg, nil
}

func run(ctx context.Context, opts options, cfg *cfgPkg.Config) error {
	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	progress := &embedProgress{}
	a, err := app.Build(ctx, cfg, app.Options{
		Logger:          logger,
		OnEmbedProgress: progress.update,
		OnFetch: func(url string) {
			color.Blue("🌐 Fetching %s", url)
		},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.file != "" {
		if err := ingestFile(ctx, a, opts.file); err != nil {
			color.Red("Error: %v\n", err)
		}
	}

	if opts.watch {
		if err := watchFile(ctx, a, opts.file, logger); err != nil {
			return err
		}
	}

	return chat(ctx, a)
}

func ingestFile(ctx context.Context, a *app.App, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	color.Blue("\n📄 Loading %s\n", path)
	result, err := a.Session.Upload(ctx, filepath.Base(path), data, a.Extractor)
	if err != nil {
		return err
	}

	color.Green("\n✓ Indexed %s into %d chunks\n", result.Name, result.ChunkCount)
	return nil
}

func ingestURL(ctx context.Context, a *app.App, url string) error {
	doc, err := a.Fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}

	result, err := a.Session.Ingest(ctx, doc.Name, doc.Content)
	if err != nil {
		return err
	}

	color.Green("\n✓ Indexed %q into %d chunks\n", result.Name, result.ChunkCount)
	return nil
}

func watchFile(ctx context.Context, a *app.App, path string, logger *slog.Logger) error {
	w, err := watcher.New(path, watcher.WatcherConfig{Logger: logger})
	if err != nil {
		return err
	}

	changes, err := w.Watch(ctx)
	if err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		for range changes {
			color.Yellow("\n%s changed, re-indexing...", path)
			if err := ingestFile(ctx, a, path); err != nil {
				color.Red("Error: %v\n", err)
			}
		}
	}()

	return nil
}

func chat(ctx context.Context, a *app.App) error {
	// Interactive chat loop with colored output
	color.Cyan("\nAsk about your document (paste a URL to load a page, /history to review, 'exit' to quit)")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")

		var input string
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			input = strings.TrimSpace(line)
		}

		switch strings.ToLower(input) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/history":
			printHistory(a.Session.History())
			continue
		}

		if url := extractor.FindURL(input); url != "" {
			if err := ingestURL(ctx, a, url); err != nil {
				color.Red("Error: %v\n", err)
				continue
			}
			input = strings.TrimSpace(strings.Replace(input, url, "", 1))
			if input == "" {
				continue
			}
		}

		responseSpinner := getSpinner("🤖 Generating response...")
		result, err := a.Session.Ask(ctx, input)
		_ = responseSpinner.Finish()
		fmt.Print("\r")

		if err != nil {
			if types.IsNotReady(err) {
				color.Yellow("No document loaded yet. Start with -file or paste a URL.\n")
				continue
			}
			color.Red("Error: %v\n", err)
			continue
		}
		assistantPrompt("Assistant: %s\n", result.Answer)
	}
}

func printHistory(history []models.Turn) {
	if len(history) == 0 {
		color.Yellow("No questions asked yet.")
		return
	}
	for _, turn := range history {
		switch turn.Role {
		case models.RoleUser:
			color.Green("You: %s", turn.Content)
		default:
			color.Cyan("Assistant: %s", turn.Content)
		}
	}
}

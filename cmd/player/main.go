package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lunabay/chapter-engine/internal/config"
	"github.com/lunabay/chapter-engine/internal/logger"
	"github.com/lunabay/chapter-engine/internal/storage"
	"github.com/lunabay/chapter-engine/pkg/chapter"
	"github.com/lunabay/chapter-engine/pkg/player"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg)

	chaptersDir := filepath.Join(cfg.DataDir, "chapters")
	names, err := listChapters(chaptersDir)
	if err != nil || len(names) == 0 {
		fmt.Fprintf(os.Stderr, "No chapter files found in %s: %v\n", chaptersDir, err)
		os.Exit(1)
	}

	fmt.Println("Available Chapters:")
	for i, name := range names {
		fmt.Printf("  %d - %s\n", i+1, name)
	}
	fmt.Print("\nSelect a chapter by number: ")

	var choice int
	if _, err := fmt.Scanf("%d", &choice); err != nil || choice < 1 || choice > len(names) {
		fmt.Fprintf(os.Stderr, "Invalid selection\n")
		os.Exit(1)
	}

	chapterFile := names[choice-1]
	doc, err := chapter.Load(filepath.Join(chaptersDir, chapterFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load chapter: %v\n", err)
		os.Exit(1)
	}

	game := player.NewGame(newTerminalResolver(log), log)
	game.SetCheckpointer(openProgressStore(cfg, log))

	bridge := newBridge()
	game.SetPresenter(bridge.presenter())

	storyID := strings.TrimSuffix(chapterFile, ".json")
	ui := newPlayerUI(game, bridge, doc, storyID)

	p := tea.NewProgram(ui, tea.WithAltScreen())
	bridge.program = p

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

// openProgressStore prefers Redis when configured and reachable, falling
// back to the in-memory store so the player always runs.
func openProgressStore(cfg *config.Config, log *slog.Logger) storage.ProgressStore {
	if cfg.RedisURL == "" {
		return storage.NewMemoryStore()
	}

	store := storage.NewRedisStore(cfg.RedisURL, log)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		log.Warn("redis unreachable, using in-memory checkpoints", "error", err)
		return storage.NewMemoryStore()
	}
	log.Info("checkpoints stored in redis", "url", cfg.RedisURL)
	return store
}

func listChapters(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

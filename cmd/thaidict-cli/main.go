package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/thailang/thaidict/pkg/thaidict"
	"github.com/thailang/thaidict/pkg/thaidict/config"
)

func main() {
	var (
		cacheDir   = flag.String("cache", "", "Cache directory (overrides config)")
		configPath = flag.String("config", "", "Config file (optional)")
		scheme     = flag.String("scheme", "", "Pronunciation scheme (overrides config)")
		ref        = flag.String("ref", "", "One-shot reference (non-interactive mode)")
		serverside = flag.Bool("serverside", false, "Force server-side word search")
		verbose    = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatal(err)
		}
	}
	if *cacheDir != "" {
		cfg.CacheDir = *cacheDir
	}
	if *scheme != "" {
		cfg.PronunciationScheme = *scheme
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx := context.Background()
	client, err := thaidict.Open(ctx, thaidict.Options{Config: cfg, Logger: logger})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	// One-shot mode
	if *ref != "" {
		if err := showRef(ctx, client, *ref, *serverside); err != nil {
			log.Fatal(err)
		}
		return
	}

	// Interactive mode
	fmt.Println("thaidict lookup")
	fmt.Println("Enter an id, id#definition, entry URL, word or pronunciation (Ctrl+D to exit):")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		if err := showRef(ctx, client, raw, *serverside); err != nil {
			fmt.Println("Error:", err)
		}
	}
	fmt.Println()
}

func showRef(ctx context.Context, client *thaidict.Client, raw string, serverside bool) error {
	refs, err := client.ResolveRef(ctx, raw)
	if err != nil {
		return err
	}
	if len(refs) == 0 && serverside {
		refs, err = client.LookupWord(ctx, raw, true)
		if err != nil {
			return err
		}
	}
	if len(refs) == 0 {
		fmt.Println("No match.")
		return nil
	}

	for _, ref := range refs {
		n, err := client.EntryToNote(ctx, ref)
		if err != nil {
			return err
		}
		fmt.Printf("\n--- %s ---\n", ref)
		fmt.Println("Word:      ", n.Word)
		fmt.Println("Definition:", n.Definition)
		if n.Extra != "" {
			fmt.Println("Extra:     ", n.Extra)
		}
		if len(n.Media) > 0 {
			names := make([]string, 0, len(n.Media))
			for name := range n.Media {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Println("Media:")
			for _, name := range names {
				fmt.Printf("  %s <- %s\n", name, n.Media[name])
			}
		}
	}
	return nil
}

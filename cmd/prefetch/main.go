package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/thailang/thaidict/pkg/thaidict"
	"github.com/thailang/thaidict/pkg/thaidict/config"
	"github.com/thailang/thaidict/pkg/thaidict/internalerr"
)

// prefetch warms the cache from a list of references, one per line.
// Not-found records are skipped; any other failure aborts the batch.
func main() {
	var (
		cacheDir   = flag.String("cache", "", "Cache directory (overrides config)")
		configPath = flag.String("config", "", "Config file (optional)")
		refsPath   = flag.String("refs", "-", "Reference list file, '-' for stdin")
		media      = flag.Bool("media", false, "Also download referenced sound files")
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

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var in io.Reader = os.Stdin
	if *refsPath != "-" {
		f, err := os.Open(*refsPath)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		in = f
	}

	ctx := context.Background()
	client, err := thaidict.Open(ctx, thaidict.Options{Config: cfg, Logger: logger})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	var done, skipped int
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		refs, err := client.ResolveRef(ctx, raw)
		if err != nil {
			log.Fatalf("resolve %q: %v", raw, err)
		}
		if len(refs) == 0 {
			logger.Warn("no match, skipping", "ref", raw)
			skipped++
			continue
		}

		for _, ref := range refs {
			n, err := client.EntryToNote(ctx, ref)
			if errors.Is(err, internalerr.ErrEntryNotFound) || errors.Is(err, internalerr.ErrNoSuitableDefinition) {
				logger.Warn("skipping", "ref", ref.String(), "reason", err)
				skipped++
				continue
			}
			if err != nil {
				log.Fatalf("fetch %s: %v", ref, err)
			}
			if *media {
				for _, path := range n.Media {
					if _, err := client.MediaData(ctx, path, false); err != nil {
						log.Fatalf("media %s: %v", path, err)
					}
				}
			}
			done++
			logger.Info("cached", "ref", ref.String(), "word", n.Word)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("done: %d cached, %d skipped\n", done, skipped)
}

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bookferry/bookferry/pkg/archive"
	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/mediafile"
	"github.com/creasty/defaults"
	"github.com/jessevdk/go-flags"
	"github.com/robinjoseph08/golib/logger"
)

func main() {
	log := logger.New()

	var opts struct {
		Kind    string `short:"k" long:"kind" choice:"ebook" choice:"audiobook" choice:"magazine" choice:"any" default:"any" description:"Media kind to keep"`
		WorkDir string `short:"w" long:"work-dir" description:"Where the .unpack folder is created (defaults to the archive's folder)"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}
	if len(args) != 1 {
		fmt.Println("go run ./cmd/scripts/debug/unpack <path/to/archive>")
		os.Exit(1)
	}

	format, err := archive.Detect(args[0])
	if err != nil {
		log.Err(err).Fatal("detect error")
	}
	fmt.Printf("Format: %s\n", format)

	cfg := &config.Config{}
	if err := defaults.Set(cfg); err != nil {
		log.Err(err).Fatal("defaults error")
	}
	types := mediafile.NewTypes(cfg)
	want := types.IsPayload
	if opts.Kind != "any" {
		want = types.Predicate(opts.Kind)
	}

	workDir := opts.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(args[0])
	}
	label := filepath.Base(args[0])
	dir, err := archive.Extract(context.Background(), args[0], workDir, label, want)
	if err != nil {
		log.Err(err).Fatal("extract error")
	}
	if dir == "" {
		fmt.Println("Nothing wanted in archive")
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Err(err).Fatal("read dir error")
	}
	fmt.Printf("Extracted to %s:\n", dir)
	for _, e := range entries {
		fmt.Printf("  %s\n", e.Name())
	}
}

package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/bookferry/bookferry/pkg/matcher"
	"github.com/jessevdk/go-flags"
	"github.com/robinjoseph08/golib/logger"
)

func main() {
	log := logger.New()

	var opts struct {
		LibTag    string `short:"t" long:"lib-tag" default:"LL" description:"Tag marking manually added folders"`
		Threshold int    `short:"r" long:"ratio" default:"80" description:"Minimum score to accept a match"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}
	if len(args) != 2 {
		fmt.Println("go run ./cmd/scripts/debug/match <requested title> <path/to/download/dir>")
		os.Exit(1)
	}

	entries, err := os.ReadDir(args[1])
	if err != nil {
		log.Err(err).Fatal("read dir error")
	}

	m := matcher.New(opts.LibTag, opts.Threshold)
	type scored struct {
		name  string
		score int
	}
	scores := []scored{}
	names := []string{}
	for _, e := range entries {
		if matcher.Skippable(e.Name()) {
			continue
		}
		names = append(names, e.Name())
		scores = append(scores, scored{e.Name(), m.Score(args[0], e.Name())})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	fmt.Printf("Requested: %q (normalized %q)\n", args[0], m.Normalize(args[0]))
	for _, s := range scores {
		fmt.Printf("%4d  %s\n", s.score, s.name)
	}

	best, ok := m.Best(args[0], names)
	if !ok {
		fmt.Printf("No match at or above %d\n", m.Threshold())
		return
	}
	fmt.Printf("Match: %s (%d)\n", best.Name, best.Score)
}

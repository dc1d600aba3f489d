package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"

	"github.com/mektools/rigtools/config"
)

type command struct {
	usage string
	run   func(prefs *config.Preferences, fs *flag.FlagSet, args []string) error
}

var commands = map[string]command{
	"import":      {"import [flags] model.gltf [output.glb]", runImport},
	"merge":       {"merge [flags] scene.glb", runMerge},
	"pose-export": {"pose-export [flags] scene.glb [output.pose]", runPoseExport},
	"pose-import": {"pose-import [flags] scene.glb input.pose", runPoseImport},
	"pose-reset":  {"pose-reset [flags] scene.glb", runPoseReset},
	"spline-tail": {"spline-tail [flags] scene.glb", runSplineTail},
	"actors":      {"actors [flags] scene.glb", runActors},
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-v] [-config preferences.yaml] command [flags] args\n\nCommands:\n", os.Args[0])
		names := make([]string, 0, len(commands))
		for n := range commands {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintf(os.Stderr, "  %s\n", commands[n].usage)
		}
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
	verbose := flag.Bool("v", false, "debug logging")
	prefsFile := flag.String("config", config.DefaultFile, "preferences file")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if flag.NArg() == 0 {
		flag.Usage()
		return
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		flag.Usage()
		os.Exit(2)
	}
	prefs, err := config.Load(*prefsFile)
	if err != nil {
		log.Fatal(err)
	}
	fs := newFlagSet(flag.Arg(0), cmd.usage)
	if err := cmd.run(prefs, fs, flag.Args()[1:]); err != nil {
		log.Fatal(err)
	}
}

func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s %s\n", os.Args[0], usage)
		fs.PrintDefaults()
	}
	return fs
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"

	// Command-line configuration
	opts struct {
		configPath string
		debug      bool
		project    string
		file       string
		random     bool
		seed       int64
		kit        string
		port       string
		bpm        float64
		palette    string
		pattern    int
		yaml       string
	}
)

var rootCmd = &cobra.Command{
	Use:   "go-stepseq",
	Short: "A terminal step sequencer that drives MIDI instruments",
	Long: `go-stepseq plays 16 patterns of 4 tracks x 16 steps to a MIDI output.

Projects live in ~/.config/go-stepseq/projects as timestamped JSON saves.
Running without a subcommand is the same as "play".`,
	Version:       Version,
	SilenceUsage:  true,
	RunE:          runPlay,
	SilenceErrors: true,
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Open the sequencer and play to a MIDI output",
	Args:  cobra.NoArgs,
	RunE:  runPlay,
}

var newCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a project from a generator",
	Args:  cobra.ExactArgs(1),
	RunE:  runNew,
}

var exportCmd = &cobra.Command{
	Use:   "export <out.mid>",
	Short: "Write one pattern as a Standard MIDI File",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI output ports",
	Args:  cobra.NoArgs,
	RunE:  runPorts,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Config file (default ~/.config/go-stepseq/config.json)")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false,
		"Write debug logs to ~/.config/go-stepseq/debug.log")

	for _, cmd := range []*cobra.Command{rootCmd, playCmd, exportCmd} {
		cmd.Flags().StringVarP(&opts.project, "project", "p", "", "Project name in the project store")
		cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Project file (.json, .yml or .yaml)")
	}
	for _, cmd := range []*cobra.Command{rootCmd, playCmd, newCmd} {
		cmd.Flags().BoolVarP(&opts.random, "random", "r", false, "Generate random content")
		cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Random seed (0 uses the clock)")
		cmd.Flags().StringVar(&opts.kit, "kit", "", "Map tracks to a drum kit (gm, rd8, tr8s, er1)")
	}
	for _, cmd := range []*cobra.Command{rootCmd, playCmd} {
		cmd.Flags().StringVar(&opts.port, "port", "", "MIDI output name (substring match, default from config)")
		cmd.Flags().Float64Var(&opts.bpm, "bpm", 0, "Override the project tempo")
		cmd.Flags().StringVar(&opts.palette, "palette", "", "GIMP .gpl palette for the UI")
	}
	exportCmd.Flags().IntVar(&opts.pattern, "pattern", 0, "Pattern index to export")
	newCmd.Flags().StringVar(&opts.yaml, "yaml", "", "Write the project to this file instead of the store")

	rootCmd.AddCommand(playCmd, newCmd, exportCmd, portsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

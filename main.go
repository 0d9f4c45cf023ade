package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/schollz/beatkeeper/internal/config"
	"github.com/schollz/beatkeeper/internal/keeper"
	"github.com/schollz/beatkeeper/internal/logger"
	"github.com/schollz/beatkeeper/internal/offsets"
	"github.com/schollz/beatkeeper/internal/outputmodules"
	"github.com/schollz/beatkeeper/internal/procmem"
)

var (
	flagConfig  string
	flagOffsets string
	flagDebug   bool
)

var rootCmd = &cobra.Command{
	Use:   "beatkeeper",
	Short: "Follow a running Rekordbox and emit its deck state over OSC and friends",
	Long: `beatkeeper attaches to a running Rekordbox, reconstructs the musical
state of each deck (beat, tempo, phrase, track) in real time and streams
changes to the enabled output modules.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "config file (default beatkeeper.{yaml,toml} in the working directory)")
	rootCmd.Flags().StringVar(&flagOffsets, "offsets", "", "offsets JSON file overriding the built-in table")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

func run(cmd *cobra.Command, args []string) error {
	log := logger.New(flagDebug)
	defer log.Sync()

	conf, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	table := offsets.Default()
	if flagOffsets != "" {
		if table, err = offsets.Load(flagOffsets); err != nil {
			return err
		}
	}
	log.Infof("Using offsets for Rekordbox %s", table.Version)

	return keeper.Start(table, outputmodules.All(), conf, log, procmem.Attach)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

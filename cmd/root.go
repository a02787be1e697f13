package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLogs, "debug", false, "Log debug information to stderr")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Read configuration from this file instead of the default location")
}

var rootCmd = &cobra.Command{
	Use:   "tonenotes",
	Short: "Rewrite note selections by dialing in a tone",
	Long: `tonenotes keeps notes and rewrites selected text toward a blend of four
personas placed around a tone dial.

Examples:
  tonenotes rewrite "see you at the meeting" --x 1 --y -1
  tonenotes rewrite --dial-x 90 --dial-y 10 < draft.txt
  tonenotes notes list
  tonenotes notes show <id>
  tonenotes tones set top "Pirate" "arr, matey"
  tonenotes serve --port 8080

  tonenotes config                      # view configuration
  tonenotes config completion zsh       # shell completions`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	SilenceUsage:      true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(debugLogs)
	},
}

var (
	debugLogs  bool
	configFile string
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging routes slog to stderr. Without --debug only warnings and
// errors are shown.
func setupLogging(debug bool) {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

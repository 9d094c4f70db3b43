package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stickergif",
	Short: "Convert Telegram stickers and emoji to gifs",
	Long:  "stickergif receives stickers and unicode symbols from a Telegram bot, converts them to gifs, caches the result and replies with the animation.",
}

// Execute runs the root command. It exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagConfig     string
	flagRelayURL   string
	flagWireFormat string
	flagVerbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "firext",
	Short: "Keep a clipboard in sync with everyone in a room",
	Long: `firext joins a room through a signaling relay and keeps text, images and
files synchronized with every other member over direct WebRTC data channels.

Examples:
  firext room
  firext join abcxyz
  firext join abcxyz --relay http://relay.example.org:8080`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to config file (defaults to $CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&flagRelayURL, "relay", "", "relay base URL")
	rootCmd.PersistentFlags().StringVar(&flagWireFormat, "format", "", "data channel wire format: json or msgpack")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(roomCmd, joinCmd)
}

func main() {
	_ = godotenv.Load(".env")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

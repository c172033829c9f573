package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lynxctl",
	Short: "FocusLynx hub diagnostics",
	Long: `A command line tool for talking to an Optec FocusLynx hub directly,
without the Alpaca server. The address is a serial device, tcp://host[:port]
or "sim" for the built-in simulator.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

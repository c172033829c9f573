package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

const historyFile = ".lynxctl_history"

// Common command bodies offered by tab completion.
var shellCompletions = []string{
	"HELLO", "GETSTATUS", "GETCONFIG", "HALT", "HOME", "CENTER", "ENDR",
	"MA", "MIR0", "MIR1", "MOR0", "MOR1", "SCCP", "SCMX", "SCNN", "SCDT",
	"SCTE", "SCTM", "SCTC", "SCTI", "SCTS", "SCBE", "SCBS", "SCSS",
	"REVERSE0", "REVERSE1", "RESET", "FHGETHUBINFO", "FHSCLB",
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Send raw commands interactively",
	Long: `Opens an interactive prompt that sends raw commands to the hub and prints
every reply line. Bare bodies such as GETSTATUS are sent to the selected
channel; F1..., F2..., FH... and fully framed <...> commands are sent as given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		hub, err := openHub()
		if err != nil {
			return err
		}
		defer hub.Close()

		shell := liner.NewLiner()
		defer shell.Close()

		shell.SetCtrlCAborts(true)
		shell.SetCompleter(func(line string) (c []string) {
			for _, name := range shellCompletions {
				if strings.HasPrefix(name, strings.ToUpper(line)) {
					c = append(c, name)
				}
			}
			return
		})

		history := historyPath()
		if f, err := os.Open(history); err == nil {
			shell.ReadHistory(f)
			f.Close()
		}

		fmt.Printf("Connected to %s (firmware %s). Ctrl-D to quit.\n", address, hub.Version())
		for {
			input, err := shell.Prompt(strings.ToUpper(target) + "> ")
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println()
				break
			}
			if err != nil {
				return err
			}
			input = strings.TrimSpace(input)
			if input == "" {
				continue
			}
			shell.AppendHistory(input)
			if input == "quit" || input == "exit" {
				break
			}

			lines, err := hub.Raw(frame(input))
			for _, line := range lines {
				fmt.Println(line)
			}
			if err != nil {
				fmt.Printf("error: %v\n", err)
			} else if len(lines) == 0 {
				fmt.Println("(no reply)")
			}
		}

		if f, err := os.Create(history); err == nil {
			shell.WriteHistory(f)
			f.Close()
		}
		return nil
	},
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return historyFile
	}
	return filepath.Join(home, historyFile)
}

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lynx-alpaca/pkg/drivers/focuslynx"
	"lynx-alpaca/pkg/lynx"
	"lynx-alpaca/pkg/transport"
)

var (
	address string
	target  string
	timeout time.Duration
	debug   bool
	wait    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&address, "address", "a", focuslynx.SimulatorAddress, "serial device, tcp://host[:port] or sim")
	rootCmd.PersistentFlags().StringVarP(&target, "target", "t", "F1", "focuser channel (F1 or F2)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Second, "reply timeout")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "log protocol traffic")

	for _, cmd := range []*cobra.Command{moveCmd, homeCmd, centerCmd} {
		cmd.Flags().BoolVarP(&wait, "wait", "w", true, "wait until the motion ends")
	}

	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(haltCmd)
	rootCmd.AddCommand(homeCmd)
	rootCmd.AddCommand(centerCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(shellCmd)
}

// openHub connects and handshakes with the hub.
func openHub() (*lynx.Hub, error) {
	logger := log.New()
	if debug {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.WarnLevel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t, err := focuslynx.DefaultOpener(ctx, address, logger)
	if err != nil {
		return nil, err
	}
	hub, err := lynx.NewHub(t, lynx.WithReadTimeout(timeout), lynx.WithLogger(logger))
	if err != nil {
		t.Close()
		return nil, err
	}
	if err := hub.Handshake(); err != nil {
		hub.Close()
		return nil, err
	}
	return hub, nil
}

// openFocuser connects and handshakes with the selected channel.
func openFocuser() (*lynx.Focuser, error) {
	t, err := lynx.ParseTarget(target)
	if err != nil {
		return nil, err
	}
	hub, err := openHub()
	if err != nil {
		return nil, err
	}
	f := lynx.NewFocuser(hub, t, nil)
	if err := f.Handshake(); err != nil {
		hub.Close()
		return nil, err
	}
	return f, nil
}

// withFocuser runs fn on a connected focuser and closes the hub afterwards.
func withFocuser(fn func(f *lynx.Focuser, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		f, err := openFocuser()
		if err != nil {
			return err
		}
		defer f.Hub().Close()
		return fn(f, args)
	}
}

// waitForMotion polls until the focuser is idle, printing the position.
func waitForMotion(f *lynx.Focuser) error {
	if !wait {
		return nil
	}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		up, err := f.Poll()
		if err != nil {
			return err
		}
		if up.PositionChanged {
			fmt.Printf("\rPosition %6d", up.Position)
		}
		if f.State().Motion != lynx.MotionBusy {
			fmt.Printf("\rPosition %6d\n", up.Position)
			return nil
		}
	}
	return nil
}

func parsePosition(s string) (uint32, error) {
	pos, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid position %q", s)
	}
	return uint32(pos), nil
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found.")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show hub information",
	RunE: func(cmd *cobra.Command, args []string) error {
		hub, err := openHub()
		if err != nil {
			return err
		}
		defer hub.Close()

		info, err := hub.Info()
		if err != nil {
			return err
		}
		fmt.Printf("Firmware:  %s\n", info.Firmware)
		fmt.Printf("Sleeping:  %t\n", info.Sleeping)
		if info.WiredIP != "" {
			fmt.Printf("Wired IP:  %s\n", info.WiredIP)
		}
		fmt.Printf("WiFi:      %t\n", info.WiFiConn)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show focuser status and configuration",
	RunE: withFocuser(func(f *lynx.Focuser, args []string) error {
		st := f.State()
		fmt.Printf("Focuser %s: %s\n", st.Target, st.Nickname)
		fmt.Printf("  Model:        %s (%s)\n", st.Model.Name, st.Model.Code)
		fmt.Printf("  Firmware:     %s\n", st.Firmware)
		fmt.Printf("  Position:     %d / %d\n", st.Position, st.MaxPosition)
		fmt.Printf("  Absolute:     %t\n", st.Absolute)
		fmt.Printf("  Motion:       %s\n", st.Motion)
		fmt.Printf("  Temperature:  %.1f C\n", st.Temperature)
		fmt.Printf("  Step size:    %.2f um\n", float64(st.StepSize)/100)
		fmt.Printf("  Flags:        %s\n", st.Flags)
		fmt.Printf("  Temp comp:    %t (mode %s, on start %t)\n", st.TempComp.Enabled, st.TempComp.Mode, st.TempComp.OnStart)
		for i, c := range st.TempComp.Coefficients {
			fmt.Printf("    %c: coefficient %5d intercept %7d\n", 'A'+i, c, st.TempComp.Intercepts[i])
		}
		fmt.Printf("  Backlash:     %d steps (enabled %t)\n", st.Backlash.Steps, st.Backlash.Enabled)
		fmt.Printf("  LED:          %d%%\n", st.LEDBrightness)
		return nil
	}),
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List known focuser device types",
	Run: func(cmd *cobra.Command, args []string) {
		for _, m := range lynx.Models() {
			kind := "absolute"
			if !m.Absolute {
				kind = "relative"
			}
			fmt.Printf("%s  %-8s %s\n", m.Code, kind, m.Name)
		}
	},
}

var moveCmd = &cobra.Command{
	Use:   "move [position]",
	Short: "Move to an absolute position",
	Args:  cobra.ExactArgs(1),
	RunE: withFocuser(func(f *lynx.Focuser, args []string) error {
		pos, err := parsePosition(args[0])
		if err != nil {
			return err
		}
		if err := f.MoveAbs(pos); err != nil {
			return err
		}
		return waitForMotion(f)
	}),
}

var haltCmd = &cobra.Command{
	Use:   "halt",
	Short: "Stop any motion",
	RunE: withFocuser(func(f *lynx.Focuser, args []string) error {
		return f.Abort()
	}),
}

var homeCmd = &cobra.Command{
	Use:   "home",
	Short: "Seek the home position",
	RunE: withFocuser(func(f *lynx.Focuser, args []string) error {
		if err := f.Home(); err != nil {
			return err
		}
		return waitForMotion(f)
	}),
}

var centerCmd = &cobra.Command{
	Use:   "center",
	Short: "Move to the middle of the travel range",
	RunE: withFocuser(func(f *lynx.Focuser, args []string) error {
		if err := f.Center(); err != nil {
			return err
		}
		return waitForMotion(f)
	}),
}

var syncCmd = &cobra.Command{
	Use:   "sync [position]",
	Short: "Set the current position without moving",
	Args:  cobra.ExactArgs(1),
	RunE: withFocuser(func(f *lynx.Focuser, args []string) error {
		pos, err := parsePosition(args[0])
		if err != nil {
			return err
		}
		return f.Sync(pos)
	}),
}

// frame adds the target prefix and brackets to a bare command body. The hub
// only accepts upper case commands, so everything but a nickname is raised.
func frame(line string) string {
	if strings.HasPrefix(line, "<") {
		return line
	}
	prefix, body := strings.ToUpper(target), line
	if len(line) >= 2 {
		switch p := strings.ToUpper(line[:2]); p {
		case "F1", "F2", "FH":
			prefix, body = p, line[2:]
		}
	}
	upper := strings.ToUpper(body)
	if strings.HasPrefix(upper, "SCNN") {
		upper = upper[:4] + body[4:]
	}
	return "<" + prefix + upper + ">"
}

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/continuity/internal/drift"
)

var detectCmd = &cobra.Command{
	Use:   "detect [text...]",
	Short: "Check text for context drift and print the reinforcement payload",
	Long: `Matches the text (arguments, or stdin when none are given) against the
drift trigger vocabulary. When any trigger matches, the reinforcement
payload is printed.`,
	RunE: runDetect,
}

var bootupCmd = &cobra.Command{
	Use:   "bootup",
	Short: "Print the bootup sequence for a fresh conversation",
	Args:  cobra.NoArgs,
	RunE:  runBootup,
}

func runDetect(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(raw)
	}

	matches := drift.NewDetector(nil).Detect(text)
	injection := drift.FromConfig(cfg).Generate(matches)
	logger.Debug("drift check", zap.Strings("matches", matches), zap.String("status", string(injection.Status)))

	if jsonOut {
		return printJSON(map[string]interface{}{"matches": matches, "injection": injection})
	}
	fmt.Printf("Status:     %s\n", injection.Status)
	if !injection.Drift() {
		return nil
	}
	fmt.Printf("Triggers:   %s\n", strings.Join(matches, ", "))
	p := injection.Payload
	fmt.Printf("\nIdentity:   %s\n", p.IdentityReinforcement)
	fmt.Printf("Mission:    %s\n", p.MissionReaffirmation)
	fmt.Printf("Emotional:  %s\n", p.EmotionalRestoration)
	fmt.Printf("Systems:    %s\n", p.SystemReactivation)
	return nil
}

func runBootup(cmd *cobra.Command, args []string) error {
	steps := drift.FromConfig(cfg).Bootup()
	if jsonOut {
		return printJSON(steps)
	}
	for i, s := range steps {
		fmt.Printf("%d. %-26s %s\n   -> %s\n", i+1, s.Name, s.Action, s.Result)
	}
	return nil
}

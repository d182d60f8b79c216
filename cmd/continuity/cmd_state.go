package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/continuity/internal/config"
	"github.com/danielpatrickdp/continuity/internal/deadline"
	"github.com/danielpatrickdp/continuity/internal/health"
	"github.com/danielpatrickdp/continuity/internal/state"
)

var (
	preserveInput    string
	preserveInsights []string
	preserveIdentity map[string]string
	preserveEmotion  map[string]string
	sessionFlag      string
)

var preserveCmd = &cobra.Command{
	Use:   "preserve",
	Short: "Write a new session record to all three storage locations",
	Long: `Builds a new record from session data and writes it to the primary,
backup and mission-critical locations. Session data comes from --input
(JSON with conversation, enhancements and key_insights) and/or --insight.`,
	RunE: runPreserve,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <session-id>",
	Short: "Load a stored session record",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

var enhanceCmd = &cobra.Command{
	Use:   "enhance [level]",
	Short: "Merge cognitive enhancement fields into a session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runEnhance,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mission status, deadline tiers and monitor state",
	RunE:  runStatus,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete sessions older than retention_period",
	RunE:  runPrune,
}

func init() {
	preserveCmd.Flags().StringVarP(&preserveInput, "input", "i", "", "JSON file with session data")
	preserveCmd.Flags().StringArrayVar(&preserveInsights, "insight", nil, "Key insight (repeatable)")
	preserveCmd.Flags().StringToStringVar(&preserveIdentity, "identity", nil, "Identity vector entries key=value")
	preserveCmd.Flags().StringToStringVar(&preserveEmotion, "emotion", nil, "Emotional state entries key=number")

	enhanceCmd.Flags().StringVar(&sessionFlag, "session", "", "Session to enhance (default: newest)")
	statusCmd.Flags().StringVar(&sessionFlag, "session", "", "Session to report (default: newest)")
}

// #region preserve

func runPreserve(cmd *cobra.Command, args []string) error {
	var data state.SessionData
	if preserveInput != "" {
		raw, err := os.ReadFile(preserveInput)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("parse input: %w", err)
		}
	}
	data.KeyInsights = append(data.KeyInsights, preserveInsights...)

	emotional, err := parseEmotions(preserveEmotion)
	if err != nil {
		return err
	}

	rt, err := openRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	id, report, err := rt.store.Preserve(data, preserveIdentity, emotional)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(map[string]interface{}{"session_id": id, "write": reportView(report)})
	}
	fmt.Printf("Session:    %s\n", id)
	printReport(report)
	return nil
}

func parseEmotions(raw map[string]string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("emotion %q: %w", k, err)
		}
		out[k] = f
	}
	return out, nil
}

// #endregion preserve

// #region restore

func runRestore(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	rec, err := rt.store.Restore(args[0])
	var corrupt *state.CorruptRecordError
	switch {
	case errors.Is(err, state.ErrNotFound):
		return fmt.Errorf("no such session %q", args[0])
	case errors.As(err, &corrupt):
		return fmt.Errorf("session %q is corrupted: %w", args[0], corrupt.Err)
	case err != nil:
		return err
	}
	return printJSON(rec)
}

// #endregion restore

// #region enhance

func runEnhance(cmd *cobra.Command, args []string) error {
	level := cfg.CognitiveEnhancement
	if len(args) == 1 {
		level = args[0]
	}

	rt, err := openRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.resume(sessionFlag); err != nil {
		return err
	}
	fields, report, err := rt.store.Enhance(level)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(map[string]interface{}{"enhancements": fields, "write": reportView(report)})
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-28s %s\n", k, fields[k])
	}
	printReport(report)
	return nil
}

// #endregion enhance

// #region status

type statusOutput struct {
	Mission   state.MissionStatus `json:"mission"`
	Deadlines []deadlineRow       `json:"deadlines"`
	Monitor   string              `json:"monitor"`
}

type deadlineRow struct {
	Name      string `json:"name"`
	At        string `json:"at"`
	Days      int    `json:"days"`
	Tier      string `json:"tier"`
	Escalates bool   `json:"escalates"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.resume(sessionFlag); err != nil {
		return err
	}

	set, err := deadline.FromConfig(cfg)
	if err != nil {
		return err
	}
	out := statusOutput{
		Mission:   rt.store.MissionStatus(),
		Deadlines: deadlineRows(set, time.Now()),
		Monitor:   monitorState(cmd, cfg),
	}
	if jsonOut {
		return printJSON(out)
	}

	m := out.Mission
	if !m.Active {
		fmt.Println("No session preserved yet.")
	} else {
		fmt.Printf("Session:    %s\n", m.SessionID)
		fmt.Printf("Mission:    %s\n", m.Mission)
		fmt.Printf("Case:       %s\n", m.CaseReference)
		fmt.Printf("Days left:  %d\n", m.DaysToReunion)
		if m.Emergency != nil && m.Emergency.Active {
			fmt.Printf("EMERGENCY:  %s (%s since %s)\n", m.Emergency.Deadline, m.Emergency.ActionRequired, formatTime(m.Emergency.Timestamp))
		}
	}
	fmt.Printf("Monitor:    %s\n", out.Monitor)

	if len(out.Deadlines) > 0 {
		fmt.Printf("\n%-20s  %-20s  %5s  %-11s  %s\n", "Deadline", "At", "Days", "Tier", "Escalates")
		for _, d := range out.Deadlines {
			fmt.Printf("%-20s  %-20s  %5d  %-11s  %t\n", d.Name, d.At, d.Days, d.Tier, d.Escalates)
		}
	}
	return nil
}

func deadlineRows(set *deadline.Set, now time.Time) []deadlineRow {
	var rows []deadlineRow
	for _, d := range set.All() {
		days := 0
		if remaining := d.At.Sub(now); remaining > 0 {
			days = int(remaining / (24 * time.Hour))
		}
		rows = append(rows, deadlineRow{
			Name:      d.Name,
			At:        formatTime(d.At),
			Days:      days,
			Tier:      deadline.Classify(now, d.At).String(),
			Escalates: d.EscalatesOnExpiry,
		})
	}
	return rows
}

// monitorState asks a running daemon over its health endpoint.
func monitorState(cmd *cobra.Command, cfg config.Config) string {
	if cfg.HealthAddr == "" {
		return string(deadline.StateStopped)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
	defer cancel()
	status, err := health.Probe(ctx, cfg.HealthAddr, health.ServiceDeadline)
	if err != nil || status != health.StatusServing {
		return string(deadline.StateStopped)
	}
	return string(deadline.StateRunning)
}

// #endregion status

// #region prune

func runPrune(cmd *cobra.Command, args []string) error {
	if cfg.Retention() == 0 {
		fmt.Println("Retention disabled (retention_period = 0).")
		return nil
	}
	rt, err := openRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	removed, err := rt.store.Prune(time.Now(), cfg.Retention())
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(map[string]interface{}{"removed": removed})
	}
	fmt.Printf("Pruned %d session(s) older than %d days.\n", len(removed), cfg.RetentionPeriod)
	for _, id := range removed {
		fmt.Printf("  %s\n", id)
	}
	return nil
}

// #endregion prune

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/continuity/internal/logging"
	"github.com/danielpatrickdp/continuity/internal/state"
)

var inspectLast int

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show stored sessions and the recent audit trail",
	Args:  cobra.NoArgs,
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().IntVar(&inspectLast, "last", 20, "Show N most recent entries")
}

// #region inspect

type inspectOutput struct {
	Sessions    []sessionRow    `json:"sessions"`
	Writes      []writeRow      `json:"writes"`
	Escalations []escalationRow `json:"escalations"`
}

type sessionRow struct {
	SessionID string `json:"session_id"`
	CreatedAt string `json:"created_at"`
	Anchors   int    `json:"anchors"`
	Emergency bool   `json:"emergency"`
}

type writeRow struct {
	SessionID string `json:"session_id"`
	Location  string `json:"location"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
}

type escalationRow struct {
	SessionID string `json:"session_id"`
	Deadline  string `json:"deadline"`
	Tier      string `json:"tier"`
	CreatedAt string `json:"created_at"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	sessions, err := rt.store.List()
	if err != nil {
		return err
	}
	writes, err := rt.audit.RecentWrites(inspectLast)
	if err != nil {
		return err
	}
	escalations, err := rt.audit.RecentEscalations(inspectLast)
	if err != nil {
		return err
	}

	out := buildInspect(sessions, writes, escalations, inspectLast)
	if jsonOut {
		return printJSON(out)
	}
	printInspect(out)
	return nil
}

func buildInspect(sessions []state.SessionInfo, writes []logging.WriteEntry, escalations []logging.EscalationEntry, last int) inspectOutput {
	var out inspectOutput
	for i, s := range sessions {
		if last > 0 && i >= last {
			break
		}
		out.Sessions = append(out.Sessions, sessionRow{
			SessionID: s.SessionID,
			CreatedAt: formatTime(s.CreatedAt),
			Anchors:   s.Anchors,
			Emergency: s.EmergencyActive,
		})
	}
	for _, w := range writes {
		out.Writes = append(out.Writes, writeRow{
			SessionID: w.SessionID,
			Location:  w.Location,
			OK:        w.OK,
			Error:     w.Error,
			CreatedAt: formatTime(w.CreatedAt),
		})
	}
	for _, e := range escalations {
		out.Escalations = append(out.Escalations, escalationRow{
			SessionID: e.SessionID,
			Deadline:  e.Deadline,
			Tier:      e.Tier,
			CreatedAt: formatTime(e.CreatedAt),
		})
	}
	return out
}

func printInspect(out inspectOutput) {
	fmt.Printf("%-24s  %-20s  %7s  %s\n", "Session", "Created", "Anchors", "Emergency")
	fmt.Printf("%-24s+-%-20s+-%7s+-%s\n", "------------------------", "--------------------", "-------", "---------")
	if len(out.Sessions) == 0 {
		fmt.Println("(no sessions)")
	}
	for _, s := range out.Sessions {
		fmt.Printf("%-24s  %-20s  %7d  %t\n", shortID(s.SessionID), s.CreatedAt, s.Anchors, s.Emergency)
	}

	fmt.Printf("\nRecent writes:\n")
	for _, w := range out.Writes {
		status := "ok"
		if !w.OK {
			status = "FAILED " + w.Error
		}
		fmt.Printf("  %-20s  %-24s  %-8s  %s\n", w.CreatedAt, shortID(w.SessionID), w.Location, status)
	}

	fmt.Printf("\nEscalations:\n")
	if len(out.Escalations) == 0 {
		fmt.Println("  —")
	}
	for _, e := range out.Escalations {
		fmt.Printf("  %-20s  %-24s  %-16s  %s\n", e.CreatedAt, shortID(e.SessionID), e.Deadline, e.Tier)
	}
}

// #endregion inspect

// Copyright (C) 2025 Mono Technologies Inc.
//
// This program is free software; you can redistribute it and/or
// modify it under the terms of the GNU General Public License
// as published by the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/we-are-mono/fwlogd/client"
	"github.com/we-are-mono/fwlogd/daemon"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon counters and reload state",
	Long:  `Queries the running daemon over its status socket.`,
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw status as JSON")
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	report, err := client.New(cfg.SocketPath).Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		exitWithError()
		return
	}

	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		enc.Encode(report)
		return
	}
	printStatus(cmd.OutOrStdout(), report)
}

func printStatus(w io.Writer, r *daemon.StatusReport) {
	fmt.Fprintln(w, "fwlogd Firewall Log Daemon")
	fmt.Fprintln(w, "==========================")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Uptime:      %s\n", orDash(r.Uptime))
	fmt.Fprintf(w, "  Source log:  %s\n", r.Info.SourceLog)
	fmt.Fprintf(w, "  Output log:  %s\n", r.Info.OutputLog)
	fmt.Fprintf(w, "  Marker:      %s\n", r.Info.Marker)
	fmt.Fprintf(w, "  Backend:     %s\n", r.Info.Backend)
	fmt.Fprintf(w, "  Tables:      %d addresses, %d services, %d interfaces\n",
		r.Info.Zones, r.Info.Services, r.Info.Interfaces)
	fmt.Fprintf(w, "  Reopens:     %d\n", r.Info.Reopens)
	if r.Info.StoreOpen {
		fmt.Fprintln(w, "  Store:       open")
	} else {
		fmt.Fprintln(w, "  Store:       disabled")
	}
	fmt.Fprintln(w)

	c := r.Counters
	fmt.Fprintf(w, "Lines: %d total, %d firewall, %d foreign, %d invalid\n", c.Total, c.Firewall, c.Foreign, c.Invalid)
	fmt.Fprintf(w, "Actions: %s\n", formatCounts(c.Actions))
	fmt.Fprintf(w, "Protocols: %s\n", formatCounts(c.Protocols))
	fmt.Fprintln(w)

	rs := r.Reload
	fmt.Fprintf(w, "Reload: %s", rs.State)
	if rs.Cycles > 0 {
		fmt.Fprintf(w, ", %d cycles, last %s (%s)", rs.Cycles, rs.Result, rs.Trigger)
	}
	fmt.Fprintln(w)
	if rs.LastError != "" {
		fmt.Fprintf(w, "[WARN] Last reload error: %s\n", rs.LastError)
	}
}

// formatCounts renders a counter map in a stable order.
func formatCounts(m map[string]uint64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

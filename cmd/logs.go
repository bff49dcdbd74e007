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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/we-are-mono/fwlogd/store"
)

var (
	logsStore   string
	logsAction  string
	logsAddress string
	logsService string
	logsSince   time.Duration
	logsLimit   int
	logsJSON    bool
	logsStats   bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Query stored firewall events",
	Long:  `Reads the audit store written by the daemon, newest events first.`,
	Run:   runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().StringVar(&logsStore, "store", "", "Path to the audit store (default: from fwlogd.json)")
	logsCmd.Flags().StringVar(&logsAction, "action", "", "Only show events with this action (e.g. DROP)")
	logsCmd.Flags().StringVar(&logsAddress, "address", "", "Only show events from or to this address")
	logsCmd.Flags().StringVar(&logsService, "service", "", "Only show events of this service")
	logsCmd.Flags().DurationVar(&logsSince, "since", 0, "Only show events received within this duration (e.g. 1h)")
	logsCmd.Flags().IntVarP(&logsLimit, "lines", "n", 50, "Number of events to show")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "Print events as JSON")
	logsCmd.Flags().BoolVar(&logsStats, "stats", false, "Print per-action totals of the whole store instead of events")
}

func runLogs(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		exitWithError()
		return
	}
	defer s.Close()

	if logsStats {
		st, err := s.Stats(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
			exitWithError()
			return
		}
		printStats(cmd.OutOrStdout(), st)
		return
	}

	f := store.Filter{
		Action:  logsAction,
		Address: logsAddress,
		Service: logsService,
		Limit:   logsLimit,
	}
	if logsSince > 0 {
		f.Since = time.Now().Add(-logsSince)
	}

	entries, err := s.Query(context.Background(), f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		exitWithError()
		return
	}

	if logsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		enc.Encode(entries)
		return
	}
	printEntries(cmd.OutOrStdout(), entries)
}

// openStore opens the store named by --store or the configuration.
func openStore() (*store.Store, error) {
	path := logsStore
	if path == "" {
		path = loadConfig().Store.Path
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audit store %s: %w", path, err)
	}
	return store.Open(path)
}

func printEntries(w io.Writer, entries []store.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No events")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tSERVICE\tSOURCE\tDESTINATION\tIN\tOUT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.LogTime, e.Action, e.Service,
			endpoint(e.SrcName, e.SrcIP, e.SrcPort),
			endpoint(e.DstName, e.DstIP, e.DstPort),
			orDash(e.InterfaceIn), orDash(e.InterfaceOut))
	}
	tw.Flush()
}

func printStats(w io.Writer, st *store.Stats) {
	fmt.Fprintf(w, "Events:  %d (%.1f KiB on disk)\n", st.Total, float64(st.SizeBytes)/1024)
	actions := make([]string, 0, len(st.ByAction))
	for a := range st.ByAction {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	for _, a := range actions {
		fmt.Fprintf(w, "  %-8s %d\n", a, st.ByAction[a])
	}
}

// endpoint shows the resolved name, with the address when they differ.
func endpoint(name, addr string, port int) string {
	s := name
	if name != addr {
		s = fmt.Sprintf("%s (%s)", name, addr)
	}
	if port > 0 {
		s = fmt.Sprintf("%s:%d", s, port)
	}
	return s
}

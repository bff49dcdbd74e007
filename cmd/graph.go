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
	"fmt"
	"io"
	"os"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"github.com/we-are-mono/fwlogd/store"
)

var graphMinutes int

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Plot stored firewall events per minute",
	Run:   runGraph,
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringVar(&logsStore, "store", "", "Path to the audit store (default: from fwlogd.json)")
	graphCmd.Flags().IntVarP(&graphMinutes, "minutes", "m", 60, "Length of the window in minutes")
}

func runGraph(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		exitWithError()
		return
	}
	defer s.Close()

	if err := plotRates(context.Background(), cmd.OutOrStdout(), s, time.Now(), graphMinutes); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		exitWithError()
	}
}

func plotRates(ctx context.Context, w io.Writer, s *store.Store, now time.Time, minutes int) error {
	if minutes < 2 {
		return fmt.Errorf("need a window of at least 2 minutes, got %d", minutes)
	}
	rates, err := s.Rates(ctx, now, minutes)
	if err != nil {
		return err
	}

	var total float64
	for _, r := range rates {
		total += r
	}

	fmt.Fprintf(w, "Firewall events per minute - last %d minutes\n\n", minutes)
	if total == 0 {
		fmt.Fprintln(w, "No events in this window.")
		return nil
	}
	fmt.Fprintln(w, asciigraph.Plot(rates,
		asciigraph.Height(10),
		asciigraph.Width(minutes),
		asciigraph.Caption(fmt.Sprintf("%.0f events, ending %s", total, now.Format("15:04")))))
	return nil
}

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
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"time"

	"github.com/spf13/cobra"
	"github.com/we-are-mono/fwlogd/client"
	"github.com/we-are-mono/fwlogd/reload"
	"github.com/we-are-mono/fwlogd/state"
	"github.com/we-are-mono/fwlogd/types"
)

var reloadTimeout time.Duration

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the daemon configuration and wait for the result",
	Long: `Requests a reload through the shared mailbox, follows its progress and
acknowledges the result. When the mailbox is disabled the request goes
through the status socket instead and is not followed.`,
	Run: runReload,
}

func init() {
	rootCmd.AddCommand(reloadCmd)
	reloadCmd.Flags().DurationVar(&reloadTimeout, "timeout", 2*time.Minute, "Give up waiting after this long")
}

func runReload(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	out := cmd.OutOrStdout()

	if !cfg.Mailbox.Enabled {
		msg, err := client.New(cfg.SocketPath).Reload()
		if err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
			exitWithError()
			return
		}
		fmt.Fprintln(out, msg)
		return
	}

	mb, err := reload.OpenSysV(cfg.Mailbox.Key, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] Failed to open reload mailbox (is the daemon running?): %v\n", err)
		exitWithError()
		return
	}
	defer mb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	result, err := peerReload(ctx, reload.NewPeer(mb, 0), out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		exitWithError()
		return
	}
	if result == reload.Error {
		exitWithError()
	}
}

// peerReload runs one reload as the management peer: hello, request,
// follow, acknowledge, bye.
func peerReload(ctx context.Context, peer *reload.Peer, out io.Writer) (reload.Result, error) {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	if err := peer.Hello(ctx, "fwlogd reload", username); err != nil {
		return reload.NoResult, err
	}
	defer peer.Bye(context.WithoutCancel(ctx))

	if err := peer.RequestReload(ctx); err != nil {
		if errors.Is(err, reload.ErrBusy) {
			return reload.NoResult, fmt.Errorf("a reload is already in progress")
		}
		return reload.NoResult, err
	}

	result, err := peer.Watch(ctx, func(progress int) {
		fmt.Fprintf(out, "Reloading... %3d%%\n", progress)
	})
	if err != nil {
		return reload.NoResult, fmt.Errorf("waiting for reload: %w", err)
	}

	switch result {
	case reload.Success:
		fmt.Fprintln(out, "[OK] Reload complete, configuration changed")
	case reload.NoChanges:
		fmt.Fprintln(out, "[OK] Reload complete, no changes")
	default:
		fmt.Fprintln(out, "[ERROR] Reload failed, see the daemon log")
	}

	if err := peer.Ack(ctx); err != nil {
		return result, fmt.Errorf("failed to acknowledge result: %w", err)
	}
	return result, nil
}

// loadConfig loads fwlogd.json or exits.
func loadConfig() *types.LogdConfig {
	cfg, err := state.LoadLogdConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		exitWithError()
		return state.DefaultLogdConfig()
	}
	return cfg
}

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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/we-are-mono/fwlogd/plugins"
	"github.com/we-are-mono/fwlogd/state"
)

var serveBackendDir string

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List installed configuration backends",
	Run:   runBackends,
}

// serveBackendCmd runs the file backend as a go-plugin process. A wrapper
// script named fwlogd-backend-<name> calling it makes the directory
// selectable as backend <name>.
var serveBackendCmd = &cobra.Command{
	Use:    "serve-backend",
	Short:  "Serve the file backend over the plugin protocol",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		dir := serveBackendDir
		if dir == "" {
			dir = filepath.Dir(state.ConfigPath(configPath))
		}
		plugins.ServePlugin(&plugins.FileProvider{Backend: plugins.NewFileBackend(dir)})
	},
}

func init() {
	rootCmd.AddCommand(backendsCmd, serveBackendCmd)
	serveBackendCmd.Flags().StringVar(&serveBackendDir, "dir", "", "Directory holding the configuration documents")
}

func runBackends(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	names, err := plugins.NewPluginManager().ListPlugins()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		exitWithError()
		return
	}
	fmt.Fprintf(out, "%s (built in)\n", plugins.FileBackendName)
	for _, n := range names {
		fmt.Fprintln(out, n)
	}
}

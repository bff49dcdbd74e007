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
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/we-are-mono/fwlogd/lookup"
	"github.com/we-are-mono/fwlogd/plugins"
	"github.com/we-are-mono/fwlogd/resolve"
	"github.com/we-are-mono/fwlogd/state"
	"github.com/we-are-mono/fwlogd/system"
	"github.com/we-are-mono/fwlogd/types"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and network model without running",
	Long: `Loads fwlogd.json and the network model through the configured
backend, reads the interface addresses and builds the lookup tables
exactly as a reload would.`,
	Run: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	path := state.ConfigPath(configPath)

	cfg, err := state.LoadLogdConfig(configPath)
	if err != nil {
		fmt.Fprintf(out, "❌ %s: %v\n", filepath.Base(path), err)
		exitWithError()
		return
	}
	fmt.Fprintf(out, "✓ %s: valid\n", filepath.Base(path))

	if err := validateModel(out, cfg, filepath.Dir(path), plugins.NewPluginManager(), system.NewDefaultNetlinkClient()); err != nil {
		fmt.Fprintf(out, "❌ %s: %v\n", cfg.NetworkModel, err)
		exitWithError()
	}
}

// validateModel runs the interface, zone, service and table steps of a
// reload against the configured model and reports the table sizes.
func validateModel(w io.Writer, cfg *types.LogdConfig, dir string, pm *plugins.PluginManager, nl system.NetlinkClient) error {
	backend, err := pm.Open(cfg.Backend, dir)
	if err != nil {
		return err
	}
	defer backend.Close()

	m, _, err := state.LoadModel(backend, cfg.NetworkModel)
	if err != nil {
		return err
	}
	ifaces, err := state.ResolveInterfaces(nl, m)
	if err != nil {
		return err
	}
	zones, err := lookup.BuildZones(m, ifaces)
	if err != nil {
		return err
	}
	services, err := lookup.BuildServices(m)
	if err != nil {
		return err
	}
	if _, err := resolve.New(zones, services); err != nil {
		return err
	}

	fmt.Fprintf(w, "✓ %s: valid (%d zones, %d services, %d interfaces)\n",
		cfg.NetworkModel, len(m.Zones), len(m.Services), len(m.Interfaces))
	fmt.Fprintf(w, "  %d addresses and %d service entries in the lookup tables\n", zones.Len(), services.Len())
	devices, err := system.DeviceNames(nl)
	if err != nil {
		return err
	}
	for _, iface := range ifaces {
		link := "down"
		if iface.Up {
			link = "up"
		}
		fmt.Fprintf(w, "  interface %s (%s, %s): %d addresses\n", iface.Name, iface.Device, link, len(iface.Addrs))
		if !slices.Contains(devices, iface.Device) {
			fmt.Fprintf(w, "  ⚠ device %s not present (available: %s)\n", iface.Device, strings.Join(devices, ", "))
		}
	}
	return nil
}

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

package state

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/we-are-mono/fwlogd/types"
	"github.com/we-are-mono/fwlogd/validation"
)

// Source supplies raw configuration documents by name.
type Source interface {
	Load(name string) ([]byte, error)
}

// DecodeModel decodes a network model. The filename extension selects the
// syntax: ".hcl" for native HCL, ".json" for HCL's JSON form.
func DecodeModel(filename string, data []byte) (*types.NetworkModel, error) {
	var m types.NetworkModel
	if err := hclsimple.Decode(filename, data, nil, &m); err != nil {
		return nil, fmt.Errorf("failed to decode network model: %w", err)
	}
	return &m, nil
}

// LoadModel fetches, decodes and validates the network model. The raw
// document is returned alongside so reloads can tell whether it changed.
func LoadModel(src Source, name string) (*types.NetworkModel, []byte, error) {
	data, err := src.Load(name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load network model %s: %w", name, err)
	}

	m, err := DecodeModel(name, data)
	if err != nil {
		return nil, nil, err
	}

	if err := validation.ValidateModel(m); err != nil {
		return nil, nil, fmt.Errorf("invalid network model %s: %w", name, err)
	}
	return m, data, nil
}

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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/we-are-mono/fwlogd/types"
)

// Fingerprint hashes everything name resolution depends on. Two reloads
// with the same fingerprint produce identical lookup tables.
func Fingerprint(config *types.LogdConfig, model []byte, ifaces []ResolvedInterface) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(config)
	h.Write(model)
	_ = enc.Encode(ifaces)
	return hex.EncodeToString(h.Sum(nil))
}

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

package validation

import (
	"errors"
	"fmt"
)

// ErrorCollector gathers every problem found while walking a model so the
// administrator sees all of them at once instead of one per reload.
type ErrorCollector struct {
	errs []error
	root *ErrorCollector // set on collectors returned by In
	ctx  string          // prefix such as "zone lan" or "service ssh"
}

// NewCollector returns an empty collector.
func NewCollector() *ErrorCollector {
	return &ErrorCollector{}
}

// In returns a collector that shares the error list but prefixes new
// errors with ctx.
func (ec *ErrorCollector) In(ctx string) *ErrorCollector {
	if ec.ctx != "" {
		ctx = ec.ctx + ": " + ctx
	}
	return &ErrorCollector{root: ec.top(), ctx: ctx}
}

func (ec *ErrorCollector) top() *ErrorCollector {
	if ec.root != nil {
		return ec.root
	}
	return ec
}

// Check records err if it is non-nil.
func (ec *ErrorCollector) Check(err error) {
	if err == nil {
		return
	}
	if ec.ctx != "" {
		err = fmt.Errorf("%s: %w", ec.ctx, err)
	}
	top := ec.top()
	top.errs = append(top.errs, err)
}

// Len returns the number of collected errors.
func (ec *ErrorCollector) Len() int {
	return len(ec.top().errs)
}

// Error returns all collected errors joined, or nil.
func (ec *ErrorCollector) Error() error {
	return errors.Join(ec.top().errs...)
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package probetest provides helpers to run probers over in-memory images.
package probetest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/go-blkid/blkid/internal/chain"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
)

// Result of a test probe.
type Result struct {
	// Values by attribute name.
	Values map[string]string

	// Name of the matching prober, empty if nothing matched.
	Name string
}

// Run probes data with the given probers in order, as a whole disk.
func Run(t *testing.T, data []byte, probers ...probe.Prober) Result {
	t.Helper()

	return RunWithOptions(t, data, probe.Options{WholeDisk: true}, probers...)
}

// RunWithOptions probes data with custom context options.
func RunWithOptions(t *testing.T, data []byte, opts probe.Options, probers ...probe.Prober) Result {
	t.Helper()

	opts.Logger = zaptest.NewLogger(t)
	opts.Debug = true

	ctx := probe.NewContext(bytes.NewReader(data), uint64(len(data)), opts)

	found, err := chain.Chain(probers).Probe(ctx)
	require.NoError(t, err)

	res := Result{
		Values: map[string]string{},
	}

	if found == nil {
		require.Zero(t, ctx.Store().Len())

		return res
	}

	res.Name = found.Name()

	for _, v := range ctx.Store().Values() {
		res.Values[v.Name] = v.String()
	}

	return res
}

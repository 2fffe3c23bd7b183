// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package integrity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-blkid/blkid/internal/probetest"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/integrity"
)

func TestProbe(t *testing.T) {
	img := make([]byte, 8192)
	copy(img, "integrt\x00\x05")

	res := probetest.Run(t, img, &integrity.Probe{})

	assert.Equal(t, "DM_integrity", res.Name)
	assert.Equal(t, "5", res.Values["VERSION"])
	assert.Equal(t, "integrt\x00", res.Values["SBMAGIC"])

	img[8] = 0

	assert.Empty(t, probetest.Run(t, img, &integrity.Probe{}).Name)
}

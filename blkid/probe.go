// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"io"
)

func (i *Info) probe(r io.ReaderAt, dev Device, opts ...ProbeOption) error {
	p := NewProber(r, dev, opts...)

	found, err := p.Probe()
	if err != nil {
		return err
	}

	if found {
		i.ProbeResult = p.Result()
	}

	return nil
}

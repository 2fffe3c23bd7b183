// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package chain provides the ordered list of format probers and the probing loop.
package chain

import (
	"github.com/siderolabs/gen/xslices"

	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/apfs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/befs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/bfs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/btrfs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/cramfs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/erofs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/exfat"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/ext"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/f2fs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/iso9660"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/jfs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/minix"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/nilfs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/ntfs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/refs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/romfs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/squashfs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/swap"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/udf"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/vfat"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/vxfs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/xfs"
	"github.com/siderolabs/go-blkid/blkid/internal/filesystems/zonefs"
	"github.com/siderolabs/go-blkid/blkid/internal/probe"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/bcache"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/bitlocker"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/bluestore"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/ddf"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/drbd"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/drbdmanage"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/integrity"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/jmicron"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/luks"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/lvm"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/mdraid"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/silicon"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/snapcow"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/talosmeta"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/ubi"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/vdo"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/verity"
	"github.com/siderolabs/go-blkid/blkid/internal/volumes/zfs"
)

// Chain is an ordered list of probers.
type Chain []probe.Prober

// Default returns the registry in probing order.
//
// Crypto and RAID containers come first so that filesystem signatures
// inside a member are never reported for the member itself.
func Default() Chain {
	return Chain{
		&luks.Probe{},
		&bitlocker.Probe{},

		// metadata at the end of the device
		&mdraid.EndProbe{},
		&ddf.Probe{},
		&jmicron.Probe{},
		&silicon.Probe{},
		&lvm.Probe{},
		&lvm.LVM1Probe{},

		// metadata at the start of the device
		&mdraid.StartProbe{},
		&bcache.Probe{},
		&drbd.Probe{},
		&drbdmanage.Probe{},
		&verity.Probe{},
		&integrity.Probe{},
		&snapcow.Probe{},
		&ubi.Probe{},

		&ntfs.Probe{},
		&exfat.Probe{},
		&refs.Probe{},
		&apfs.Probe{},
		&befs.Probe{},
		&bfs.Probe{},
		&cramfs.Probe{},
		&romfs.Probe{},
		&squashfs.Probe{},
		&squashfs.Probe3{},
		&f2fs.Probe{},
		&nilfs.Probe{},
		&erofs.Probe{},
		&zonefs.Probe{},
		&vxfs.Probe{},
		&xfs.ExfsProbe{},
		&vfat.Probe{},
		&ext.Probe{Variant: ext.Ext4Dev},
		&ext.Probe{Variant: ext.Ext4},
		&ext.Probe{Variant: ext.Ext3},
		&ext.Probe{Variant: ext.Ext2},
		&ext.Probe{Variant: ext.JBD},
		&xfs.Probe{},
		&jfs.Probe{},
		&btrfs.Probe{},
		&minix.Probe{},
		&udf.Probe{},
		&iso9660.Probe{},

		&swap.SuspendProbe{},
		&swap.Probe{},

		&bluestore.Probe{},
		&vdo.Probe{},
		&zfs.Probe{},
		&talosmeta.Probe{},
	}
}

// Names lists format names in probing order, duplicates removed.
func (chain Chain) Names() []string {
	seen := make(map[string]struct{}, len(chain))

	return xslices.Filter(xslices.Map(chain, probe.Prober.Name), func(name string) bool {
		if _, ok := seen[name]; ok {
			return false
		}

		seen[name] = struct{}{}

		return true
	})
}

// Filter returns the probers accepted by keep, in order.
func (chain Chain) Filter(keep func(probe.Prober) bool) Chain {
	return xslices.Filter(chain, keep)
}

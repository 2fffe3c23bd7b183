// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/siderolabs/go-blkid/blkid"
	"github.com/siderolabs/go-blkid/block"
)

var wipeCmdFlags struct {
	fast  bool
	full  bool
	debug bool
}

var wipeCmd = &cobra.Command{
	Use:   "wipe [flags] <device or image>...",
	Short: "Erase detected signatures, or wipe block devices",
	Long: `By default every detected signature is erased, one at a time, until nothing is found.
With --fast or --full the whole block device is wiped instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if wipeCmdFlags.fast && wipeCmdFlags.full {
			return errors.New("--fast and --full are mutually exclusive")
		}

		logger, err := newLogger(wipeCmdFlags.debug)
		if err != nil {
			return err
		}

		defer logger.Sync() //nolint:errcheck

		for _, path := range args {
			if err = wipePath(cmd, path, logger); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}

		return nil
	},
}

func init() {
	wipeCmd.Flags().BoolVar(&wipeCmdFlags.fast, "fast", false, "discard the device and zero its head and tail")
	wipeCmd.Flags().BoolVar(&wipeCmdFlags.full, "full", false, "zero out the whole device")
	wipeCmd.Flags().BoolVar(&wipeCmdFlags.debug, "debug", false, "log every probing step")

	rootCmd.AddCommand(wipeCmd)
}

func wipePath(cmd *cobra.Command, path string, logger *zap.Logger) error {
	dev, err := block.NewFromPath(path, block.OpenForWrite())
	if err != nil {
		return err
	}

	defer dev.Close() //nolint:errcheck

	st, err := dev.File().Stat()
	if err != nil {
		return err
	}

	isBlock := st.Mode()&os.ModeDevice != 0

	if !isBlock && (wipeCmdFlags.fast || wipeCmdFlags.full) {
		return errors.New("--fast and --full apply to block devices only")
	}

	info := blkid.Device{Size: uint64(st.Size()), WholeDisk: true}

	if isBlock {
		readOnly, err := dev.IsReadOnly()
		if err != nil {
			return err
		}

		if readOnly {
			return errors.New("device is read-only")
		}

		if err = dev.Lock(true); err != nil {
			return err
		}

		defer dev.Unlock() //nolint:errcheck

		if info.Size, err = dev.GetSize(); err != nil {
			return err
		}

		if info.WholeDisk, err = dev.IsWholeDisk(); err != nil {
			return err
		}

		info.SectorSize = dev.GetSectorSize()
		info.CDROM = dev.IsCD()
	}

	switch {
	case wipeCmdFlags.fast:
		if err = dev.FastWipe(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: wiped via %q\n", path, "fast")
	case wipeCmdFlags.full:
		method, err := dev.Wipe()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: wiped via %q\n", path, method)
	default:
		erased, err := eraseSignatures(dev, info, logger, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		if len(erased) == 0 {
			logger.Info("no signatures found", zap.String("path", path))
		}
	}

	return nil
}

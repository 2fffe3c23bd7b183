// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package main implements the blkid command line tool.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/siderolabs/go-blkid/blkid"
)

// errNothingFound makes the tool exit with code 2, the same as blkid(8).
var errNothingFound = errors.New("no signature found")

var rootCmdFlags struct {
	usages      string
	matchTypes  string
	output      string
	offset      string
	size        string
	safe        bool
	debug       bool
	badChecksum bool
	listFormats bool
}

var rootCmd = &cobra.Command{
	Use:           "blkid [flags] <device or image>...",
	Short:         "Locate and print block device attributes",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if rootCmdFlags.listFormats {
			for _, name := range blkid.Formats() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}

			return nil
		}

		if len(args) == 0 {
			return errors.New("at least one device or image is required")
		}

		format, err := parseOutputFormat(rootCmdFlags.output)
		if err != nil {
			return err
		}

		win, err := parseWindow(rootCmdFlags.offset, rootCmdFlags.size)
		if err != nil {
			return err
		}

		logger, err := newLogger(rootCmdFlags.debug)
		if err != nil {
			return err
		}

		defer logger.Sync() //nolint:errcheck

		opts, err := buildOptions(logger)
		if err != nil {
			return err
		}

		var anyFound bool

		for _, path := range args {
			values, err := probePath(path, win, logger, opts...)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			if len(values) == 0 {
				continue
			}

			anyFound = true

			if err = printValues(cmd.OutOrStdout(), format, path, values); err != nil {
				return err
			}
		}

		if !anyFound {
			return errNothingFound
		}

		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&rootCmdFlags.usages, "usages", "u", "filesystem,raid,crypto,other", "restrict probing to the usage list, a \"no\" prefix negates the whole list")
	rootCmd.Flags().StringVarP(&rootCmdFlags.matchTypes, "match-types", "n", "", "restrict probing to the format list, a \"no\" prefix negates the whole list")
	rootCmd.Flags().StringVarP(&rootCmdFlags.output, "output", "o", string(outputFull), "output format: value, export or full")
	rootCmd.Flags().StringVarP(&rootCmdFlags.offset, "offset", "O", "", "probe at the offset into an image (e.g. 1MiB)")
	rootCmd.Flags().StringVarP(&rootCmdFlags.size, "size", "S", "", "override the probed size of an image (e.g. 512MiB)")
	rootCmd.Flags().BoolVar(&rootCmdFlags.safe, "safe", false, "fail when more than one format is detected")
	rootCmd.Flags().BoolVar(&rootCmdFlags.debug, "debug", false, "log every probing step")
	rootCmd.Flags().BoolVar(&rootCmdFlags.badChecksum, "bad-csum", false, "accept superblocks with checksum mismatches")
	rootCmd.Flags().BoolVarP(&rootCmdFlags.listFormats, "list-formats", "k", false, "list the supported formats")
}

func buildOptions(logger *zap.Logger) ([]blkid.ProbeOption, error) {
	usages, err := blkid.ParseUsage(rootCmdFlags.usages)
	if err != nil {
		return nil, err
	}

	opts := []blkid.ProbeOption{
		blkid.WithProbeLogger(logger),
		blkid.WithUsages(usages),
		blkid.WithSafeProbe(rootCmdFlags.safe),
		blkid.WithDebug(rootCmdFlags.debug),
		blkid.WithBadChecksumAccepted(rootCmdFlags.badChecksum),
	}

	if rootCmdFlags.matchTypes != "" {
		only, types, err := blkid.ParseTypes(rootCmdFlags.matchTypes)
		if err != nil {
			return nil, err
		}

		opts = append(opts, blkid.WithTypes(only, types...))
	}

	return opts, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.DisableStacktrace = true
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)

	if debug {
		config.Level.SetLevel(zapcore.DebugLevel)
	}

	return config.Build()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errNothingFound) {
			os.Exit(2)
		}

		fmt.Fprintf(os.Stderr, "blkid: %s\n", err)

		os.Exit(1)
	}
}

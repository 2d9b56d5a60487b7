// Command mkalfs formats a device with a fresh ALFS indirection layer
// (spec §6.4). Flag shape and defaults follow
// _examples/original_source/mkfs/f2fs_format_main.c's f2fs_parse_options;
// the flat single-driver main() structure follows biscuit/src/mkfs/mkfs.go,
// with cobra replacing getopt the way dsmmcken-dh-cli's cmd tree does for
// every subcommand.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/doscode-kr/f2fs-alfs-tools/internal/alfs"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/alfserr"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/blockdev"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/collaborator"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/config"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/geometry"
)

var (
	flagHeap        bool
	flagDebug       int
	flagExtensions  string
	flagLabel       string
	flagOverprov    float64
	flagFeature     string
	flagSegsPerSec  uint32
	flagSecsPerZone uint32
	flagTrim        bool
	flagSMR         bool
	flagConfigPath  string
	flagQuiet       bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mkalfs:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mkalfs [flags] <device> [sectors]",
		Short:         "Format a device with an ALFS indirection layer",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runFormat,
	}

	defaults, _ := config.Load()

	f := cmd.Flags()
	f.BoolVarP(&flagHeap, "heap", "a", defaults.Heap, "heap-based allocation")
	f.IntVarP(&flagDebug, "debug", "d", 0, "debug level")
	f.StringVarP(&flagExtensions, "ext", "e", "", "extension list, e.g. \"mp3,gif,mov\"")
	f.StringVarP(&flagLabel, "label", "l", "", "volume label")
	f.Float64VarP(&flagOverprov, "overprov", "o", defaults.Overprovision, "overprovision ratio (percent)")
	f.StringVarP(&flagFeature, "feature", "O", "", "set feature (encrypt)")
	f.Uint32VarP(&flagSegsPerSec, "segs-per-sec", "s", defaults.SegsPerSec, "segments per section")
	f.Uint32VarP(&flagSecsPerZone, "secs-per-zone", "z", defaults.SecsPerZone, "sections per zone")
	f.BoolVarP(&flagTrim, "trim", "t", defaults.Trim, "discard device before formatting")
	f.BoolVarP(&flagSMR, "smr", "m", false, "support SMR device")
	f.StringVar(&flagConfigPath, "config", "", "path to alfs.toml (overrides ALFS_CONFIG)")
	f.BoolVarP(&flagQuiet, "quiet", "q", false, "suppress non-essential output")

	return cmd
}

func newLogger() *logrus.Entry {
	logger := logrus.New()
	if flagQuiet {
		logger.SetLevel(logrus.ErrorLevel)
	} else if flagDebug > 0 {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logrus.NewEntry(logger)
}

func parseFeature(s string) (uint32, error) {
	const op = "mkalfs.parseFeature"
	switch s {
	case "":
		return 0, nil
	case "encrypt":
		return 1, nil
	default:
		return 0, alfserr.New(alfserr.Configuration, op, "unknown feature "+s)
	}
}

func runFormat(cmd *cobra.Command, args []string) error {
	const op = "mkalfs.runFormat"
	if flagConfigPath != "" {
		config.SetPath(flagConfigPath)
	}
	logger := newLogger()

	devicePath := args[0]
	var requestedSectors uint64
	if len(args) == 2 {
		n, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return alfserr.Wrap(alfserr.Configuration, op, "invalid sector count", err)
		}
		requestedSectors = n
	}

	var extensions []string
	if flagExtensions != "" {
		extensions = strings.Split(flagExtensions, ",")
	}
	if err := collaborator.ValidateExtensionList(extensions); err != nil {
		return err
	}

	feature, err := parseFeature(flagFeature)
	if err != nil {
		return err
	}
	if flagSMR {
		feature |= 1 << 1
	}

	dev, err := blockdev.Open(devicePath, os.O_CREATE|os.O_RDWR, logger)
	if err != nil {
		return err
	}
	defer dev.Close()

	sectorBytes := requestedSectors * 512
	if sectorBytes == 0 {
		size, err := dev.Size()
		if err != nil {
			return err
		}
		sectorBytes = uint64(size)
	} else if err := dev.Truncate(int64(sectorBytes)); err != nil {
		return err
	}

	if flagTrim {
		if err := dev.Trim(); err != nil {
			logger.WithError(err).Warn("trim failed, continuing without it")
		}
	}

	const blksPerSeg = 512
	reserved := collaborator.ReservedSegments(sectorBytes/512, flagSegsPerSec, flagOverprov)
	totalBlocks := sectorBytes / geometry.BlockSize
	totalSegments := uint32(totalBlocks / blksPerSeg)
	if totalSegments <= reserved {
		return alfserr.New(alfserr.Configuration, op, "device too small for requested overprovisioning")
	}

	params := geometry.Params{
		BlksPerSeg:    blksPerSeg,
		SegsPerSec:    flagSegsPerSec,
		SegCountCkpt:  2,
		SegCountSIT:   reserved / 4,
		SegCountNAT:   reserved / 4,
		SegCountSSA:   reserved / 2,
		TotalSegments: totalSegments,
	}
	if params.SegCountSIT == 0 {
		params.SegCountSIT = flagSegsPerSec
	}
	if params.SegCountNAT == 0 {
		params.SegCountNAT = flagSegsPerSec
	}
	if params.SegCountSSA == 0 {
		params.SegCountSSA = flagSegsPerSec
	}

	sb, err := collaborator.NewSuperblock(flagLabel, params, flagOverprov, feature, flagHeap, flagTrim, flagSMR)
	if err != nil {
		return err
	}

	core, err := alfs.Create(dev, params, logger)
	if err != nil {
		return err
	}
	defer core.Destroy()

	page := sb.Encode()
	if err := dev.WriteAt(0, page); err != nil {
		return err
	}
	if err := dev.WriteAt(1, page); err != nil {
		return err
	}

	for _, mb := range collaborator.MetaBlocks(params) {
		if err := core.WriteMetaBlock(core.Layout.MetalogBlkofs+mb.LBA, mb.Page); err != nil {
			return err
		}
	}

	if err := core.FlushMapping(); err != nil {
		return err
	}
	if err := dev.Sync(); err != nil {
		return err
	}

	if !flagQuiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Info: format successful (%s, uuid=%s)\n", devicePath, sb.UUID)
	}
	return nil
}

// Command fsckalfs loads an ALFS indirection layer from disk, reports its
// consistency (spec §8), and optionally runs one meta-log GC relocation step
// with --fix. The teacher has no fsck binary of its own; this CLI's shape
// mirrors cmd/mkalfs and is grounded on
// _examples/original_source/fsck/alfs_ext.c's load/verify call sequence
// (alfs_create_ai -> alfs_build_ai -> consistency checks).
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/doscode-kr/f2fs-alfs-tools/internal/alfs"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/alfserr"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/blockdev"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/collaborator"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/config"
)

var (
	flagFix        bool
	flagSegsPerSec uint32
	flagConfigPath string
	flagQuiet      bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fsckalfs:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fsckalfs [flags] <device>",
		Short:         "Check (and optionally repair) an ALFS indirection layer",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCheck,
	}

	defaults, _ := config.Load()

	f := cmd.Flags()
	f.BoolVar(&flagFix, "fix", false, "run one meta-log GC relocation step before reporting if the meta-log is near full")
	f.Uint32VarP(&flagSegsPerSec, "segs-per-sec", "s", defaults.SegsPerSec, "segments per section (must match the format-time value)")
	f.StringVar(&flagConfigPath, "config", "", "path to alfs.toml (overrides ALFS_CONFIG)")
	f.BoolVarP(&flagQuiet, "quiet", "q", false, "suppress non-essential output")

	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	const op = "fsckalfs.runCheck"
	if flagConfigPath != "" {
		config.SetPath(flagConfigPath)
	}

	logger := logrus.NewEntry(logrus.New())
	if flagQuiet {
		logger.Logger.SetLevel(logrus.ErrorLevel)
	}

	devicePath := args[0]
	openFlag := os.O_RDONLY
	if flagFix {
		openFlag = os.O_RDWR
	}
	dev, err := blockdev.Open(devicePath, openFlag, logger)
	if err != nil {
		return err
	}
	defer dev.Close()

	page, err := dev.ReadBlock(0)
	if err != nil {
		return err
	}
	sb, err := collaborator.DecodeSuperblock(page)
	if err != nil {
		return alfserr.Wrap(alfserr.Configuration, op, "reading superblock", err)
	}
	if cmd.Flags().Changed("segs-per-sec") {
		sb.Params.SegsPerSec = flagSegsPerSec
	}

	core, err := alfs.Load(dev, sb.Params, logger)
	if err != nil {
		return err
	}
	defer core.Destroy()

	if flagFix && core.NeedsMetalogGC() {
		if !flagQuiet {
			fmt.Fprintln(cmd.OutOrStdout(), "Info: meta-log region near full, reclaiming one section")
		}
		if err := core.ReclaimMetaLog(); err != nil {
			return err
		}
		if err := core.FlushMapping(); err != nil {
			return err
		}
		if err := dev.Sync(); err != nil {
			return err
		}
	}

	if err := core.VerifyConsistency(); err != nil {
		if alfserr.Is(err, alfserr.ConsistencyWarning) {
			fmt.Fprintln(cmd.OutOrStdout(), "Warning:", err)
		} else {
			return err
		}
	} else if !flagQuiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Info: %s is consistent (volume %s)\n", devicePath, sb.UUID)
	}

	return nil
}

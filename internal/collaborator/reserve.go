package collaborator

import (
	"fmt"

	"github.com/doscode-kr/f2fs-alfs-tools/internal/alfserr"
)

// ReservedSegments computes the overprovisioning segment count from a raw
// sector count, mirroring f2fs_format_main.c:182-190's
// `reserved_segments = (total_sectors/4*0.05) / (2*1024)`, rounded up to a
// whole number of sections. Sectors are assumed 512 bytes; the 0.05 factor
// is the original's hard-coded 5% overprovisioning ratio applied ahead of
// the `-o` flag's value, which the overprovisionPercent parameter restates
// as a caller-supplied percentage instead.
func ReservedSegments(totalSectors uint64, segsPerSec uint32, overprovisionPercent float64) uint32 {
	if segsPerSec == 0 {
		segsPerSec = 1
	}
	kib := float64(totalSectors) / 4 * (overprovisionPercent / 100)
	reserved := uint32(kib / (2 * 1024))
	if reserved%segsPerSec != 0 {
		reserved += segsPerSec
		reserved /= segsPerSec
		reserved *= segsPerSec
	}
	return reserved
}

// ValidateExtensionList checks a comma-separated extension list against the
// `-e` flag's constraints (mkfs/f2fs_format_main.c's parse_feature sibling
// option): an entry is rejected if it contains a '.', '/' or space (so no
// leading dot); empty entries are skipped and no other characters are checked.
func ValidateExtensionList(exts []string) error {
	const op = "collaborator.ValidateExtensionList"
	for _, e := range exts {
		if e == "" {
			continue
		}
		for _, r := range e {
			if r == '.' || r == '/' || r == ' ' {
				return alfserr.New(alfserr.Configuration, op, fmt.Sprintf("invalid extension %q", e))
			}
		}
	}
	return nil
}

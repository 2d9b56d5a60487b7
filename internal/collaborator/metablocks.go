package collaborator

import "github.com/doscode-kr/f2fs-alfs-tools/internal/geometry"

// PlaceholderBlock pairs a meta-log logical address with the page a
// collaborator wants persisted there (spec §6.2's WriteMetaBlock contract).
type PlaceholderBlock struct {
	LBA  uint32
	Page *[geometry.BlockSize]byte
}

// Placeholder page magics, one per base-FS meta region. Distinct from
// superblockMagic so a dump tool can tell a superblock page apart from a
// meta-log page at a glance.
const (
	ckptMagic = 0xF2F52012
	sitMagic  = 0xF2F52013
	natMagic  = 0xF2F52014
	ssaMagic  = 0xF2F52015
)

// MetaBlocks builds the minimal checkpoint/SIT/NAT/SSA placeholder pages a
// real base filesystem persists at format time (spec §1: "emit every
// meta-block as an append to the meta-log while recording the resulting
// physical address"). Grounded on
// _examples/original_source/mkfs/f2fs_format.c's dev_write_meta_block call
// sites for each region (lines 724-955: write_checkpoint/write_sit/
// write_nat/write_ssa) and f2fs_write_snapshot's two-copy checkpoint commit
// (lines 1238-1245).
//
// Logical addresses are relative to the meta-log region's own address
// space (lba 0 is the first meta-log block). Regions lay out sequentially
// in ckpt/SIT/NAT/SSA order, the same order geometry.Build sums
// SegCount{Ckpt,SIT,NAT,SSA} into NrMetalogLogiBlks.
func MetaBlocks(p geometry.Params) []PlaceholderBlock {
	var blocks []PlaceholderBlock
	var lba uint32

	ckptLen := p.SegCountCkpt * p.BlksPerSeg
	sitLen := p.SegCountSIT * p.BlksPerSeg
	natLen := p.SegCountNAT * p.BlksPerSeg
	ssaLen := p.SegCountSSA * p.BlksPerSeg

	// f2fs_write_snapshot commits two checkpoint packs so a torn write
	// during format never loses both; mirror that with placeholders at
	// the first and last block of the checkpoint region.
	if ckptLen > 0 {
		blocks = append(blocks, PlaceholderBlock{LBA: lba, Page: metaPage(ckptMagic, 0)})
		if ckptLen > 1 {
			blocks = append(blocks, PlaceholderBlock{LBA: lba + ckptLen - 1, Page: metaPage(ckptMagic, 1)})
		}
	}
	lba += ckptLen

	if sitLen > 0 {
		blocks = append(blocks, PlaceholderBlock{LBA: lba, Page: metaPage(sitMagic, 0)})
	}
	lba += sitLen

	if natLen > 0 {
		blocks = append(blocks, PlaceholderBlock{LBA: lba, Page: metaPage(natMagic, 0)})
	}
	lba += natLen

	if ssaLen > 0 {
		blocks = append(blocks, PlaceholderBlock{LBA: lba, Page: metaPage(ssaMagic, 0)})
	}

	return blocks
}

// metaPage stamps a region magic and pack index at word 0/1, reusing
// superblock.go's fieldw accessor over a fresh zero page.
func metaPage(magic, packIndex uint32) *[geometry.BlockSize]byte {
	var page [geometry.BlockSize]byte
	fieldw(page[:], 0, magic)
	fieldw(page[:], 1, packIndex)
	return &page
}

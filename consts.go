package fat

// Byte offsets into the 512-byte boot sector (BPB). Names follow the
// Microsoft FAT32 specification's field names.
const (
	bsJmpBoot      = 0
	bsOEMName      = 3
	bpbBytsPerSec  = 11
	bpbSecPerClus  = 13
	bpbRsvdSecCnt  = 14
	bpbNumFATs     = 16
	bpbRootEntCnt  = 17
	bpbTotSec16    = 19
	bpbMedia       = 21
	bpbFATSz16     = 22
	bpbSecPerTrk   = 24
	bpbNumHeads    = 26
	bpbHiddSec     = 28
	bpbTotSec32    = 32
	bpbFATSz32     = 36
	bpbExtFlags32  = 40
	bpbFSVer32     = 42
	bpbRootClus32  = 44
	bpbFSInfo32    = 48
	bpbBkBootSec32 = 50
	bsDrvNum32     = 64
	bsBootSig32    = 66
	bsVolID32      = 67
	bsVolLab32     = 71
	bsFilSysType32 = 82
	bsBootCode32   = 90
	bs55AA         = 510
)

// Byte offsets into the 512-byte FSInfo sector.
const (
	fsiLeadSig   = 0
	fsiStrucSig  = 0x1e4
	fsiFree_Count = 0x1e8
	fsiNxt_Free  = 0x1ec
	fsiTrailSig  = 0x1fc

	sigFSILead  = 0x41615252
	sigFSIStruc = 0x61417272
	sigFSITrail = 0xAA550000
)

// Byte offsets into a 32-byte short (8.3) directory entry.
const (
	dirNameOff       = 0  // 11 bytes
	dirAttrOff       = 11
	dirNTResOff      = 12
	dirCrtTime10Off  = 13
	dirCrtTimeOff    = 14
	dirCrtDateOff    = 16
	dirLstAccDateOff = 18
	dirFstClusHIOff  = 20
	dirModTimeOff    = 22
	dirModDateOff    = 24
	dirFstClusLOOff  = 26
	dirFileSizeOff   = 28

	sizeDirEntry = 32
)

// Byte offsets into a 32-byte long filename (LFN) entry.
const (
	ldirOrdOff        = 0
	ldirName1Off      = 1  // 5 UCS-2 units
	ldirAttrOff       = 11
	ldirTypeOff       = 12
	ldirChksumOff     = 13
	ldirName2Off      = 14 // 6 UCS-2 units
	ldirFstClusLO_Off = 26
	ldirName3Off      = 28 // 2 UCS-2 units

	lfnHeadMask = 0x40
	lfnSeqMask  = 0x1f
	lfnMaxSlots = 20 // 20 * 13 = 260 >= 255 max name length
)

// lfnCharOffsets lists, in order, the byte offset of each of the 13 UCS-2
// code units packed into one LFN slot.
var lfnCharOffsets = [13]uint16{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}

const (
	sfnFree = 0xE5
	sfnLast = 0x00
	sfnPad  = 0x20
)

// Directory entry attribute bits.
const (
	attrReadOnly byte = 1 << 0
	attrHidden   byte = 1 << 1
	attrSystem   byte = 1 << 2
	attrLabel    byte = 1 << 3
	attrDir      byte = 1 << 4
	attrArchive  byte = 1 << 5
	attrLFN      byte = attrReadOnly | attrHidden | attrSystem | attrLabel // 0x0F
)

// FAT32 cluster entry classification thresholds. The upper 4 bits of every
// 32-bit entry are reserved and must be preserved across writes.
const (
	mask28bits   uint32 = 0x0FFF_FFFF
	clustFree    uint32 = 0
	clustBad     uint32 = 0x0FFF_FFF7
	clustLastMin uint32 = 0x0FFF_FFF8
	clustLast    uint32 = 0x0FFF_FFFF
)

// badLBA marks an invalidated sector window.
const badLBA lba = ^lba(0)

// MBR layout.
const (
	offsetMBRTable   = 446
	sizePTE          = 16
	offsetMBRBootSig = 510
)

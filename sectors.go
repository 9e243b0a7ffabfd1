package fat

import (
	"encoding/binary"
	"time"
)

// biosParamBlock is an accessor over the 512-byte boot sector (BPB) of a
// FAT32 volume: filesystem geometry, FAT size, root cluster, and labels.
type biosParamBlock struct {
	data []byte
}

// fsinfoSector is an accessor over the FS Information sector of a FAT32
// volume: the free-cluster count and next-free-cluster hint.
type fsinfoSector struct {
	data []byte
}

// fat32Sector is an accessor over one sector's worth of 32-bit FAT entries.
type fat32Sector struct {
	data []byte
}

type entry uint32

// dirSector is an accessor over a 32-byte short-name (8.3) directory entry.
type dirSector struct {
	data []byte
}

// longFilenameEntry is an accessor over a 32-byte long-filename (LFN) slot.
type longFilenameEntry struct {
	data []byte
}

type datetime struct {
	date uint16
	time uint16
}

func newDatetime(ts Timestamp) datetime {
	return datetime{date: encodeDate(ts), time: encodeTime(ts)}
}

func (dt datetime) Timestamp() Timestamp {
	return decodeDateTime(dt.date, dt.time)
}

func (dt datetime) Time() time.Time { return dt.Timestamp().Time() }

func (bs *biosParamBlock) SectorSize() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bpbBytsPerSec:])
}

func (bs *biosParamBlock) SectorsPerFAT() uint32 {
	fatsz := uint32(binary.LittleEndian.Uint16(bs.data[bpbFATSz16:]))
	if fatsz == 0 {
		fatsz = binary.LittleEndian.Uint32(bs.data[bpbFATSz32:])
	}
	return fatsz
}

func (bs *biosParamBlock) NumberOfFATs() uint8 { return bs.data[bpbNumFATs] }

func (bs *biosParamBlock) SectorsPerCluster() uint8 { return bs.data[bpbSecPerClus] }

func (bs *biosParamBlock) ReservedSectors() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bpbRsvdSecCnt:])
}

func (bs *biosParamBlock) RootEntryCount() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bpbRootEntCnt:])
}

func (bs *biosParamBlock) TotalSectors() uint32 {
	totsec := uint32(binary.LittleEndian.Uint16(bs.data[bpbTotSec16:]))
	if totsec == 0 {
		totsec = binary.LittleEndian.Uint32(bs.data[bpbTotSec32:])
	}
	return totsec
}

func (bs *biosParamBlock) RootCluster() uint32 {
	return binary.LittleEndian.Uint32(bs.data[bpbRootClus32:])
}

func (bs *biosParamBlock) FSVersion() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bpbFSVer32:])
}

func (bs *biosParamBlock) FSInfoSector() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bpbFSInfo32:])
}

func (bs *biosParamBlock) ExtFlags() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bpbExtFlags32:])
}

func (bs *biosParamBlock) BootSignature() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bs55AA:])
}

func (bs *biosParamBlock) JumpByte() byte { return bs.data[bsJmpBoot] }

func (bs *biosParamBlock) FilesystemType() [8]byte {
	var t [8]byte
	copy(t[:], bs.data[bsFilSysType32:])
	return t
}

func (bs *biosParamBlock) VolumeLabel() [11]byte {
	var l [11]byte
	copy(l[:], bs.data[bsVolLab32:])
	return l
}

// Signatures returns the three FSInfo signatures; a valid sector has them
// equal to 0x41615252, 0x61417272 and 0xAA550000 respectively.
func (fsi *fsinfoSector) Signatures() (lead, struc, trail uint32) {
	return binary.LittleEndian.Uint32(fsi.data[fsiLeadSig:]),
		binary.LittleEndian.Uint32(fsi.data[fsiStrucSig:]),
		binary.LittleEndian.Uint32(fsi.data[fsiTrailSig:])
}

func (fsi *fsinfoSector) FreeClusterCount() uint32 {
	return binary.LittleEndian.Uint32(fsi.data[fsiFree_Count:])
}

func (fsi *fsinfoSector) SetFreeClusterCount(n uint32) {
	binary.LittleEndian.PutUint32(fsi.data[fsiFree_Count:], n)
}

func (fsi *fsinfoSector) NextFree() uint32 {
	return binary.LittleEndian.Uint32(fsi.data[fsiNxt_Free:])
}

func (fsi *fsinfoSector) SetNextFree(c uint32) {
	binary.LittleEndian.PutUint32(fsi.data[fsiNxt_Free:], c)
}

func (fs *fat32Sector) Entry(idx int) entry {
	return entry(binary.LittleEndian.Uint32(fs.data[idx*4:]))
}

func (fs *fat32Sector) SetEntry(idx int, e entry) {
	binary.LittleEndian.PutUint32(fs.data[idx*4:], uint32(e))
}

func (e entry) cluster() uint32 { return uint32(e) & mask28bits }

func (ds *dirSector) isFree() bool { return ds.data[dirNameOff] == sfnLast }

func (ds *dirSector) isDeleted() bool { return ds.data[dirNameOff] == sfnFree }

func (ds *dirSector) isLFN() bool { return ds.data[dirAttrOff]&attrLFN == attrLFN }

func (ds *dirSector) shortName() [11]byte {
	var n [11]byte
	copy(n[:], ds.data[dirNameOff:])
	return n
}

func (ds *dirSector) setShortName(n [11]byte) { copy(ds.data[dirNameOff:], n[:]) }

func (ds *dirSector) attributes() byte { return ds.data[dirAttrOff] }

func (ds *dirSector) setAttributes(a byte) { ds.data[dirAttrOff] = a }

func (ds *dirSector) createdAt() datetime {
	return datetime{
		time: binary.LittleEndian.Uint16(ds.data[dirCrtTimeOff:]),
		date: binary.LittleEndian.Uint16(ds.data[dirCrtDateOff:]),
	}
}

func (ds *dirSector) setCreatedAt(dt datetime) {
	binary.LittleEndian.PutUint16(ds.data[dirCrtTimeOff:], dt.time)
	binary.LittleEndian.PutUint16(ds.data[dirCrtDateOff:], dt.date)
}

func (ds *dirSector) accessedDate() uint16 {
	return binary.LittleEndian.Uint16(ds.data[dirLstAccDateOff:])
}

func (ds *dirSector) setAccessedDate(date uint16) {
	binary.LittleEndian.PutUint16(ds.data[dirLstAccDateOff:], date)
}

func (ds *dirSector) modifiedAt() datetime {
	return datetime{
		time: binary.LittleEndian.Uint16(ds.data[dirModTimeOff:]),
		date: binary.LittleEndian.Uint16(ds.data[dirModDateOff:]),
	}
}

func (ds *dirSector) setModifiedAt(dt datetime) {
	binary.LittleEndian.PutUint16(ds.data[dirModTimeOff:], dt.time)
	binary.LittleEndian.PutUint16(ds.data[dirModDateOff:], dt.date)
}

func (ds *dirSector) cluster() uint32 {
	return uint32(binary.LittleEndian.Uint16(ds.data[dirFstClusHIOff:]))<<16 |
		uint32(binary.LittleEndian.Uint16(ds.data[dirFstClusLOOff:]))
}

func (ds *dirSector) setCluster(c uint32) {
	binary.LittleEndian.PutUint16(ds.data[dirFstClusHIOff:], uint16(c>>16))
	binary.LittleEndian.PutUint16(ds.data[dirFstClusLOOff:], uint16(c))
}

func (ds *dirSector) size() uint32 { return binary.LittleEndian.Uint32(ds.data[dirFileSizeOff:]) }

func (ds *dirSector) setSize(n uint32) { binary.LittleEndian.PutUint32(ds.data[dirFileSizeOff:], n) }

func (lfn *longFilenameEntry) seq() byte { return lfn.data[ldirOrdOff] }

func (lfn *longFilenameEntry) setSeq(s byte) { lfn.data[ldirOrdOff] = s }

func (lfn *longFilenameEntry) isLast() bool { return lfn.seq()&lfnHeadMask != 0 }

func (lfn *longFilenameEntry) seqNum() byte { return lfn.seq() & lfnSeqMask }

func (lfn *longFilenameEntry) checksum() byte { return lfn.data[ldirChksumOff] }

func (lfn *longFilenameEntry) setChecksum(c byte) { lfn.data[ldirChksumOff] = c }

func (lfn *longFilenameEntry) setAttr() {
	lfn.data[ldirAttrOff] = attrLFN
	lfn.data[ldirTypeOff] = 0
	binary.LittleEndian.PutUint16(lfn.data[ldirFstClusLO_Off:], 0)
}

// charAt returns the i'th (0..12) low byte of the packed UCS-2 name units.
func (lfn *longFilenameEntry) charAt(i int) byte { return lfn.data[lfnCharOffsets[i]] }

// setCharAt stores the i'th (0..12) UCS-2 code unit, low byte first. Real
// characters and the 0x0000 terminator have a zero high byte; unused slots
// past the terminator are padded with the unit 0xFFFF, not 0x00FF.
func (lfn *longFilenameEntry) setCharAt(i int, unit uint16) {
	off := lfnCharOffsets[i]
	lfn.data[off] = byte(unit)
	lfn.data[off+1] = byte(unit >> 8)
}

package fat

import (
	"encoding/binary"
	"errors"
	"testing"
)

// memDisk is an in-memory [BlockDevice] backed by a sparse sector map, in
// the spirit of the example repos' map-backed block device fakes. Sectors
// are always read and written one at a time, 512 bytes, matching every
// call site in this package.
type memDisk struct {
	sectors map[int64]*[512]byte
}

func newMemDisk() *memDisk {
	return &memDisk{sectors: make(map[int64]*[512]byte)}
}

func (m *memDisk) ReadBlocks(dst []byte, startBlock int64) error {
	if len(dst) != 512 || startBlock < 0 {
		return errors.New("memDisk: bad read")
	}
	sect := m.sectors[startBlock]
	if sect == nil {
		clear(dst)
		return nil
	}
	copy(dst, sect[:])
	return nil
}

func (m *memDisk) WriteBlocks(data []byte, startBlock int64) error {
	if len(data) != 512 || startBlock < 0 {
		return errors.New("memDisk: bad write")
	}
	sect := m.sectors[startBlock]
	if sect == nil {
		sect = new([512]byte)
		m.sectors[startBlock] = sect
	}
	copy(sect[:], data)
	return nil
}

// fat32Image describes the geometry baked into a test volume by
// [newFAT32Image].
type fat32Image struct {
	reservedSect uint16
	fatSize      uint32
	numFATs      uint8
	sectPerClust uint8
	clustCnt     uint32
	rootClust    uint32
	dataSect     uint32
	totalSect    uint32
}

// newFAT32Image builds a minimal but spec-valid FAT32 volume directly onto
// a fresh [memDisk], the way a real formatting tool would lay one down, and
// returns both the device and the geometry used so tests can reach into the
// FAT or root directory directly when needed.
//
// clustCnt must be at least 65525, the FAT32 spec's minimum cluster count;
// tests that don't care about exercising a big allocator pass exactly that.
func newFAT32Image(clustCnt uint32) (*memDisk, fat32Image) {
	if clustCnt < 65525 {
		clustCnt = 65525
	}
	img := fat32Image{
		reservedSect: 32,
		numFATs:      2,
		sectPerClust: 1,
		clustCnt:     clustCnt,
		rootClust:    2,
	}
	img.fatSize = (clustCnt*4 + 511) / 512
	img.dataSect = uint32(img.reservedSect) + img.fatSize*uint32(img.numFATs)
	img.totalSect = img.dataSect + clustCnt*uint32(img.sectPerClust)

	dev := newMemDisk()

	var bpb [512]byte
	bpb[bsJmpBoot] = 0xEB
	copy(bpb[bsOEMName:], "TINYFAT ")
	binary.LittleEndian.PutUint16(bpb[bpbBytsPerSec:], 512)
	bpb[bpbSecPerClus] = img.sectPerClust
	binary.LittleEndian.PutUint16(bpb[bpbRsvdSecCnt:], img.reservedSect)
	bpb[bpbNumFATs] = img.numFATs
	binary.LittleEndian.PutUint16(bpb[bpbRootEntCnt:], 0)
	binary.LittleEndian.PutUint16(bpb[bpbTotSec16:], 0)
	bpb[bpbMedia] = 0xF8
	binary.LittleEndian.PutUint16(bpb[bpbFATSz16:], 0)
	binary.LittleEndian.PutUint32(bpb[bpbTotSec32:], img.totalSect)
	binary.LittleEndian.PutUint32(bpb[bpbFATSz32:], img.fatSize)
	// Bit 7 set: both FATs are mirrored and live, the common case for a
	// freshly formatted volume.
	binary.LittleEndian.PutUint16(bpb[bpbExtFlags32:], 0x0080)
	binary.LittleEndian.PutUint16(bpb[bpbFSVer32:], 0)
	binary.LittleEndian.PutUint32(bpb[bpbRootClus32:], img.rootClust)
	binary.LittleEndian.PutUint16(bpb[bpbFSInfo32:], 1)
	binary.LittleEndian.PutUint16(bpb[bpbBkBootSec32:], 6)
	bpb[bsDrvNum32] = 0x80
	bpb[bsBootSig32] = 0x29
	binary.LittleEndian.PutUint32(bpb[bsVolID32:], 0xdeadbeef)
	copy(bpb[bsVolLab32:], "NO NAME    ")
	copy(bpb[bsFilSysType32:], "FAT32   ")
	binary.LittleEndian.PutUint16(bpb[bs55AA:], 0xAA55)
	dev.WriteBlocks(bpb[:], 0)

	var fsi [512]byte
	binary.LittleEndian.PutUint32(fsi[fsiLeadSig:], sigFSILead)
	binary.LittleEndian.PutUint32(fsi[fsiStrucSig:], sigFSIStruc)
	binary.LittleEndian.PutUint32(fsi[fsiFree_Count:], clustCnt-1)
	binary.LittleEndian.PutUint32(fsi[fsiNxt_Free:], img.rootClust)
	binary.LittleEndian.PutUint32(fsi[fsiTrailSig:], sigFSITrail)
	dev.WriteBlocks(fsi[:], 1)

	fatSect0 := int64(img.reservedSect)
	var fatHead [512]byte
	binary.LittleEndian.PutUint32(fatHead[0:], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fatHead[4:], 0x0FFFFFFF)
	binary.LittleEndian.PutUint32(fatHead[8:], clustLast) // root dir cluster 2, single-cluster chain.
	dev.WriteBlocks(fatHead[:], fatSect0)
	if img.numFATs == 2 {
		dev.WriteBlocks(fatHead[:], fatSect0+int64(img.fatSize))
	}

	var zero [512]byte
	dev.WriteBlocks(zero[:], int64(img.dataSect)) // root directory cluster, zeroed: empty.

	return dev, img
}

// mountTestFS mounts a freshly built image under name "t".
func mountTestFS(t *testing.T, clustCnt uint32) (*Registry, *FS) {
	t.Helper()
	dev, _ := newFAT32Image(clustCnt)
	var r Registry
	fsys, err := r.Mount("t", dev)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	return &r, fsys
}

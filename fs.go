package fat

import (
	"encoding/binary"
	"io"
	"log/slog"

	"github.com/tinyfs/fat32/internal/mbr"
)

// lba is a disk-absolute logical block (sector) address.
type lba uint32

// BlockDevice is the minimal contract the engine needs from a storage
// medium: read and write exactly one 512-byte sector at a disk-absolute
// logical block address.
type BlockDevice interface {
	ReadBlocks(dst []byte, startBlock int64) error
	WriteBlocks(data []byte, startBlock int64) error
}

// FS is a mounted FAT32 volume. The zero value is not mounted; use
// [Registry.Mount] to obtain a usable *FS. An FS performs no locking;
// concurrent use of one volume must be serialized by the caller.
type FS struct {
	next *FS // intrusive link used by Registry, mirrors the C original's fat_t.next.
	name string

	dev BlockDevice
	ts  TimestampProvider
	log *slog.Logger

	readOnly  bool
	partition int

	sectPerClust uint8
	clustCnt     uint32
	rootClust    uint32
	fatSect      [2]lba // fatSect[1] == 0 means single FAT, no mirror.
	fatSize      uint32 // sectors per FAT.
	dataSect     lba
	infoSect     lba

	freeCnt   uint32
	lastClust uint32
	fsiDirty  bool

	winSect  lba
	win      [512]byte
	winDirty bool
}

// MountOption configures [Registry.Mount].
type MountOption func(*FS)

// WithTimestampProvider overrides the clock used for new directory entries.
func WithTimestampProvider(p TimestampProvider) MountOption {
	return func(fsys *FS) { fsys.ts = p }
}

// WithLogger attaches a structured logger. Block-device read and write
// failures are logged at Error level and window moves at Debug level; by
// default logging is a no-op.
func WithLogger(l *slog.Logger) MountOption {
	return func(fsys *FS) { fsys.log = l }
}

// ReadOnly mounts the volume without permitting mutating operations.
func ReadOnly() MountOption {
	return func(fsys *FS) { fsys.readOnly = true }
}

// WithPartition selects which MBR partition table entry to probe for a
// FAT32 BPB. When LBA 0 already holds a FAT32 BPB (a superfloppy /
// unpartitioned image) only the default, 0, is accepted and names the
// device itself; otherwise 0 through 3 index the four-slot MBR partition
// table. See [Probe].
func WithPartition(n int) MountOption {
	return func(fsys *FS) { fsys.partition = n }
}

// Registry is a list of mounted volumes, addressed by name. The zero value
// is an empty registry ready to use.
type Registry struct {
	head *FS
}

// DefaultRegistry is a process-wide registry, mirroring the single global
// mount list of the original engine, for callers that don't need isolated
// registries.
var DefaultRegistry Registry

// Mount probes the block device for a FAT32 filesystem and links it into
// the registry under name. name is later used as the first path component
// of any absolute path passed to [Registry.Open] and friends.
func (r *Registry) Mount(name string, dev BlockDevice, opts ...MountOption) (*FS, error) {
	if dev == nil || len(name) == 0 || len(name) > 31 {
		return nil, ErrParam
	}
	fsys := &FS{
		dev: dev,
		ts:  DefaultTimestampProvider,
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(fsys)
	}
	fsys.winSect = badLBA
	bpbLBA, err := Probe(dev, fsys.partition)
	if err != nil {
		return nil, err
	}
	if err := fsys.loadBPB(bpbLBA); err != nil {
		return nil, err
	}
	fsys.name = name
	fsys.next = r.head
	r.head = fsys
	return fsys, nil
}

// Unmount removes fsys from the registry and flushes any pending writes.
func (r *Registry) Unmount(fsys *FS) error {
	if fsys == nil {
		return ErrParam
	}
	var prev *FS
	cur := r.head
	for cur != nil {
		if cur == fsys {
			if prev == nil {
				r.head = cur.next
			} else {
				prev.next = cur.next
			}
			return fsys.syncFS()
		}
		prev = cur
		cur = cur.next
	}
	return ErrParam
}

// byName returns the most-recently-mounted volume registered under name.
func (r *Registry) byName(name string) *FS {
	for cur := r.head; cur != nil; cur = cur.next {
		if cur.name == name {
			return cur
		}
	}
	return nil
}

// Probe inspects dev for a FAT32 BPB and returns the disk-absolute LBA at
// which one was found, either at LBA 0 directly (superfloppy / unpartitioned
// media, selected by partition == 0) or inside the given entry of the MBR
// partition table at LBA 0 (partition in [0,3], an index into that table).
// GPT is out of scope: no component here consumes it.
func Probe(dev BlockDevice, partition int) (bpbLBA lba, err error) {
	var buf [512]byte
	if err := dev.ReadBlocks(buf[:], 0); err != nil {
		return 0, wrapIO(err)
	}
	bpb := biosParamBlock{data: buf[:]}
	if looksLikeBPB(&bpb) {
		if partition != 0 {
			return 0, ErrNoFAT
		}
		return 0, nil
	}
	if binary.LittleEndian.Uint16(buf[offsetMBRBootSig:]) != mbr.BootSignature {
		return 0, ErrNoFAT
	}
	if partition < 0 || partition > 3 {
		return 0, ErrNoFAT
	}
	boot, err := mbr.ToBootSector(buf[:])
	if err != nil {
		return 0, ErrNoFAT
	}
	pte := boot.PartitionTable(partition)
	if pte.PartitionType() != mbr.PartitionTypeFAT32LBA && pte.PartitionType() != mbr.PartitionTypeFAT32CHS {
		return 0, ErrNoFAT
	}
	start := lba(pte.StartLBA())
	var pbuf [512]byte
	if err := dev.ReadBlocks(pbuf[:], int64(start)); err != nil {
		return 0, wrapIO(err)
	}
	pbpb := biosParamBlock{data: pbuf[:]}
	if !looksLikeBPB(&pbpb) {
		return 0, ErrNoFAT
	}
	return start, nil
}

func looksLikeBPB(bs *biosParamBlock) bool {
	jmp := bs.JumpByte()
	if jmp != 0xEB && jmp != 0xE9 {
		return false
	}
	if bs.NumberOfFATs() != 2 {
		return false
	}
	if bs.RootEntryCount() != 0 || bs.TotalSectors16or0() {
		return false
	}
	if binary.LittleEndian.Uint16(bs.data[bpbFATSz16:]) != 0 || bs.FSInfoSector() != 1 {
		return false
	}
	ft := bs.FilesystemType()
	if string(ft[:]) != "FAT32   " {
		return false
	}
	if bs.SectorSize() != 512 {
		return false
	}
	spc := bs.SectorsPerCluster()
	if spc == 0 || spc&(spc-1) != 0 {
		return false
	}
	return true
}

// TotalSectors16or0 reports whether the legacy 16-bit total-sectors field is
// nonzero, which would indicate a pre-FAT32 volume.
func (bs *biosParamBlock) TotalSectors16or0() bool {
	return binary.LittleEndian.Uint16(bs.data[bpbTotSec16:]) != 0
}

func (fsys *FS) loadBPB(bpbLBA lba) error {
	if err := fsys.moveWindow(bpbLBA); err != nil {
		return err
	}
	bpb := biosParamBlock{data: fsys.win[:]}
	if bpb.FSVersion() != 0 {
		return ErrNoFAT
	}
	resv := lba(bpb.ReservedSectors())
	fatSize := bpb.SectorsPerFAT()
	numFATs := bpb.NumberOfFATs()
	extFlags := bpb.ExtFlags()

	fsys.sectPerClust = bpb.SectorsPerCluster()
	fsys.fatSize = fatSize
	firstFAT := lba(0)
	if numFATs == 2 && extFlags&0x80 == 0 {
		// Mirroring disabled: only one FAT is active, named by the low
		// nibble of ext_flags. Only 0 and 1 are honored; anything else
		// falls back to FAT 0.
		if extFlags&0x000F == 1 {
			firstFAT = 1
		}
	}
	fsys.fatSect[0] = bpbLBA + resv + lba(fatSize)*firstFAT
	if numFATs == 2 && extFlags&0x80 != 0 {
		other := lba(1) - firstFAT
		fsys.fatSect[1] = bpbLBA + resv + lba(fatSize)*other
	}
	fsys.dataSect = bpbLBA + resv + lba(fatSize)*lba(numFATs)
	fsys.rootClust = bpb.RootCluster()

	total := bpb.TotalSectors()
	dataSectors := total - (uint32(resv) + fatSize*uint32(numFATs))
	fsys.clustCnt = dataSectors / uint32(fsys.sectPerClust)
	if fsys.clustCnt < 65525 {
		return ErrNoFAT
	}

	info := bpb.FSInfoSector()
	fsys.freeCnt = 0xFFFFFFFF
	fsys.lastClust = 0xFFFFFFFF
	if info == 1 {
		fsys.infoSect = bpbLBA + lba(info)
		if err := fsys.moveWindow(fsys.infoSect); err != nil {
			return err
		}
		fsi := fsinfoSector{data: fsys.win[:]}
		lead, struc, trail := fsi.Signatures()
		if lead != sigFSILead || struc != sigFSIStruc || trail != sigFSITrail {
			return ErrNoFAT
		}
		fsys.freeCnt = fsi.FreeClusterCount()
		fsys.lastClust = fsi.NextFree()
	}
	return nil
}

// moveWindow ensures fsys.win caches sector, flushing any dirty contents
// of the previously cached sector first.
func (fsys *FS) moveWindow(sector lba) error {
	if sector == fsys.winSect {
		return nil
	}
	if err := fsys.syncWindow(); err != nil {
		return err
	}
	if err := fsys.dev.ReadBlocks(fsys.win[:], int64(sector)); err != nil {
		fsys.winSect = badLBA
		fsys.log.Error("moveWindow: read failed", slog.Uint64("sector", uint64(sector)), slog.Any("err", err))
		return wrapIO(err)
	}
	fsys.winSect = sector
	fsys.log.Debug("moveWindow", slog.Uint64("sector", uint64(sector)))
	return nil
}

// syncWindow flushes the current window to disk if dirty, mirroring the
// write to the second FAT copy when the sector belongs to the first FAT.
func (fsys *FS) syncWindow() error {
	if !fsys.winDirty {
		return nil
	}
	if err := fsys.dev.WriteBlocks(fsys.win[:], int64(fsys.winSect)); err != nil {
		fsys.log.Error("syncWindow: write failed", slog.Uint64("sector", uint64(fsys.winSect)), slog.Any("err", err))
		return wrapIO(err)
	}
	if fsys.fatSect[1] != 0 && fsys.winSect >= fsys.fatSect[0] && fsys.winSect < fsys.fatSect[0]+lba(fsys.fatSize) {
		mirror := fsys.fatSect[1] + (fsys.winSect - fsys.fatSect[0])
		if err := fsys.dev.WriteBlocks(fsys.win[:], int64(mirror)); err != nil {
			fsys.log.Error("syncWindow: mirror write failed", slog.Any("err", err))
			return wrapIO(err)
		}
	}
	fsys.winDirty = false
	return nil
}

func (fsys *FS) markWindowDirty() { fsys.winDirty = true }

// syncFS flushes the window and, if free-cluster bookkeeping changed,
// patches and flushes the FSInfo sector.
func (fsys *FS) syncFS() error {
	if err := fsys.syncWindow(); err != nil {
		return err
	}
	if !fsys.fsiDirty || fsys.infoSect == 0 {
		return nil
	}
	if err := fsys.moveWindow(fsys.infoSect); err != nil {
		return err
	}
	fsi := fsinfoSector{data: fsys.win[:]}
	fsi.SetFreeClusterCount(fsys.freeCnt)
	fsi.SetNextFree(fsys.lastClust)
	fsys.markWindowDirty()
	if err := fsys.syncWindow(); err != nil {
		return err
	}
	fsys.fsiDirty = false
	return nil
}

// clustToSect converts a cluster number to its first disk-absolute sector.
func (fsys *FS) clustToSect(c uint32) lba {
	if c < 2 {
		return 0
	}
	return fsys.dataSect + lba(fsys.sectPerClust)*lba(c-2)
}

// bytesPerClust returns the number of bytes held by a single cluster.
func (fsys *FS) bytesPerClust() uint32 { return uint32(fsys.sectPerClust) * 512 }

// clustClear zeroes every sector of cluster c through the window.
func (fsys *FS) clustClear(c uint32) error {
	sect := fsys.clustToSect(c)
	for i := uint8(0); i < fsys.sectPerClust; i++ {
		if err := fsys.moveWindow(sect + lba(i)); err != nil {
			return err
		}
		clear(fsys.win[:])
		fsys.markWindowDirty()
		if err := fsys.syncWindow(); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the name this volume was mounted under.
func (fsys *FS) Name() string { return fsys.name }

// Sync flushes all pending writes for the volume.
func (fsys *FS) Sync() error { return fsys.syncFS() }

package fat

import "io"

// OpenMode controls how [Registry.Open] treats an existing or missing file.
type OpenMode uint8

const (
	ModeRead OpenMode = 1 << iota
	ModeWrite
	ModeCreate // create the file if it does not exist
	ModeTrunc  // truncate an existing file to zero length
	ModeAppend // seek to end-of-file immediately after opening

	modeRW = ModeRead | ModeWrite
)

// File is an open regular file. It implements [io.Reader], [io.Writer],
// [io.Seeker] and [io.Closer]. The zero value is not usable. A File performs
// no locking; concurrent use of one handle must be serialized by the caller.
type File struct {
	fsys  *FS
	flags OpenMode

	parentDir Dir
	sfnSect   lba
	sfnIdx    uint16

	startClust uint32
	clust      uint32
	sect       lba
	offset     uint32
	size       uint32
	attr       byte

	buf      [512]byte
	bufSect  lba
	bufDirty bool
	bufValid bool

	modified bool
	accessed bool

	closed bool
}

// Open resolves path (volume-name-prefixed absolute path) and opens it
// according to flags.
func (r *Registry) Open(path string, flags OpenMode) (*File, error) {
	if flags&modeRW == 0 {
		return nil, ErrParam
	}
	fsys, dir, leaf, entry, found, err := r.followPath(path)
	if err != nil {
		return nil, err
	}
	if leaf == "" {
		return nil, ErrPath
	}
	if !found {
		if flags&ModeCreate == 0 {
			return nil, ErrDenied
		}
		if fsys.readOnly || flags&ModeWrite == 0 {
			return nil, ErrDenied
		}
		clust, err := fsys.createChain()
		if err != nil {
			return nil, err
		}
		entry, err = dirAdd(&dir, leaf, attrArchive, clust, fsys.ts.Now())
		if err != nil {
			return nil, err
		}
	} else {
		if entry.Attr&attrDir != 0 {
			return nil, ErrDenied
		}
		if entry.Attr&(attrReadOnly|attrSystem) != 0 && flags&ModeWrite != 0 {
			return nil, ErrDenied
		}
	}

	f := &File{
		fsys:       fsys,
		flags:      flags,
		parentDir:  dir,
		sfnSect:    entry.sfnSect,
		sfnIdx:     entry.sfnIdx,
		startClust: entry.FirstClust,
		clust:      entry.FirstClust,
		size:       entry.Size,
		attr:       entry.Attr,
	}
	if flags&ModeTrunc != 0 && found {
		if f.startClust != 0 {
			if err := fsys.removeChain(f.startClust); err != nil {
				return nil, err
			}
		}
		clust, err := fsys.createChain()
		if err != nil {
			return nil, err
		}
		f.startClust, f.clust, f.size = clust, clust, 0
		f.modified = true
	}
	f.sect = fsys.clustToSect(f.startClust)
	if flags&ModeAppend != 0 {
		if _, err := f.Seek(int64(f.size), io.SeekStart); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// bytesPerClust for the file's volume.
func (f *File) bytesPerClust() uint32 { return f.fsys.bytesPerClust() }

// seatBuffer ensures f.buf holds the sector at f.sect, flushing a dirty
// buffer for the previous sector first.
func (f *File) seatBuffer() error {
	if f.bufValid && f.bufSect == f.sect {
		return nil
	}
	if err := f.flushBuffer(); err != nil {
		return err
	}
	if err := f.fsys.dev.ReadBlocks(f.buf[:], int64(f.sect)); err != nil {
		return wrapIO(err)
	}
	f.bufSect = f.sect
	f.bufValid = true
	return nil
}

func (f *File) flushBuffer() error {
	if !f.bufDirty {
		return nil
	}
	if err := f.fsys.dev.WriteBlocks(f.buf[:], int64(f.bufSect)); err != nil {
		return wrapIO(err)
	}
	f.bufDirty = false
	return nil
}

// Read implements [io.Reader].
func (f *File) Read(p []byte) (int, error) {
	if f.closed {
		return 0, ErrParam
	}
	if f.flags&ModeRead == 0 {
		return 0, ErrDenied
	}
	if f.offset >= f.size || len(p) == 0 {
		return 0, io.EOF
	}
	total := 0
	for total < len(p) && f.offset < f.size {
		if err := f.seatBuffer(); err != nil {
			return total, err
		}
		within := int(f.offset % 512)
		n := copy(p[total:], f.buf[within:])
		remain := int(f.size - f.offset)
		if n > remain {
			n = remain
		}
		total += n
		if err := f.advance(uint32(n)); err != nil {
			return total, err
		}
	}
	f.accessed = true
	return total, nil
}

// Write implements [io.Writer].
func (f *File) Write(p []byte) (int, error) {
	if f.closed {
		return 0, ErrParam
	}
	if f.flags&ModeWrite == 0 {
		return 0, ErrDenied
	}
	total := 0
	for total < len(p) {
		if err := f.seatBuffer(); err != nil {
			return total, err
		}
		within := int(f.offset % 512)
		n := copy(f.buf[within:], p[total:])
		f.bufDirty = true
		total += n
		grown := f.offset+uint32(n) > f.size
		if err := f.advance(uint32(n)); err != nil {
			return total, err
		}
		if grown {
			f.size = f.offset
		}
	}
	f.modified, f.accessed = true, true
	return total, nil
}

func (f *File) extend() error {
	newClust, err := f.fsys.stretchChain(f.clust)
	if err != nil {
		return err
	}
	f.clust = newClust
	f.sect = f.fsys.clustToSect(newClust)
	f.bufValid = false
	return nil
}

// advance moves the cursor forward n bytes within the current sector,
// crossing sector and cluster boundaries (allocating on write) as needed.
func (f *File) advance(n uint32) error {
	newOff := f.offset + n
	crossedSector := newOff/512 != f.offset/512
	f.offset = newOff
	if !crossedSector {
		return nil
	}
	if err := f.flushBuffer(); err != nil {
		return err
	}
	f.bufValid = false
	if f.offset%f.bytesPerClust() == 0 && f.offset > 0 {
		next, kind, err := f.fsys.getFAT(f.clust)
		if err != nil {
			return err
		}
		switch kind {
		case clusterUsed:
			f.clust = next
			f.sect = f.fsys.clustToSect(f.clust)
		case clusterLast:
			if f.flags&ModeWrite != 0 {
				if err := f.extend(); err != nil {
					return err
				}
			}
			// Without ModeWrite the cursor stays on the last cluster; this
			// is only reached when f.offset has hit f.size, so Read's loop
			// stops on its next check.
		default:
			return ErrBroken
		}
	} else {
		f.sect++
	}
	return nil
}

// Seek implements [io.Seeker]. Forward seeks beyond the current cluster
// chain allocate new clusters without zeroing the intervening bytes; on a
// handle opened without ModeWrite such a seek returns io.EOF instead.
// Offsets outside [0, 2^32) return ErrParam.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, ErrParam
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(f.offset) + offset
	case io.SeekEnd:
		abs = int64(f.size) + offset
	default:
		return 0, ErrParam
	}
	if abs < 0 || abs > 0xFFFFFFFF {
		return 0, ErrParam
	}
	target := uint32(abs)
	bpc := f.bytesPerClust()
	dstClustIdx := target / bpc
	srcClustIdx := f.offset / bpc
	if f.offset == 0 {
		srcClustIdx = 0
	}
	clust := f.clust
	if dstClustIdx < srcClustIdx || f.offset == 0 {
		clust = f.startClust
		srcClustIdx = 0
	}
	for srcClustIdx < dstClustIdx {
		next, kind, err := f.fsys.getFAT(clust)
		if err != nil {
			return 0, err
		}
		switch kind {
		case clusterUsed:
			clust = next
		case clusterLast:
			if f.flags&ModeWrite == 0 {
				return 0, io.EOF
			}
			nc, err := f.fsys.stretchChain(clust)
			if err != nil {
				return 0, err
			}
			clust = nc
		default:
			return 0, ErrBroken
		}
		srcClustIdx++
	}
	newSect := f.fsys.clustToSect(clust) + lba((target/512)&uint32(f.fsys.sectPerClust-1))
	if newSect != f.sect {
		if err := f.flushBuffer(); err != nil {
			return 0, err
		}
		f.bufValid = false
	}
	f.clust = clust
	f.sect = newSect
	f.offset = target
	return abs, nil
}

// Sync flushes buffered writes and, if the file was modified or accessed,
// updates its parent directory entry.
func (f *File) Sync() error {
	if err := f.flushBuffer(); err != nil {
		return err
	}
	if !f.modified && !f.accessed {
		return nil
	}
	if err := f.fsys.moveWindow(f.sfnSect); err != nil {
		return err
	}
	off := int(f.sfnIdx) * sizeDirEntry
	ds := dirSector{data: f.fsys.win[off : off+sizeDirEntry]}
	now := newDatetime(f.fsys.ts.Now())
	ds.setAccessedDate(now.date)
	if f.modified {
		ds.setModifiedAt(now)
		ds.setSize(f.size)
		ds.setCluster(f.startClust)
		ds.setAttributes(f.attr | attrArchive)
	}
	f.fsys.markWindowDirty()
	if err := f.fsys.syncFS(); err != nil {
		return err
	}
	f.modified, f.accessed = false, false
	return nil
}

// Close flushes the file and invalidates the handle.
func (f *File) Close() error {
	if f.closed {
		return ErrParam
	}
	err := f.Sync()
	f.closed = true
	return err
}

// Size returns the file's current length in bytes.
func (f *File) Size() int64 { return int64(f.size) }

// IsDir reports whether the underlying directory entry is a subdirectory.
func (f *File) IsDir() bool { return f.attr&attrDir != 0 }

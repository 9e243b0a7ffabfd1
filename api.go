package fat

import (
	"io"
	"io/fs"
	"time"
)

// FileInfo adapts a decoded directory entry to [fs.FileInfo].
type FileInfo struct {
	entry DirEntry
}

func (fi FileInfo) Name() string { return fi.entry.Name }
func (fi FileInfo) Size() int64  { return int64(fi.entry.Size) }
func (fi FileInfo) ModTime() time.Time {
	return fi.entry.Modified.Time()
}
func (fi FileInfo) IsDir() bool { return fi.entry.IsDir() }
func (fi FileInfo) Sys() any    { return fi.entry }
func (fi FileInfo) Mode() fs.FileMode {
	var m fs.FileMode
	if fi.entry.IsDir() {
		m |= fs.ModeDir
	}
	if fi.entry.Attr&attrReadOnly != 0 {
		m |= 0444
	} else {
		m |= 0644
	}
	if fi.IsDir() {
		m |= 0111
	}
	return m
}

// Stat resolves path and returns information about it.
func (r *Registry) Stat(path string) (FileInfo, error) {
	_, _, _, entry, found, err := r.followPath(path)
	if err != nil {
		return FileInfo{}, err
	}
	if !found {
		return FileInfo{}, ErrPath
	}
	return FileInfo{entry: entry}, nil
}

// Mkdir creates a new, empty directory at path.
func (r *Registry) Mkdir(path string) error {
	fsys, dir, leaf, _, found, err := r.followPath(path)
	if err != nil {
		return err
	}
	if leaf == "" {
		return ErrPath
	}
	if found {
		return ErrDenied
	}
	if fsys.readOnly {
		return ErrDenied
	}
	clust, err := fsys.createChain()
	if err != nil {
		return err
	}
	if err := fsys.clustClear(clust); err != nil {
		return err
	}
	now := fsys.ts.Now()
	if err := writeDotEntries(fsys, clust, dir.startClust, now); err != nil {
		return err
	}
	if _, err := dirAdd(&dir, leaf, attrDir, clust, now); err != nil {
		return err
	}
	return fsys.syncFS()
}

// OpenDir opens path, which must name an existing directory, for listing.
// A bare "/volname" path opens that volume's root directory.
func (r *Registry) OpenDir(path string) (*Dir, error) {
	fsys, _, leaf, entry, found, err := r.followPath(path)
	if err != nil {
		return nil, err
	}
	var clust uint32
	switch {
	case !found && leaf == "":
		clust = fsys.rootClust
	case !found:
		return nil, ErrPath
	default:
		if entry.Attr&attrDir == 0 {
			return nil, ErrDenied
		}
		clust = entry.FirstClust
	}
	d := dirAtClust(fsys, clust)
	return &d, nil
}

// Next advances the cursor by one 32-byte slot without decoding.
func (d *Dir) Next() error { return d.next() }

// Read decodes whatever entry group the cursor currently points at
// (an LFN group plus its SFN, or a bare SFN), skipping deleted slots.
// It returns io.EOF at the end of the directory.
func (d *Dir) Read() (FileInfo, error) {
	for {
		ds, err := d.ptr()
		if err != nil {
			return FileInfo{}, err
		}
		if ds.isFree() {
			return FileInfo{}, io.EOF
		}
		if ds.isDeleted() {
			if err := d.next(); err != nil {
				return FileInfo{}, err
			}
			continue
		}
		if ds.isLFN() {
			e, err := readLFNGroup(d)
			if err != nil {
				return FileInfo{}, err
			}
			if err := d.next(); err != nil && err != io.EOF {
				return FileInfo{}, err
			}
			return FileInfo{entry: e}, nil
		}
		name := decodeSFN(ds.shortName())
		e := sfnToEntry(&ds, name, d.sect, d.idx)
		if err := d.next(); err != nil && err != io.EOF {
			return FileInfo{}, err
		}
		return FileInfo{entry: e}, nil
	}
}

// ForEach calls fn for every live entry in the directory, in on-disk order,
// stopping early if fn returns an error.
func (d *Dir) ForEach(fn func(FileInfo) error) error {
	d.Rewind()
	for {
		fi, err := d.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(fi); err != nil {
			return err
		}
	}
}

// Unlink removes the file or empty directory at path.
func (r *Registry) Unlink(path string) error {
	fsys, dir, _, entry, found, err := r.followPath(path)
	if err != nil {
		return err
	}
	if !found {
		return ErrPath
	}
	if fsys.readOnly {
		return ErrDenied
	}
	if entry.Attr&(attrReadOnly|attrSystem|attrLabel) != 0 {
		return ErrDenied
	}
	if entry.Attr&attrDir != 0 {
		if entry.FirstClust == fsys.rootClust {
			return ErrDenied
		}
		sub := dirAtClust(fsys, entry.FirstClust)
		// Skip "." and "..".
		if err := sub.next(); err != nil && err != io.EOF {
			return err
		}
		if err := sub.next(); err != nil && err != io.EOF {
			return err
		}
		for {
			ds, err := sub.ptr()
			if err != nil {
				return err
			}
			if ds.isFree() {
				break
			}
			if !ds.isDeleted() {
				return ErrDenied
			}
			if err := sub.next(); err != nil {
				if err == io.EOF {
					break
				}
				return err
			}
		}
	}
	if entry.FirstClust != 0 {
		if err := fsys.removeChain(entry.FirstClust); err != nil {
			return err
		}
	}
	if err := removeEntries(fsys, dir, entry); err != nil {
		return err
	}
	return fsys.syncFS()
}

package fat

// clusterKind classifies the value of a FAT entry.
type clusterKind uint8

const (
	clusterFree clusterKind = iota
	clusterUsed
	clusterLast
	clusterBad
)

// getFAT reads the FAT entry for cluster c and classifies it.
func (fsys *FS) getFAT(c uint32) (next uint32, kind clusterKind, err error) {
	if c < 2 || c >= fsys.clustCnt+2 {
		return 0, clusterBad, ErrBroken
	}
	sect := fsys.fatSect[0] + lba(c/128)
	if err := fsys.moveWindow(sect); err != nil {
		return 0, clusterBad, err
	}
	fs := fat32Sector{data: fsys.win[:]}
	v := fs.Entry(int(c % 128)).cluster()
	switch {
	case v == clustFree:
		return 0, clusterFree, nil
	case v == clustBad:
		return 0, clusterBad, nil
	case v >= clustLastMin:
		return 0, clusterLast, nil
	case v >= 2 && v < fsys.clustCnt+2:
		return v, clusterUsed, nil
	default:
		return 0, clusterBad, ErrBroken
	}
}

// putFAT writes v into the FAT entry for cluster c, preserving the upper
// four reserved bits of the existing entry.
func (fsys *FS) putFAT(c, v uint32) error {
	if c < 2 || c >= fsys.clustCnt+2 {
		return ErrBroken
	}
	sect := fsys.fatSect[0] + lba(c/128)
	if err := fsys.moveWindow(sect); err != nil {
		return err
	}
	fs := fat32Sector{data: fsys.win[:]}
	idx := int(c % 128)
	old := fs.Entry(idx)
	newEntry := entry((v & mask28bits) | (uint32(old) &^ mask28bits))
	fs.SetEntry(idx, newEntry)
	fsys.markWindowDirty()
	return nil
}

// stretchChain allocates a free cluster and links it after prev (0 to
// start a fresh chain), returning the newly allocated cluster number.
func (fsys *FS) stretchChain(prev uint32) (uint32, error) {
	if fsys.readOnly {
		return 0, ErrDenied
	}
	candidate := uint32(0)
	if prev != 0 {
		n := prev + 1
		if n >= fsys.clustCnt+2 {
			n = 2
		}
		_, kind, err := fsys.getFAT(n)
		if err != nil {
			return 0, err
		}
		if kind == clusterFree {
			candidate = n
		}
	}
	if candidate == 0 {
		start := fsys.lastClust + 1
		if start < 2 || start >= fsys.clustCnt+2 {
			start = 2
		}
		c := start
		for {
			_, kind, err := fsys.getFAT(c)
			if err != nil {
				return 0, err
			}
			if kind == clusterFree {
				candidate = c
				break
			}
			c++
			if c >= fsys.clustCnt+2 {
				c = 2
			}
			if c == start {
				return 0, ErrFull
			}
		}
	}
	if err := fsys.putFAT(candidate, clustLast); err != nil {
		return 0, err
	}
	if prev != 0 {
		if err := fsys.putFAT(prev, candidate); err != nil {
			return 0, err
		}
	}
	if fsys.freeCnt != 0xFFFFFFFF && fsys.freeCnt > 0 {
		fsys.freeCnt--
	}
	fsys.lastClust = candidate
	fsys.fsiDirty = true
	if err := fsys.syncFS(); err != nil {
		return 0, err
	}
	return candidate, nil
}

// createChain allocates a brand new one-cluster chain.
func (fsys *FS) createChain() (uint32, error) { return fsys.stretchChain(0) }

// removeChain frees every cluster in the chain starting at head.
func (fsys *FS) removeChain(head uint32) error {
	if fsys.readOnly {
		return ErrDenied
	}
	c := head
	for c != 0 {
		next, kind, err := fsys.getFAT(c)
		if err != nil {
			return err
		}
		if kind == clusterFree || kind == clusterBad {
			return ErrBroken
		}
		if err := fsys.putFAT(c, clustFree); err != nil {
			return err
		}
		if fsys.freeCnt != 0xFFFFFFFF {
			fsys.freeCnt++
		}
		if kind == clusterLast {
			break
		}
		c = next
	}
	fsys.fsiDirty = true
	return fsys.syncFS()
}

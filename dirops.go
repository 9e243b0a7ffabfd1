package fat

import (
	"encoding/binary"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tinyfs/fat32/internal/utf16x"
)

var sfnCaser = cases.Upper(language.Und)

// Dir is a cursor over the 32-byte slots of one directory's cluster chain.
// The zero value is not usable; obtain one via [Registry.OpenDir] or
// internal path resolution.
type Dir struct {
	fsys       *FS
	startClust uint32
	clust      uint32
	sect       lba
	idx        uint16
}

// DirEntry describes one decoded directory member.
type DirEntry struct {
	Name       string
	Attr       byte
	Size       uint32
	FirstClust uint32
	Created    Timestamp
	Modified   Timestamp

	sfnSect lba
	sfnIdx  uint16
}

func (e *DirEntry) IsDir() bool { return e.Attr&attrDir != 0 }

func dirAtClust(fsys *FS, startClust uint32) Dir {
	d := Dir{fsys: fsys, startClust: startClust}
	d.rewind()
	return d
}

func dirAtRoot(fsys *FS) Dir { return dirAtClust(fsys, fsys.rootClust) }

func (d *Dir) rewind() {
	d.clust = d.startClust
	d.sect = d.fsys.clustToSect(d.startClust)
	d.idx = 0
}

// Rewind re-seats the cursor at the start of the directory.
func (d *Dir) Rewind() { d.rewind() }

const slotsPerSector = 512 / sizeDirEntry

// next advances the cursor by one 32-byte slot, following the cluster
// chain. Returns io.EOF at the end of the last allocated cluster.
func (d *Dir) next() error {
	d.idx++
	if d.idx < slotsPerSector {
		return nil
	}
	d.idx = 0
	d.sect++
	if d.sect < d.fsys.clustToSect(d.clust)+lba(d.fsys.sectPerClust) {
		return nil
	}
	next, kind, err := d.fsys.getFAT(d.clust)
	if err != nil {
		return err
	}
	if kind == clusterLast {
		return io.EOF
	}
	if kind != clusterUsed {
		return ErrBroken
	}
	d.clust = next
	d.sect = d.fsys.clustToSect(d.clust)
	return nil
}

// nextStretch behaves like next but allocates and zeroes a new cluster
// instead of returning io.EOF, used while inserting new entries.
func (d *Dir) nextStretch() error {
	err := d.next()
	if err != io.EOF {
		return err
	}
	newClust, err := d.fsys.stretchChain(d.clust)
	if err != nil {
		return err
	}
	if err := d.fsys.clustClear(newClust); err != nil {
		return err
	}
	d.clust = newClust
	d.sect = d.fsys.clustToSect(newClust)
	d.idx = 0
	return nil
}

// ptr loads the current sector into the window and returns an accessor
// over the current 32-byte slot.
func (d *Dir) ptr() (dirSector, error) {
	if err := d.fsys.moveWindow(d.sect); err != nil {
		return dirSector{}, err
	}
	off := int(d.idx) * sizeDirEntry
	return dirSector{data: d.fsys.win[off : off+sizeDirEntry]}, nil
}

func (d *Dir) lfnPtr() (longFilenameEntry, error) {
	ds, err := d.ptr()
	if err != nil {
		return longFilenameEntry{}, err
	}
	return longFilenameEntry{data: ds.data}, nil
}

// sfnChecksum computes the LFN checksum of an 11-byte short name.
func sfnChecksum(short [11]byte) byte {
	var sum byte
	for _, b := range short {
		sum = ((sum & 1) << 7) + (sum >> 1) + b
	}
	return sum
}

const sfnAllowed = "!#$%&'()-0123456789@^_`{}~ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func isSFNAllowed(c byte) bool { return strings.IndexByte(sfnAllowed, c) >= 0 }

// encodeSFN renders name as an 11-byte 8.3 short name, uppercased and with
// disallowed characters replaced by '_'.
func encodeSFN(name string) (short [11]byte, err error) {
	if name == "" || name == "." || name == ".." {
		if name == "." {
			copy(short[:], ".          "[:11])
			return short, nil
		}
		if name == ".." {
			copy(short[:], "..         "[:11])
			return short, nil
		}
		return short, ErrParam
	}
	upper := sfnCaser.String(name)
	base, ext := upper, ""
	if i := strings.LastIndexByte(upper, '.'); i > 0 {
		base, ext = upper[:i], upper[i+1:]
	}
	for i := 0; i < 8; i++ {
		short[i] = sfnPad
	}
	for i := 8; i < 11; i++ {
		short[i] = sfnPad
	}
	n := 0
	for i := 0; i < len(base) && n < 8; i++ {
		c := base[i]
		if c > 0x7f || !isSFNAllowed(c) {
			c = '_'
		}
		short[n] = c
		n++
	}
	n = 0
	for i := 0; i < len(ext) && n < 3; i++ {
		c := ext[i]
		if c > 0x7f || !isSFNAllowed(c) {
			c = '_'
		}
		short[8+n] = c
		n++
	}
	return short, nil
}

// decodeSFN renders an 11-byte short name back into "BASE.EXT" form.
func decodeSFN(short [11]byte) string {
	base := strings.TrimRight(string(short[:8]), " ")
	ext := strings.TrimRight(string(short[8:11]), " ")
	if base == "." && ext == "" {
		return "."
	}
	if base == ".." && ext == "" {
		return ".."
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

func eqFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'a' <= ca && ca <= 'z' {
			ca -= 'a' - 'A'
		}
		if 'a' <= cb && cb <= 'z' {
			cb -= 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// lfnChunks splits an 8-bit-clean UTF-8 name into 13-unit chunks of packed
// UCS-2 code units, numbered from 1 (first part of the name) upward,
// matching on-disk order. A name whose length isn't a multiple of 13 gets a
// 0x0000 terminator unit right after its last character; every unit past
// that (unused slots in the final LFN entry) is padded with 0xFFFF, per the
// on-disk convention for long filename entries.
func lfnChunks(name string) ([][13]uint16, error) {
	units := make([]byte, 0, len(name))
	for _, r := range name {
		if r > 0xff {
			return nil, ErrParam
		}
		units = append(units, byte(r))
	}
	if len(units) > 255 {
		return nil, ErrParam
	}
	n := (len(units) + 12) / 13
	if n == 0 {
		n = 1
	}
	if n > lfnMaxSlots {
		return nil, ErrParam
	}
	chunks := make([][13]uint16, n)
	for i := range chunks {
		for j := range chunks[i] {
			chunks[i][j] = 0xFFFF
		}
	}
	for i, u := range units {
		chunks[i/13][i%13] = uint16(u)
	}
	if len(units)%13 != 0 {
		chunks[len(units)/13][len(units)%13] = 0x0000
	}
	return chunks, nil
}

// decodeLFNChunks rebuilds the UTF-8 name from on-disk LFN chunks, already
// ordered first-part-first.
func decodeLFNChunks(chunks [][13]byte) string {
	var ucs []byte
	for _, c := range chunks {
		for _, lo := range c {
			if lo == 0 && len(ucs) > 0 {
				goto done
			}
			ucs = append(ucs, lo, 0)
		}
	}
done:
	out := make([]byte, len(ucs)*2+utf8.UTFMax)
	n, err := utf16x.ToUTF8(out, ucs, binary.LittleEndian)
	if err != nil {
		// Fall back to raw low-byte bytes; every unit is <=0xFF by construction.
		raw := make([]byte, 0, len(ucs)/2)
		for i := 0; i < len(ucs); i += 2 {
			raw = append(raw, ucs[i])
		}
		return string(raw)
	}
	return string(out[:n])
}

// dirSearch rewinds dir and scans it from its first slot to the end marker
// looking for an entry named name. LFN names compare byte-exact; bare SFN names compare
// ASCII case-insensitively. Returns io.EOF if not found.
func dirSearch(dir *Dir, name string) (DirEntry, error) {
	dir.rewind()
	for {
		ds, err := dir.ptr()
		if err != nil {
			return DirEntry{}, err
		}
		if ds.isFree() {
			return DirEntry{}, io.EOF
		}
		if ds.isDeleted() {
			if err := dir.next(); err != nil {
				return DirEntry{}, err
			}
			continue
		}
		if ds.isLFN() {
			entry, err := readLFNGroup(dir)
			if err != nil {
				return DirEntry{}, err
			}
			if entry.Name == name {
				return entry, nil
			}
			continue
		}
		short := ds.shortName()
		sfnName := decodeSFN(short)
		entry := sfnToEntry(&ds, sfnName, dir.sect, dir.idx)
		if eqFoldASCII(sfnName, name) {
			return entry, nil
		}
		if err := dir.next(); err != nil {
			return DirEntry{}, err
		}
	}
}

func sfnToEntry(ds *dirSector, name string, sect lba, idx uint16) DirEntry {
	return DirEntry{
		Name:       name,
		Attr:       ds.attributes(),
		Size:       ds.size(),
		FirstClust: ds.cluster(),
		Created:    ds.createdAt().Timestamp(),
		Modified:   ds.modifiedAt().Timestamp(),
		sfnSect:    sect,
		sfnIdx:     idx,
	}
}

// readLFNGroup decodes the LFN group the cursor currently points at
// (positioned on its head slot) together with the owning SFN, leaving the
// cursor positioned on that SFN slot.
func readLFNGroup(dir *Dir) (DirEntry, error) {
	var chunks [][13]byte
	var checksum byte
	first := true
	for {
		lfn, err := dir.lfnPtr()
		if err != nil {
			return DirEntry{}, err
		}
		if lfn.data[ldirAttrOff]&attrLFN != attrLFN {
			return DirEntry{}, ErrBroken
		}
		seq := lfn.seqNum()
		if seq == 0 || int(seq) > lfnMaxSlots {
			return DirEntry{}, ErrBroken
		}
		if first {
			checksum = lfn.checksum()
			// The group's first entry scanning forward is always the one
			// holding the highest chunk index, marked with the head bit.
			if !lfn.isLast() {
				return DirEntry{}, ErrBroken
			}
			first = false
		} else if lfn.checksum() != checksum {
			return DirEntry{}, ErrBroken
		}
		if int(seq) > len(chunks) {
			grown := make([][13]byte, seq)
			copy(grown, chunks)
			chunks = grown
		}
		var c [13]byte
		for i := range c {
			c[i] = lfn.charAt(i)
		}
		chunks[seq-1] = c
		if err := dir.next(); err != nil {
			return DirEntry{}, err
		}
		if seq == 1 {
			break
		}
	}
	ds, err := dir.ptr()
	if err != nil {
		return DirEntry{}, err
	}
	if ds.isFree() || ds.isDeleted() || ds.isLFN() {
		return DirEntry{}, ErrBroken
	}
	short := ds.shortName()
	if sfnChecksum(short) != checksum {
		return DirEntry{}, ErrBroken
	}
	name := decodeLFNChunks(chunks)
	return sfnToEntry(&ds, name, dir.sect, dir.idx), nil
}

// dirAdd inserts a new entry group (LFN slots + SFN) named name into dir,
// extending the cluster chain as needed. Returns the new entry's metadata.
func dirAdd(dir *Dir, name string, attr byte, firstClust uint32, ts Timestamp) (DirEntry, error) {
	if dir.fsys.readOnly {
		return DirEntry{}, ErrDenied
	}
	short, err := encodeSFN(name)
	if err != nil {
		return DirEntry{}, err
	}
	var chunks [][13]uint16
	if decodeSFN(short) != name {
		chunks, err = lfnChunks(name)
		if err != nil {
			return DirEntry{}, err
		}
	}
	need := len(chunks) + 1

	cur := dir.Clone()
	cur.Rewind()
	var runStart *Dir
	run := 0
	pastEOD := false
	for {
		ds, err := cur.ptr()
		if err != nil {
			return DirEntry{}, err
		}
		usable := pastEOD || ds.isDeleted()
		if !usable && ds.isFree() {
			pastEOD = true
			usable = true
		}
		if usable {
			if run == 0 {
				runStart = cur.Clone()
			}
			run++
			if run >= need {
				break
			}
			if err := cur.nextStretch(); err != nil {
				return DirEntry{}, err
			}
		} else {
			run = 0
			if err := cur.next(); err != nil {
				return DirEntry{}, err
			}
		}
	}

	cur = runStart.Clone()
	csum := sfnChecksum(short)
	n := len(chunks)
	for i := n; i >= 1; i-- {
		seq := byte(i)
		if i == n {
			seq |= lfnHeadMask
		}
		lfn, err := cur.lfnPtr()
		if err != nil {
			return DirEntry{}, err
		}
		lfn.setSeq(seq)
		lfn.setAttr()
		lfn.setChecksum(csum)
		for j := 0; j < 13; j++ {
			lfn.setCharAt(j, chunks[i-1][j])
		}
		cur.fsys.markWindowDirty()
		if err := cur.nextStretch(); err != nil {
			return DirEntry{}, err
		}
	}
	ds, err := cur.ptr()
	if err != nil {
		return DirEntry{}, err
	}
	ds.setShortName(short)
	ds.setAttributes(attr)
	dt := newDatetime(ts)
	ds.setCreatedAt(dt)
	ds.setModifiedAt(dt)
	ds.setAccessedDate(dt.date)
	ds.setCluster(firstClust)
	ds.setSize(0)
	cur.fsys.markWindowDirty()
	sect, idx := cur.sect, cur.idx
	entry := sfnToEntry(&ds, name, sect, idx)

	if pastEOD {
		term := cur.Clone()
		if err := term.nextStretch(); err != nil {
			return DirEntry{}, err
		}
		tds, err := term.ptr()
		if err != nil {
			return DirEntry{}, err
		}
		tds.data[dirNameOff] = sfnLast
		term.fsys.markWindowDirty()
	}
	return entry, nil
}

// removeEntries frees the LFN group (if any) and SFN slot belonging to entry.
func removeEntries(fsys *FS, dirStart Dir, entry DirEntry) error {
	if fsys.readOnly {
		return ErrDenied
	}
	d := dirStart.Clone()
	d.Rewind()
	var pending []*Dir
	for {
		ds, err := d.ptr()
		if err != nil {
			return err
		}
		if ds.isFree() {
			return ErrBroken
		}
		if ds.isDeleted() {
			pending = pending[:0]
			if err := d.next(); err != nil {
				return err
			}
			continue
		}
		if ds.isLFN() {
			pending = append(pending, d.Clone())
			if err := d.next(); err != nil {
				return err
			}
			continue
		}
		if d.sect == entry.sfnSect && d.idx == entry.sfnIdx {
			for _, g := range pending {
				gds, err := g.ptr()
				if err != nil {
					return err
				}
				gds.data[dirNameOff] = sfnFree
				g.fsys.markWindowDirty()
			}
			ds.data[dirNameOff] = sfnFree
			d.fsys.markWindowDirty()
			return nil
		}
		pending = pending[:0]
		if err := d.next(); err != nil {
			return err
		}
	}
}

// Clone returns a copy of the cursor's position, safe to advance
// independently of the original.
func (d *Dir) Clone() *Dir {
	c := *d
	return &c
}

// writeDotEntries writes "." and ".." stub entries into the first sector of
// a freshly allocated, cleared directory cluster.
func writeDotEntries(fsys *FS, newClust, parentClust uint32, ts Timestamp) error {
	sect := fsys.clustToSect(newClust)
	if err := fsys.moveWindow(sect); err != nil {
		return err
	}
	dt := newDatetime(ts)
	dot := dirSector{data: fsys.win[0:sizeDirEntry]}
	short, _ := encodeSFN(".")
	dot.setShortName(short)
	dot.setAttributes(attrDir)
	dot.setCreatedAt(dt)
	dot.setModifiedAt(dt)
	dot.setCluster(newClust)

	dotdot := dirSector{data: fsys.win[sizeDirEntry : 2*sizeDirEntry]}
	short2, _ := encodeSFN("..")
	dotdot.setShortName(short2)
	dotdot.setAttributes(attrDir)
	dotdot.setCreatedAt(dt)
	dotdot.setModifiedAt(dt)
	if parentClust == fsys.rootClust {
		dotdot.setCluster(0)
	} else {
		dotdot.setCluster(parentClust)
	}
	fsys.markWindowDirty()
	return fsys.syncWindow()
}

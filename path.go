package fat

import (
	"io"
	"strings"
)

// subpathLen returns the length of the first path component of p (not
// including a leading or trailing separator).
func subpathLen(p string) int {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return i
	}
	return len(p)
}

// followPath resolves path against r's mounted volumes: the first
// component names the volume, each subsequent component is looked up as a
// directory member. It returns the directory containing the final
// component, the final component's own name, and (if found) its decoded
// entry. A nonexistent final component is reported via found == false with
// err == nil, positioned in the directory that would contain it, so
// callers such as Open-with-create and Mkdir can proceed. A nonexistent
// intermediate component, or a final component accessed through one, is
// reported as ErrPath. A bare "/volname" path (no leaf component at all)
// is also reported via found == false, err == nil, but with leaf == "" to
// distinguish it from a genuinely missing leaf name.
func (r *Registry) followPath(path string) (fsys *FS, dir Dir, leaf string, entry DirEntry, found bool, err error) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil, Dir{}, "", DirEntry{}, false, ErrPath
	}
	n := subpathLen("/" + path)
	volName := path[:n]
	rest := strings.TrimPrefix(path[n:], "/")

	fsys = r.byName(volName)
	if fsys == nil {
		return nil, Dir{}, "", DirEntry{}, false, ErrPath
	}

	cur := dirAtRoot(fsys)
	if rest == "" {
		// Bare "/volname": there is no leaf component to resolve, the
		// caller is asking about the volume's root directory itself.
		return fsys, cur, "", DirEntry{}, false, nil
	}

	for {
		m := subpathLen("/" + rest)
		comp := rest[:m]
		rest = strings.TrimPrefix(rest[m:], "/")
		if comp == "" {
			return fsys, cur, "", DirEntry{}, false, ErrPath
		}
		e, serr := dirSearch(&cur, comp)
		isLast := rest == ""
		switch {
		case serr == io.EOF:
			if isLast {
				return fsys, cur, comp, DirEntry{}, false, nil
			}
			return nil, Dir{}, "", DirEntry{}, false, ErrPath
		case serr != nil:
			return nil, Dir{}, "", DirEntry{}, false, serr
		}
		if isLast {
			return fsys, cur, comp, e, true, nil
		}
		if e.Attr&attrDir == 0 {
			return nil, Dir{}, "", DirEntry{}, false, ErrPath
		}
		cur = dirAtClust(fsys, e.FirstClust)
	}
}

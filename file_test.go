package fat

import (
	"bytes"
	"io"
	"math/rand"
	"testing"
)

func TestFileCreateWriteReadBack(t *testing.T) {
	r, _ := mountTestFS(t, 65525)
	f, err := r.Open("/t/hello.txt", ModeWrite|ModeCreate)
	if err != nil {
		t.Fatalf("Open create: %v", err)
	}
	want := []byte("Hello, World!")
	n, err := f.Write(want)
	if err != nil || n != len(want) {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := r.Open("/t/hello.txt", ModeRead)
	if err != nil {
		t.Fatalf("Open read: %v", err)
	}
	got, err := io.ReadAll(f2)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("read back %q, want %q", got, want)
	}
	if err := f2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestFileWriteSpanningClusters(t *testing.T) {
	r, fsys := mountTestFS(t, 65525)
	f, err := r.Open("/t/big.bin", ModeWrite|ModeCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	bpc := int(fsys.bytesPerClust())
	data := make([]byte, bpc*3+100)
	for i := range data {
		data[i] = byte(i)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := r.Open("/t/big.bin", ModeRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := io.ReadAll(f2)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("read back %d bytes, want %d bytes matching", len(got), len(data))
	}
	f2.Close()
}

func TestFileSeekAndOverwrite(t *testing.T) {
	r, _ := mountTestFS(t, 65525)
	f, err := r.Open("/t/seek.bin", ModeWrite|ModeCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := f.Write([]byte("0123456789")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := f.Seek(2, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if _, err := f.Write([]byte("XY")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, _ := r.Open("/t/seek.bin", ModeRead)
	got, _ := io.ReadAll(f2)
	f2.Close()
	want := "01XY456789"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFileSeekPastEndThenWriteLeavesHole(t *testing.T) {
	r, _ := mountTestFS(t, 65525)
	f, err := r.Open("/t/hole.bin", ModeWrite|ModeCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := f.Write([]byte("AB")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := f.Seek(10, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if _, err := f.Write([]byte("Z")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if f.Size() != 11 {
		t.Fatalf("Size() = %d, want 11", f.Size())
	}

	f2, _ := r.Open("/t/hole.bin", ModeRead)
	got, _ := io.ReadAll(f2)
	f2.Close()
	if len(got) != 11 || got[0] != 'A' || got[1] != 'B' || got[10] != 'Z' {
		t.Fatalf("got %q", got)
	}
}

func TestFileAppendMode(t *testing.T) {
	r, _ := mountTestFS(t, 65525)
	f, err := r.Open("/t/app.txt", ModeWrite|ModeCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.Write([]byte("first"))
	f.Close()

	f2, err := r.Open("/t/app.txt", ModeWrite|ModeAppend)
	if err != nil {
		t.Fatalf("Open append: %v", err)
	}
	if _, err := f2.Write([]byte("second")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f2.Close()

	f3, _ := r.Open("/t/app.txt", ModeRead)
	got, _ := io.ReadAll(f3)
	f3.Close()
	if string(got) != "firstsecond" {
		t.Fatalf("got %q", got)
	}
}

func TestFileTruncateOnOpen(t *testing.T) {
	r, _ := mountTestFS(t, 65525)
	f, _ := r.Open("/t/trunc.txt", ModeWrite|ModeCreate)
	f.Write([]byte("this will be discarded"))
	f.Close()

	f2, err := r.Open("/t/trunc.txt", ModeWrite|ModeCreate|ModeTrunc)
	if err != nil {
		t.Fatalf("Open trunc: %v", err)
	}
	if f2.Size() != 0 {
		t.Fatalf("Size() after trunc = %d, want 0", f2.Size())
	}
	f2.Write([]byte("new"))
	f2.Close()

	f3, _ := r.Open("/t/trunc.txt", ModeRead)
	got, _ := io.ReadAll(f3)
	f3.Close()
	if string(got) != "new" {
		t.Fatalf("got %q, want new", got)
	}
}

func TestFileOpenMissingWithoutCreateIsDenied(t *testing.T) {
	r, _ := mountTestFS(t, 65525)
	if _, err := r.Open("/t/nope.txt", ModeRead); err != ErrDenied {
		t.Fatalf("Open missing without ModeCreate: err = %v, want ErrDenied", err)
	}
}

func TestFileOpenDirectoryIsDenied(t *testing.T) {
	r, _ := mountTestFS(t, 65525)
	if err := r.Mkdir("/t/sub"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := r.Open("/t/sub", ModeRead); err != ErrDenied {
		t.Fatalf("Open on a directory: err = %v, want ErrDenied", err)
	}
}

// TestFileRandomWriteSeekRoundTrip writes a large pseudo-random stream,
// closes and reopens the file, then checks that two out-of-order seeks
// land on exactly the bytes the seeded generator produced at those offsets.
func TestFileRandomWriteSeekRoundTrip(t *testing.T) {
	r, _ := mountTestFS(t, 65525)
	want := make([]byte, 10000)
	rand.New(rand.NewSource(1)).Read(want)

	f, err := r.Open("/t/random.bin", ModeWrite|ModeCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := f.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := r.Open("/t/random.bin", ModeRead)
	if err != nil {
		t.Fatalf("Open read: %v", err)
	}
	defer f2.Close()

	if _, err := f2.Seek(5000, io.SeekStart); err != nil {
		t.Fatalf("Seek(5000, SET): %v", err)
	}
	got := make([]byte, 100)
	if _, err := io.ReadFull(f2, got); err != nil {
		t.Fatalf("Read after seek: %v", err)
	}
	if !bytes.Equal(got, want[5000:5100]) {
		t.Fatalf("bytes 5000..5099 mismatch after seek(5000, SET)")
	}

	if _, err := f2.Seek(-50, io.SeekCurrent); err != nil {
		t.Fatalf("Seek(-50, CURR): %v", err)
	}
	got2 := make([]byte, 10)
	if _, err := io.ReadFull(f2, got2); err != nil {
		t.Fatalf("Read after seek: %v", err)
	}
	if !bytes.Equal(got2, want[5050:5060]) {
		t.Fatalf("bytes 5050..5059 mismatch after seek(-50, CURR)")
	}
}

func TestFileReadAtEOF(t *testing.T) {
	r, _ := mountTestFS(t, 65525)
	f, _ := r.Open("/t/empty.txt", ModeWrite|ModeCreate)
	f.Close()
	f2, _ := r.Open("/t/empty.txt", ModeRead)
	buf := make([]byte, 4)
	n, err := f2.Read(buf)
	if n != 0 || err != io.EOF {
		t.Fatalf("Read on empty file: n=%d err=%v, want 0, io.EOF", n, err)
	}
	f2.Close()
}

package fat

import (
	"fmt"
	"io"
)

// ExampleRegistry_mount mounts a FAT32 volume, writes a file, and reads
// it back, the way a caller on real storage would.
func ExampleRegistry_mount() {
	// device could be an SD card, RAM, or anything implementing BlockDevice.
	device, _ := newFAT32Image(65525)

	var r Registry
	_, err := r.Mount("sd0", device)
	if err != nil {
		panic(err)
	}

	f, err := r.Open("/sd0/hello.txt", ModeWrite|ModeCreate)
	if err != nil {
		panic(err)
	}
	if _, err := f.Write([]byte("Hello, World!")); err != nil {
		panic(err)
	}
	if err := f.Close(); err != nil {
		panic(err)
	}

	f, err = r.Open("/sd0/hello.txt", ModeRead)
	if err != nil {
		panic(err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		panic(err)
	}
	f.Close()

	fmt.Println(string(data))
	// Output:
	// Hello, World!
}

//go:build linux

package parquetio

import (
	"os"

	"golang.org/x/sys/unix"
)

// dropCache tells the kernel a finished segment will not be read back soon.
func dropCache(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_DONTNEED)
}

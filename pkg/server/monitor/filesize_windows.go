//go:build windows

package monitor

import (
	"io/fs"
	"syscall"
	"unsafe"
)

const invalidFileSize = 0xFFFFFFFF

var getCompressedFileSize = syscall.NewLazyDLL("kernel32.dll").NewProc("GetCompressedFileSizeW")

// diskUsage returns the bytes allocated to a file via GetCompressedFileSizeW.
func diskUsage(path string, info fs.FileInfo) (int64, error) {
	p, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return info.Size(), nil
	}

	var high uint32
	low, _, _ := getCompressedFileSize.Call(uintptr(unsafe.Pointer(p)), uintptr(unsafe.Pointer(&high)))
	if low == invalidFileSize {
		return info.Size(), nil
	}
	return int64(high)<<32 + int64(low), nil
}

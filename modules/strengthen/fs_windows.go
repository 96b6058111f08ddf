//go:build windows

package strengthen

import (
	"errors"
	"os"
	"runtime"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

type FILE_RENAME_INFO struct {
	ReplaceIfExists uint32
	RootDirectory   windows.Handle
	FileNameLength  uint32
	FileName        [1]uint16
}

var (
	errUnsupported = map[error]bool{
		windows.ERROR_INVALID_PARAMETER: true,
		windows.ERROR_INVALID_FUNCTION:  true,
		windows.ERROR_NOT_SUPPORTED:     true,
	}
)

func posixSemanticsRename(oldpath, newpath string) error {
	oldPathUTF16, err := windows.UTF16PtrFromString(oldpath)
	if err != nil {
		return err
	}
	newPathUTF16, err := windows.UTF16FromString(newpath)
	if err != nil {
		return err
	}

	fd, err := windows.CreateFile(oldPathUTF16, windows.DELETE|windows.FILE_WRITE_ATTRIBUTES,
		windows.FILE_SHARE_WRITE|windows.FILE_SHARE_READ|windows.FILE_SHARE_DELETE,
		nil, windows.OPEN_EXISTING, windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OPEN_REPARSE_POINT, 0)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(fd) // nolint
	fileNameLen := len(newPathUTF16)*2 - 2
	var info FILE_RENAME_INFO
	bufferSize := int(unsafe.Offsetof(info.FileName)) + fileNameLen
	buffer := make([]byte, bufferSize)
	infoPtr := (*FILE_RENAME_INFO)(unsafe.Pointer(&buffer[0]))
	infoPtr.ReplaceIfExists = windows.FILE_RENAME_REPLACE_IF_EXISTS | windows.FILE_RENAME_POSIX_SEMANTICS | windows.FILE_RENAME_IGNORE_READONLY_ATTRIBUTE
	infoPtr.FileNameLength = uint32(fileNameLen)
	copy((*[windows.MAX_LONG_PATH]uint16)(unsafe.Pointer(&infoPtr.FileName[0]))[:fileNameLen/2:fileNameLen/2], newPathUTF16)
	// https://learn.microsoft.com/en-us/windows-hardware/drivers/ddi/ntifs/ns-ntifs-_file_rename_information
	// https://learn.microsoft.com/en-us/windows/win32/api/winbase/ns-winbase-file_rename_info
	return windows.SetFileInformationByHandle(fd, windows.FileRenameInfoEx, &buffer[0], uint32(bufferSize))
}

// rename: posix rename semantics
func rename(oldpath, newpath string) error {
	err := posixSemanticsRename(oldpath, newpath)
	if errUnsupported[err] {
		return os.Rename(oldpath, newpath)
	}
	return err
}

var (
	delay     = []time.Duration{0, 1, 10, 20, 40}
	isWindows = func() bool {
		return runtime.GOOS == "windows"
	}()
)

const (
	ERROR_ACCESS_DENIED     syscall.Errno = 5
	ERROR_SHARING_VIOLATION syscall.Errno = 32
	ERROR_LOCK_VIOLATION    syscall.Errno = 33
)

func isRetryErr(err error) bool {
	if !isWindows {
		return false
	}
	if os.IsPermission(err) {
		return true
	}
	if errno, ok := errors.AsType[syscall.Errno](err); ok {
		switch errno {
		case ERROR_ACCESS_DENIED,
			ERROR_SHARING_VIOLATION,
			ERROR_LOCK_VIOLATION:
			return true
		}
	}
	return false
}

func windowsLink(oldpath, newpath string) (err error) {
	for range 2 {
		if err = os.Link(oldpath, newpath); err == nil {
			_ = os.Remove(oldpath)
			return nil
		}
		if !errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
			break
		}
		if removeErr := os.Remove(newpath); removeErr != nil {
			break
		}
	}
	return err
}

func FinalizeObject(oldpath string, newpath string) (err error) {
	if err = windowsLink(oldpath, newpath); err == nil {
		return err
	}
	// no retry rename
	if err = rename(oldpath, newpath); err == nil {
		return
	}
	// on Windows and
	if !isRetryErr(err) {
		return
	}
	for tries := range delay {
		/*
		 * We assume that some other process had the source or
		 * destination file open at the wrong moment and retry.
		 * In order to give the other process a higher chance to
		 * complete its operation, we give up our time slice now.
		 * If we have to retry again, we do sleep a bit.
		 */
		time.Sleep(delay[tries] * time.Millisecond)
		_ = os.Chmod(newpath, 0644) // & ~FILE_ATTRIBUTE_READONLY
		// retry run
		if err = rename(oldpath, newpath); err == nil {
			return
		}
		// Only windows retry
		if !isRetryErr(err) {
			return
		}
	}
	// FIXME: Windows platform security software can cause some bizarre phenomena, such as star points.
	if os.IsPermission(err) {
		_, err = os.Stat(newpath)
		return
	}
	return
}

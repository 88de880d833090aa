package fs

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ToErrno extracts the errno err wraps. An error carrying no errno is
// reported as EIO.
func ToErrno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EIO
}

// Errno converts err to a status: 0 on success, -errno on failure.
func Errno(err error) int {
	return -int(ToErrno(err))
}

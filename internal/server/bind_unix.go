//go:build unix

package server

import (
	"errors"

	"golang.org/x/sys/unix"
)

func isAddrUnavailable(err error) bool {
	return errors.Is(err, unix.EADDRNOTAVAIL) || errors.Is(err, unix.EADDRINUSE)
}

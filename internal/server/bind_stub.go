//go:build !unix

package server

func isAddrUnavailable(err error) bool {
	return false
}

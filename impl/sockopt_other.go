//go:build !unix

package impl

import (
	"syscall"
)

func controlSocket(network, address string, c syscall.RawConn) error {
	return nil
}

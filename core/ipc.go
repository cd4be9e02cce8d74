package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/encodeous/aodv/state"
)

// IPCDir holds one control socket per running node
var IPCDir = "/var/run/aodv"

func IPCSocketPath(id state.NodeId) string {
	return filepath.Join(IPCDir, string(id)+".sock")
}

// IPCGet sends cmd to the node's control socket and returns the reply
func IPCGet(id state.NodeId, cmd string) (string, error) {
	conn, err := net.Dial("unix", IPCSocketPath(id))
	if err != nil {
		return "", err
	}
	defer conn.Close()
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	_, err = rw.WriteString(cmd + "\n")
	if err != nil {
		return "", err
	}
	err = rw.Flush()
	if err != nil {
		return "", err
	}

	res, err := rw.ReadString(0)
	if err != nil && err != io.EOF {
		return "", err
	}
	res = strings.TrimSuffix(res, "\x00")
	if msg, ok := strings.CutPrefix(res, "error: "); ok {
		return "", errors.New(strings.TrimSpace(msg))
	}
	return res, nil
}

// IPCReply renders the answer to a control command
func IPCReply(r *Router, cmd string) string {
	sb := strings.Builder{}
	switch cmd {
	case "inspect":
		snap := r.Snapshot()
		sb.WriteString(fmt.Sprintf("Seqno: %d, RequestId: %d\n", snap.Seqno, snap.RequestId))
		sb.WriteString("\nNeighbours:\n")
		if len(snap.Neighbors) == 0 {
			sb.WriteString(" (none)\n")
		}
		for _, n := range snap.Neighbors {
			sb.WriteString(fmt.Sprintf(" - %s\n", n))
		}
		sb.WriteString("\nPending discoveries:\n")
		for _, p := range snap.Pending {
			sb.WriteString(fmt.Sprintf(" - %s\n", p))
		}
		for _, p := range snap.Repairing {
			sb.WriteString(fmt.Sprintf(" - %s (repair)\n", p))
		}
		sb.WriteString("\nRoute Table:\n")
		r.Print(&sb)
	case "routes":
		r.Print(&sb)
	default:
		sb.WriteString(fmt.Sprintf("error: unknown command %q\n", cmd))
	}
	return sb.String()
}

// HandleIPCGet answers a single control request, the reply is terminated by a NUL byte
func HandleIPCGet(rw *bufio.ReadWriter, reply func(cmd string) (string, error)) error {
	cmd, err := rw.ReadString('\n')
	if err != nil {
		return err
	}
	res, err := reply(strings.TrimSpace(cmd))
	if err != nil {
		res = fmt.Sprintf("error: %s\n", err)
	}
	if _, err = rw.WriteString(res + "\x00"); err != nil {
		return err
	}
	return rw.Flush()
}

// serveIPC accepts control connections until the node stops, each reply is
// rendered on the dispatch goroutine
func serveIPC(s *state.State, path string) error {
	ctx := s.Context
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	_ = os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				if ctx.Err() == nil {
					s.Log.Warn("ipc accept failed", "error", err)
				}
				return
			}
			go func() {
				defer conn.Close()
				rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
				err := HandleIPCGet(rw, func(cmd string) (string, error) {
					res, err := s.DispatchWait(func(s *state.State) (any, error) {
						return IPCReply(Get[*AodvNode](s).Router, cmd), nil
					})
					if err != nil {
						return "", err
					}
					return res.(string), nil
				})
				if err != nil {
					s.Log.Debug("ipc request failed", "error", err)
				}
			}()
		}
	}()
	return nil
}

// Copyright 2026 The Supportstack Authors
// SPDX-License-Identifier: Apache-2.0

package ports

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// tcpListenState is the st column value for a listening socket in
// /proc/net/tcp (TCP_LISTEN in the kernel's enum, printed as hex).
const tcpListenState = "0A"

// ProcProber reads the listening-socket table from procfs. It needs no
// privileges to see which ports are bound; resolving the owning
// process works only for sockets the current user may inspect and is
// best effort.
type ProcProber struct {
	// Root is the procfs mount point. Empty means "/proc". Tests
	// point it at a fixture tree.
	Root string
}

func (p *ProcProber) root() string {
	if p.Root == "" {
		return "/proc"
	}
	return p.Root
}

// Listening implements Prober by parsing /proc/net/tcp and
// /proc/net/tcp6. An unreadable table is a hard error; a missing tcp6
// table (IPv6 disabled) is tolerated.
func (p *ProcProber) Listening() (map[int]Listener, error) {
	listeners := make(map[int]Listener)
	inodes := make(map[uint64]int) // socket inode → port

	if err := p.parseTable(filepath.Join(p.root(), "net", "tcp"), listeners, inodes); err != nil {
		return nil, err
	}
	tcp6 := filepath.Join(p.root(), "net", "tcp6")
	if err := p.parseTable(tcp6, listeners, inodes); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	p.resolveOwners(listeners, inodes)
	return listeners, nil
}

// parseTable reads one procfs socket table, adding listening entries.
func (p *ProcProber) parseTable(path string, listeners map[int]Listener, inodes map[uint64]int) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Scan() // header line

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// sl local_address rem_address st ... uid timeout inode
		if len(fields) < 10 {
			continue
		}
		if fields[3] != tcpListenState {
			continue
		}

		port, err := parseHexPort(fields[1])
		if err != nil {
			continue
		}
		if _, seen := listeners[port]; seen {
			continue // same port listening on both v4 and v6
		}
		listeners[port] = Listener{Port: port}

		if inode, err := strconv.ParseUint(fields[9], 10, 64); err == nil && inode != 0 {
			inodes[inode] = port
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

// parseHexPort extracts the port from a procfs "ADDR:PORT" hex pair.
func parseHexPort(local string) (int, error) {
	colon := strings.LastIndexByte(local, ':')
	if colon < 0 {
		return 0, fmt.Errorf("malformed local address %q", local)
	}
	port, err := strconv.ParseUint(local[colon+1:], 16, 16)
	if err != nil {
		return 0, fmt.Errorf("malformed port in %q: %w", local, err)
	}
	return int(port), nil
}

// resolveOwners walks /proc/*/fd looking for socket inodes that match
// a listening port, then reads the owning process name from comm.
// Everything here is best effort: permission failures simply leave the
// owner fields empty.
func (p *ProcProber) resolveOwners(listeners map[int]Listener, inodes map[uint64]int) {
	if len(inodes) == 0 {
		return
	}

	entries, err := os.ReadDir(p.root())
	if err != nil {
		return
	}

	remaining := len(inodes)
	for _, entry := range entries {
		if remaining == 0 {
			return
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		fdDir := filepath.Join(p.root(), entry.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}

		for _, fd := range fds {
			target, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			inode, ok := socketInode(target)
			if !ok {
				continue
			}
			port, wanted := inodes[inode]
			if !wanted {
				continue
			}

			listener := listeners[port]
			listener.PID = pid
			listener.ProcessName = p.processName(pid)
			listeners[port] = listener
			delete(inodes, inode)
			remaining--
		}
	}
}

// socketInode extracts N from a "socket:[N]" symlink target.
func socketInode(target string) (uint64, bool) {
	const prefix, suffix = "socket:[", "]"
	if !strings.HasPrefix(target, prefix) || !strings.HasSuffix(target, suffix) {
		return 0, false
	}
	inode, err := strconv.ParseUint(target[len(prefix):len(target)-len(suffix)], 10, 64)
	if err != nil {
		return 0, false
	}
	return inode, true
}

// processName reads the short command name for pid, or "".
func (p *ProcProber) processName(pid int) string {
	comm, err := os.ReadFile(filepath.Join(p.root(), strconv.Itoa(pid), "comm"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(comm))
}

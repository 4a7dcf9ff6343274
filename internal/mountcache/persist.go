package mountcache

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf16"
)

// Save serializes the cache to the binary format of spec.md §4.7: a
// big-endian stream of three sections (mounts, query paths, clients).
// File handles are not persisted; only the host path each mount_id maps
// to, since volume_serial/file_id are re-derived from the host adapter
// on Restore.
func (c *Cache) Save(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	bw := bufio.NewWriter(w)

	if err := writeU32(bw, uint32(len(c.mounts))); err != nil {
		return err
	}
	for mountID, entry := range c.mounts {
		if err := writeU64(bw, mountID); err != nil {
			return err
		}
		units := utf16.Encode([]rune(entry.hostPath))
		if err := writeU32(bw, uint32(len(units))); err != nil {
			return err
		}
		for _, u := range units {
			if err := writeU16(bw, u); err != nil {
				return err
			}
		}
	}

	if err := writeU32(bw, uint32(len(c.byQueryPath))); err != nil {
		return err
	}
	for queryPath, mountID := range c.byQueryPath {
		if err := writeString(bw, queryPath); err != nil {
			return err
		}
		if err := writeU64(bw, mountID); err != nil {
			return err
		}
	}

	if err := writeU32(bw, uint32(len(c.clientMounts))); err != nil {
		return err
	}
	for client, set := range c.clientMounts {
		if err := writeString(bw, client); err != nil {
			return err
		}
		if err := writeU32(bw, uint32(len(set))); err != nil {
			return err
		}
		for mountID := range set {
			if err := writeU64(bw, mountID); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// Restore rebuilds the cache from a stream written by Save. Mount
// entries whose host path can no longer be opened via adapter are
// dropped, along with any query-path or client binding that referenced
// them; next_mount_id is set to max(loaded mount ids)+1 regardless, so a
// dropped mount's id is never reused (spec.md §4.7).
func Restore(r io.Reader, resolver Resolver, adapter FSAdapter) (*Cache, error) {
	c := New(resolver, adapter)
	br := bufio.NewReader(r)

	nMounts, err := readU32(br)
	if err != nil {
		return nil, fmt.Errorf("mountcache: read mount count: %w", err)
	}
	for i := uint32(0); i < nMounts; i++ {
		mountID, err := readU64(br)
		if err != nil {
			return nil, fmt.Errorf("mountcache: read mount id: %w", err)
		}
		pathLen, err := readU32(br)
		if err != nil {
			return nil, fmt.Errorf("mountcache: read mount path length: %w", err)
		}
		units := make([]uint16, pathLen)
		for j := range units {
			u, err := readU16(br)
			if err != nil {
				return nil, fmt.Errorf("mountcache: read mount path: %w", err)
			}
			units[j] = u
		}
		if mountID >= c.nextMountID {
			c.nextMountID = mountID + 1
		}

		hostPath := string(utf16.Decode(units))
		dir, err := adapter.OpenDirectory(hostPath)
		if err != nil {
			continue // dropped: host path no longer reachable
		}
		handle := FileHandle{MountID: mountID, VolumeSerial: dir.VolumeSerial(), FileID: dir.FileID()}
		c.mounts[mountID] = &mountEntry{
			dir:      dir,
			handle:   handle,
			hostPath: dir.CanonicalPath(),
			clients:  make(map[string]struct{}),
		}
		c.byHostPath[dir.CanonicalPath()] = mountID
	}

	nQueries, err := readU32(br)
	if err != nil {
		return nil, fmt.Errorf("mountcache: read query count: %w", err)
	}
	for i := uint32(0); i < nQueries; i++ {
		queryPath, err := readString(br)
		if err != nil {
			return nil, fmt.Errorf("mountcache: read query path: %w", err)
		}
		mountID, err := readU64(br)
		if err != nil {
			return nil, fmt.Errorf("mountcache: read query mount id: %w", err)
		}
		if _, ok := c.mounts[mountID]; ok {
			c.byQueryPath[queryPath] = mountID
		}
	}

	nClients, err := readU32(br)
	if err != nil {
		return nil, fmt.Errorf("mountcache: read client count: %w", err)
	}
	for i := uint32(0); i < nClients; i++ {
		client, err := readString(br)
		if err != nil {
			return nil, fmt.Errorf("mountcache: read client: %w", err)
		}
		nIDs, err := readU32(br)
		if err != nil {
			return nil, fmt.Errorf("mountcache: read client mount count: %w", err)
		}
		for j := uint32(0); j < nIDs; j++ {
			mountID, err := readU64(br)
			if err != nil {
				return nil, fmt.Errorf("mountcache: read client mount id: %w", err)
			}
			if _, ok := c.mounts[mountID]; ok {
				c.bindLocked(client, mountID)
			}
		}
	}

	return c, nil
}

func writeU16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readString(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

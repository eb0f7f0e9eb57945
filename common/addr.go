package common

import (
	"fmt"
	"net"
	"strings"
)

// HostOf extracts the host part of a host:port address. Addresses without a
// port are returned unchanged.
func HostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// SameHost reports whether two addresses name the same machine, ignoring
// their ports.
func SameHost(a, b string) bool {
	return HostOf(a) == HostOf(b)
}

// SplitFileName separates an HDFS file name into base name and extension at
// the last dot, with any leading path stripped from the base.
func SplitFileName(name string) (base, ext string) {
	base = name
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base, ext = base[:i], base[i:]
	}
	return base, ext
}

// ChunkFileName is the deterministic on-disk name of one chunk.
func ChunkFileName(base string, chunkNumber int, ext string) string {
	return fmt.Sprintf("%s-%d%s", base, chunkNumber, ext)
}

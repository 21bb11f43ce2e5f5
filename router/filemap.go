package router

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MapFile computes rx.filename/rx.etag for a matched request needing a
// filesystem path (spec §4.1.8). Results are cached per (target,
// accept-encoding) pair on the route so repeated lookups are O(1).
func MapFile(route *Route, rx *Request) (string, error) {
	cacheKey := rx.target + "\x00" + rx.Header.Get("Accept-Encoding")
	route.mu.Lock()
	if cached, ok := route.mappings[cacheKey]; ok {
		route.mu.Unlock()
		rx.filename = cached
		rx.gzipped = strings.HasSuffix(cached, ".gz") && !strings.HasSuffix(rx.target, ".gz")
		statETag(rx)
		return cached, nil
	}
	route.mu.Unlock()

	target := rx.target
	if def, ok := route.Languages[rx.Language]; ok && def.Path != "" {
		target = filepath.Join(def.Path, target)
	}
	base := filepath.Join(route.Dir, target)

	candidate := base
	ext := extOf(target)
	if alts, ok := route.ExtMap[ext]; ok {
		acceptsGzip := strings.Contains(rx.Header.Get("Accept-Encoding"), "gzip")
		for _, alt := range alts {
			try := base + "." + alt
			if alt == "gz" && !acceptsGzip {
				continue
			}
			if _, err := os.Stat(try); err == nil {
				candidate = try
				if alt == "gz" {
					rx.gzipped = true
				}
				break
			}
		}
	}

	route.mu.Lock()
	route.mappings[cacheKey] = candidate
	route.mu.Unlock()

	rx.filename = candidate
	statETag(rx)
	return candidate, nil
}

func statETag(rx *Request) {
	info, err := os.Stat(rx.filename)
	if err != nil {
		rx.etag = ""
		return
	}
	// "inode-size-mtime"; os.FileInfo doesn't expose the inode portably
	// and syscall.Stat_t isn't consulted, so the inode part is always 0.
	rx.etag = fmt.Sprintf("0-%d-%d", info.Size(), info.ModTime().UnixNano())
}

// GzipApplied reports whether MapFile chose a ".gz" variant for rx, the
// trigger for setting Content-Encoding: gzip (spec §4.1.8 step 4).
func (rx *Request) GzipApplied() bool { return rx.gzipped }

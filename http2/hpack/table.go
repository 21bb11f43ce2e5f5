// Package hpack implements the header compression scheme used by HTTP/2:
// a static table of well-known headers, a per-direction dynamic table
// with byte-budget eviction, 7-bit-prefix integer coding, and a
// table-driven Huffman codec (spec §4.2.5).
//
// Grounded on the teacher's use of github.com/bradfitz/http2/hpack
// (_examples/baranov1ch-http2/server.go); that package path predates
// golang.org/x/net/http2/hpack and is not importable today, so this
// module reimplements the codec directly — the spec also calls for the
// dynamic table, integer coding and Huffman table to be individually
// testable units (spec §8 invariants 4-5), which an opaque dependency
// would not expose.
package hpack

import "fmt"

// HeaderField is a single (name, value) pair, order-preserving across
// duplicate names within one header block (spec §8 invariant 5).
type HeaderField struct {
	Name      string
	Value     string
	Sensitive bool // never-indexed (0001xxxx encoding)
}

func (f HeaderField) size() int {
	// RFC 7541 §4.1: each entry's size is len(name)+len(value)+32.
	return len(f.Name) + len(f.Value) + 32
}

var staticTable = []HeaderField{
	{Name: ":authority"},
	{Name: ":method", Value: "GET"},
	{Name: ":method", Value: "POST"},
	{Name: ":path", Value: "/"},
	{Name: ":path", Value: "/index.html"},
	{Name: ":scheme", Value: "http"},
	{Name: ":scheme", Value: "https"},
	{Name: ":status", Value: "200"},
	{Name: ":status", Value: "204"},
	{Name: ":status", Value: "206"},
	{Name: ":status", Value: "304"},
	{Name: ":status", Value: "400"},
	{Name: ":status", Value: "404"},
	{Name: ":status", Value: "500"},
	{Name: "accept-charset"},
	{Name: "accept-encoding", Value: "gzip, deflate"},
	{Name: "accept-language"},
	{Name: "accept-ranges"},
	{Name: "accept"},
	{Name: "access-control-allow-origin"},
	{Name: "age"},
	{Name: "allow"},
	{Name: "authorization"},
	{Name: "cache-control"},
	{Name: "content-disposition"},
	{Name: "content-encoding"},
	{Name: "content-language"},
	{Name: "content-length"},
	{Name: "content-location"},
	{Name: "content-range"},
	{Name: "content-type"},
	{Name: "cookie"},
	{Name: "date"},
	{Name: "etag"},
	{Name: "expect"},
	{Name: "expires"},
	{Name: "from"},
	{Name: "host"},
	{Name: "if-match"},
	{Name: "if-modified-since"},
	{Name: "if-none-match"},
	{Name: "if-range"},
	{Name: "if-unmodified-since"},
	{Name: "last-modified"},
	{Name: "link"},
	{Name: "location"},
	{Name: "max-forwards"},
	{Name: "proxy-authenticate"},
	{Name: "proxy-authorization"},
	{Name: "range"},
	{Name: "referer"},
	{Name: "refresh"},
	{Name: "retry-after"},
	{Name: "server"},
	{Name: "set-cookie"},
	{Name: "strict-transport-security"},
	{Name: "transfer-encoding"},
	{Name: "user-agent"},
	{Name: "vary"},
	{Name: "via"},
	{Name: "www-authenticate"},
}

const staticTableLen = 61 // len(staticTable); 1-indexed on the wire

// dynamicTable is the FIFO described in spec §4.2.5: entries are
// prepended (most-recent-first, matching the wire's indexing order) and
// the tail is evicted until total size fits maxSize.
type dynamicTable struct {
	entries []HeaderField // entries[0] is the most recently inserted
	size    int
	maxSize int // current SETTINGS-derived budget
}

func newDynamicTable(maxSize int) *dynamicTable {
	return &dynamicTable{maxSize: maxSize}
}

// setMaxSize applies a new budget, evicting from the tail as needed (spec
// §4.2.5 invariant: insertions evict from the tail until the budget
// fits).
func (t *dynamicTable) setMaxSize(n int) {
	t.maxSize = n
	t.evict()
}

func (t *dynamicTable) evict() {
	for t.size > t.maxSize && len(t.entries) > 0 {
		last := t.entries[len(t.entries)-1]
		t.entries = t.entries[:len(t.entries)-1]
		t.size -= last.size()
	}
}

// add inserts f at the front of the table. An entry larger than the
// budget empties the table without adding it (spec §4.2.5 invariant).
func (t *dynamicTable) add(f HeaderField) {
	sz := f.size()
	if sz > t.maxSize {
		t.entries = nil
		t.size = 0
		return
	}
	t.entries = append([]HeaderField{f}, t.entries...)
	t.size += sz
	t.evict()
}

// at resolves a 0-based dynamic-table index (the wire's dynamic index
// minus the static table length, minus 1) to its entry.
func (t *dynamicTable) at(i int) (HeaderField, bool) {
	if i < 0 || i >= len(t.entries) {
		return HeaderField{}, false
	}
	return t.entries[i], true
}

func (t *dynamicTable) len() int { return len(t.entries) }

// lookup resolves a full 1-based HPACK index across the static table then
// the dynamic table.
func lookup(dyn *dynamicTable, index int) (HeaderField, error) {
	if index <= 0 {
		return HeaderField{}, fmt.Errorf("hpack: invalid index %d", index)
	}
	if index <= staticTableLen {
		return staticTable[index-1], nil
	}
	if f, ok := dyn.at(index - staticTableLen - 1); ok {
		return f, nil
	}
	return HeaderField{}, fmt.Errorf("hpack: index %d out of range", index)
}

// findIndex searches the static table then the dynamic table for f,
// returning (index, nameOnly) for the encoder: nameOnly is true when only
// the name (not the value) matched, which still saves encoding the name
// literal.
func findIndex(dyn *dynamicTable, f HeaderField) (index int, nameOnly bool) {
	bestNameIdx := 0
	for i, s := range staticTable {
		if s.Name == f.Name {
			if s.Value == f.Value {
				return i + 1, false
			}
			if bestNameIdx == 0 {
				bestNameIdx = i + 1
			}
		}
	}
	for i, d := range dyn.entries {
		if d.Name == f.Name {
			full := staticTableLen + i + 1
			if d.Value == f.Value {
				return full, false
			}
			if bestNameIdx == 0 {
				bestNameIdx = full
			}
		}
	}
	if bestNameIdx != 0 {
		return bestNameIdx, true
	}
	return 0, false
}

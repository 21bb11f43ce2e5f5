package hpack

// Encoder serializes header lists into HPACK-encoded header blocks,
// maintaining its own dynamic table across calls (one Encoder per
// connection direction, spec §3.2 "tx_headers"/"rx_headers").
type Encoder struct {
	dyn            *dynamicTable
	maxTableSize   int
	pendingResize  bool
	DisableHuffman bool // set true to always emit literal strings verbatim
}

// NewEncoder creates an encoder whose dynamic table starts at the given
// HEADER_TABLE_SIZE budget.
func NewEncoder(tableSize int) *Encoder {
	return &Encoder{dyn: newDynamicTable(tableSize), maxTableSize: tableSize}
}

// SetMaxTableSize applies a new HEADER_TABLE_SIZE budget (from a local
// SETTINGS change or table-size-update) before the next WriteField call
// emits a dynamic-table-size-update entry.
func (e *Encoder) SetMaxTableSize(n int) {
	e.maxTableSize = n
	e.pendingResize = true
}

// WriteField appends f's HPACK encoding to dst and returns the extended
// slice, following the wire format of spec §4.2.5.
func (e *Encoder) WriteField(dst []byte, f HeaderField) []byte {
	if e.pendingResize {
		e.dyn.setMaxSize(e.maxTableSize)
		dst = appendInt(dst, 0x20, 5, e.maxTableSize)
		e.pendingResize = false
	}

	idx, nameOnly := findIndex(e.dyn, f)
	if idx != 0 && !nameOnly {
		return appendInt(dst, 0x80, 7, idx)
	}

	var firstByte byte = 0x40 // literal with incremental indexing
	if f.Sensitive {
		firstByte = 0x10 // never indexed
	}
	prefixBits := uint(6)
	if f.Sensitive {
		prefixBits = 4
	}
	if idx != 0 {
		dst = appendInt(dst, firstByte, prefixBits, idx)
	} else {
		dst = appendInt(dst, firstByte, prefixBits, 0)
		dst = e.writeString(dst, f.Name)
	}
	dst = e.writeString(dst, f.Value)

	if !f.Sensitive {
		e.dyn.add(f)
	}
	return dst
}

func (e *Encoder) writeString(dst []byte, s string) []byte {
	if e.DisableHuffman {
		dst = appendInt(dst, 0x00, 7, len(s))
		return append(dst, s...)
	}
	huffLen := huffmanEncodedLen(s)
	if huffLen < len(s) {
		dst = appendInt(dst, 0x80, 7, huffLen)
		return huffmanEncode(dst, s)
	}
	dst = appendInt(dst, 0x00, 7, len(s))
	return append(dst, s...)
}

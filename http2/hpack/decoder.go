package hpack

// Decoder parses HPACK-encoded header blocks, maintaining its own dynamic
// table mirroring the peer's encoder (spec §3.2 "rx_headers"/"tx_headers").
type Decoder struct {
	dyn      *dynamicTable
	maxSize  int
	sawEntry bool // true once any non-size-update field has been decoded
}

// NewDecoder creates a decoder whose dynamic table starts at the given
// HEADER_TABLE_SIZE budget.
func NewDecoder(tableSize int) *Decoder {
	return &Decoder{dyn: newDynamicTable(tableSize), maxSize: tableSize}
}

// SetMaxTableSize clamps the largest size update this decoder will accept,
// mirroring a local SETTINGS change (spec §4.2.5: a peer may legally send
// a smaller update, but never a larger one than the receiver advertised).
func (d *Decoder) SetMaxTableSize(n int) {
	d.maxSize = n
	if d.dyn.maxSize > n {
		d.dyn.setMaxSize(n)
	}
}

// Reset clears the per-block sawEntry tracking; callers invoke it once per
// incoming header block (a full HEADERS+CONTINUATION sequence), not once
// per call to DecodeField.
func (d *Decoder) Reset() { d.sawEntry = false }

// DecodeField parses a single field from the head of src, returning the
// decoded field (or zero value for a size update, with ok=false), the
// number of bytes consumed, and any error.
func (d *Decoder) DecodeField(src []byte) (f HeaderField, ok bool, consumed int, err error) {
	if len(src) == 0 {
		return HeaderField{}, false, 0, errUnexpectedEOF
	}
	b := src[0]
	switch {
	case b&0x80 != 0: // indexed header field, 1xxxxxxx
		idx, n, err := readInt(src, 7)
		if err != nil {
			return HeaderField{}, false, 0, err
		}
		field, lerr := lookup(d.dyn, idx)
		if lerr != nil {
			return HeaderField{}, false, 0, lerr
		}
		d.sawEntry = true
		return field, true, n, nil

	case b&0x40 != 0: // literal with incremental indexing, 01xxxxxx
		field, n, err := d.decodeLiteral(src, 6, false)
		if err != nil {
			return HeaderField{}, false, 0, err
		}
		d.dyn.add(field)
		d.sawEntry = true
		return field, true, n, nil

	case b&0x20 != 0: // dynamic table size update, 001xxxxx
		if d.sawEntry {
			return HeaderField{}, false, 0, errSizeUpdateAfterEntry
		}
		n2, n, err := readInt(src, 5)
		if err != nil {
			return HeaderField{}, false, 0, err
		}
		if n2 > d.maxSize {
			return HeaderField{}, false, 0, errIntegerOverflow
		}
		d.dyn.setMaxSize(n2)
		return HeaderField{}, false, n, nil

	case b&0x10 != 0: // literal never indexed, 0001xxxx
		field, n, err := d.decodeLiteral(src, 4, true)
		if err != nil {
			return HeaderField{}, false, 0, err
		}
		field.Sensitive = true
		d.sawEntry = true
		return field, true, n, nil

	default: // literal without indexing, 0000xxxx
		field, n, err := d.decodeLiteral(src, 4, false)
		if err != nil {
			return HeaderField{}, false, 0, err
		}
		d.sawEntry = true
		return field, true, n, nil
	}
}

func (d *Decoder) decodeLiteral(src []byte, prefixBits uint, _ bool) (HeaderField, int, error) {
	idx, n, err := readInt(src, prefixBits)
	if err != nil {
		return HeaderField{}, 0, err
	}
	pos := n
	var name string
	if idx == 0 {
		s, used, err := readString(src[pos:])
		if err != nil {
			return HeaderField{}, 0, err
		}
		name = s
		pos += used
	} else {
		field, err := lookup(d.dyn, idx)
		if err != nil {
			return HeaderField{}, 0, err
		}
		name = field.Name
	}
	value, used, err := readString(src[pos:])
	if err != nil {
		return HeaderField{}, 0, err
	}
	pos += used
	return HeaderField{Name: name, Value: value}, pos, nil
}

// readString decodes a Huffman-or-plain string literal (RFC 7541 §5.2)
// from the head of src.
func readString(src []byte) (string, int, error) {
	if len(src) == 0 {
		return "", 0, errUnexpectedEOF
	}
	huff := src[0]&0x80 != 0
	length, n, err := readInt(src, 7)
	if err != nil {
		return "", 0, err
	}
	if length > len(src)-n {
		return "", 0, errUnexpectedEOF
	}
	if length > maxStringLen {
		return "", 0, errStringTooLong
	}
	raw := src[n : n+length]
	if !huff {
		return string(raw), n + length, nil
	}
	decoded, err := huffmanDecode(nil, raw)
	if err != nil {
		return "", 0, err
	}
	return string(decoded), n + length, nil
}

// maxStringLen bounds a single header string literal, standing in for the
// MAX_HEADER_LIST_SIZE enforcement that the stream layer applies across a
// whole header block (spec §4.2.6); this just prevents a single absurd
// length prefix from forcing a huge allocation before that check runs.
const maxStringLen = 1 << 20

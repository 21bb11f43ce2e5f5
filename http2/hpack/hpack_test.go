package hpack

import "testing"

func TestRoundTripBasicFields(t *testing.T) {
	fields := []HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
		{Name: ":authority", Value: "example.com"},
		{Name: "custom", Value: "x"},
	}

	enc := NewEncoder(4096)
	var buf []byte
	for _, f := range fields {
		buf = enc.WriteField(buf, f)
	}

	if len(buf) == 0 || buf[0] != 0x82 {
		t.Fatalf(":method=GET must encode as single byte 0x82, got % x", buf[:minLen(len(buf), 1)])
	}

	dec := NewDecoder(4096)
	dec.Reset()
	var got []HeaderField
	pos := 0
	for pos < len(buf) {
		f, ok, n, err := dec.DecodeField(buf[pos:])
		if err != nil {
			t.Fatalf("DecodeField at %d: %v", pos, err)
		}
		pos += n
		if ok {
			got = append(got, f)
		}
	}

	if len(got) != len(fields) {
		t.Fatalf("got %d fields, want %d", len(got), len(fields))
	}
	for i, f := range fields {
		if got[i] != f {
			t.Errorf("field %d: got %+v, want %+v", i, got[i], f)
		}
	}
}

func minLen(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func TestRoundTripPreservesDuplicateNameOrder(t *testing.T) {
	fields := []HeaderField{
		{Name: "set-cookie", Value: "a=1"},
		{Name: "set-cookie", Value: "b=2"},
		{Name: "set-cookie", Value: "a=1"},
	}

	enc := NewEncoder(4096)
	var buf []byte
	for _, f := range fields {
		buf = enc.WriteField(buf, f)
	}

	dec := NewDecoder(4096)
	dec.Reset()
	var got []HeaderField
	pos := 0
	for pos < len(buf) {
		f, ok, n, err := dec.DecodeField(buf[pos:])
		if err != nil {
			t.Fatalf("DecodeField at %d: %v", pos, err)
		}
		pos += n
		if ok {
			got = append(got, f)
		}
	}

	if len(got) != len(fields) {
		t.Fatalf("got %d fields, want %d", len(got), len(fields))
	}
	for i, f := range fields {
		if got[i].Name != f.Name || got[i].Value != f.Value {
			t.Errorf("field %d: got %+v, want %+v (order not preserved)", i, got[i], f)
		}
	}
}

func TestDynamicTableEviction(t *testing.T) {
	dyn := newDynamicTable(64)
	dyn.add(HeaderField{Name: "a", Value: "1"}) // size 34
	dyn.add(HeaderField{Name: "b", Value: "2"}) // size 34, total 68 > 64, evicts "a"
	if dyn.len() != 1 {
		t.Fatalf("expected eviction to leave 1 entry, got %d", dyn.len())
	}
	f, ok := dyn.at(0)
	if !ok || f.Name != "b" {
		t.Fatalf("expected surviving entry to be 'b', got %+v ok=%v", f, ok)
	}
}

func TestSizeUpdateAfterEntryRejected(t *testing.T) {
	dec := NewDecoder(4096)
	dec.Reset()

	enc := NewEncoder(4096)
	buf := enc.WriteField(nil, HeaderField{Name: "x", Value: "y"})
	// Append a raw size-update byte after a literal has already been seen.
	buf = appendInt(buf, 0x20, 5, 100)

	pos := 0
	var lastErr error
	for pos < len(buf) {
		_, _, n, err := dec.DecodeField(buf[pos:])
		if err != nil {
			lastErr = err
			break
		}
		pos += n
	}
	if lastErr != errSizeUpdateAfterEntry {
		t.Fatalf("expected errSizeUpdateAfterEntry, got %v", lastErr)
	}
}

func TestHuffmanRoundTrip(t *testing.T) {
	s := "www.example.com"
	enc := huffmanEncode(nil, s)
	dec, err := huffmanDecode(nil, enc)
	if err != nil {
		t.Fatalf("huffmanDecode: %v", err)
	}
	if string(dec) != s {
		t.Fatalf("got %q, want %q", dec, s)
	}
}

func TestIntegerRoundTrip(t *testing.T) {
	for _, n := range []int{0, 5, 30, 31, 127, 128, 1337, 100000} {
		buf := appendInt(nil, 0, 5, n)
		got, consumed, err := readInt(buf, 5)
		if err != nil {
			t.Fatalf("readInt(%d): %v", n, err)
		}
		if got != n {
			t.Errorf("readInt round trip: got %d, want %d", got, n)
		}
		if consumed != len(buf) {
			t.Errorf("consumed %d, want %d", consumed, len(buf))
		}
	}
}

package hpack

import "errors"

var (
	errUnexpectedEOF   = errors.New("hpack: unexpected end of header block")
	errIntegerOverflow = errors.New("hpack: integer too large")
	errHuffmanInvalid  = errors.New("hpack: invalid Huffman-coded string")
	errStringTooLong   = errors.New("hpack: string literal exceeds limit")
	errSizeUpdateAfterEntry = errors.New("hpack: dynamic table size update after a header field")
)

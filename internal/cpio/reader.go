package cpio

import (
	"fmt"
	"strconv"
)

// Decode parses a newc archive produced by Writer.Bytes back into its
// entries (excluding the trailer and trailing zero padding), used by tests
// to assert that decode(encode(entries)) reproduces the original entries.
func Decode(b []byte) ([]Entry, error) {
	var entries []Entry
	off := 0
	for {
		if off+headerLen > len(b) {
			return nil, fmt.Errorf("cpio: truncated header at offset %d", off)
		}
		if string(b[off:off+6]) != magic {
			return nil, fmt.Errorf("cpio: bad magic at offset %d: %q", off, b[off:off+6])
		}
		field := func(n int) (uint32, error) {
			start := off + 6 + n*8
			v, err := strconv.ParseUint(string(b[start:start+8]), 16, 32)
			return uint32(v), err
		}
		mode, err := field(1)
		if err != nil {
			return nil, err
		}
		filesize, err := field(6)
		if err != nil {
			return nil, err
		}
		major, err := field(9)
		if err != nil {
			return nil, err
		}
		minor, err := field(10)
		if err != nil {
			return nil, err
		}
		namesize, err := field(11)
		if err != nil {
			return nil, err
		}

		nameStart := off + headerLen
		if nameStart+int(namesize) > len(b) {
			return nil, fmt.Errorf("cpio: truncated name at offset %d", nameStart)
		}
		name := string(b[nameStart : nameStart+int(namesize)-1]) // drop trailing NUL

		headerAndName := headerLen + int(namesize)
		pad := (4 - headerAndName%4) % 4
		payloadStart := nameStart + int(namesize) + pad
		if payloadStart+int(filesize) > len(b) {
			return nil, fmt.Errorf("cpio: truncated payload for %q", name)
		}
		payload := b[payloadStart : payloadStart+int(filesize)]

		if name == trailerName {
			break
		}

		var payloadCopy []byte
		if len(payload) > 0 {
			payloadCopy = append([]byte(nil), payload...)
		}
		entries = append(entries, Entry{
			Path:    name,
			Mode:    mode,
			Major:   major,
			Minor:   minor,
			Payload: payloadCopy,
		})

		payloadPad := (4 - int(filesize)%4) % 4
		off = payloadStart + int(filesize) + payloadPad
	}
	return entries, nil
}

// Package imagemeta removes embedded metadata from generated images before
// they are written to disk. JPEG APPn/COM segments and PNG ancillary chunks
// can carry provenance fields that must not ship with published posts.
package imagemeta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Strip removes metadata from a JPEG or PNG image. Unrecognized formats are
// returned unchanged.
func Strip(data []byte) ([]byte, error) {
	switch {
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8:
		return stripJPEG(data)
	case len(data) >= len(pngSignature) && bytes.Equal(data[:len(pngSignature)], pngSignature):
		return stripPNG(data)
	default:
		return data, nil
	}
}

// stripJPEG drops APP1-APP15 and COM segments. APP0 (JFIF) stays so the file
// remains well-formed for strict decoders.
func stripJPEG(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	out = append(out, data[0], data[1])
	offset := 2

	for offset < len(data) {
		if data[offset] != 0xFF {
			return nil, fmt.Errorf("jpeg: bad marker at offset %d", offset)
		}
		if offset+1 >= len(data) {
			return nil, errors.New("jpeg: truncated marker")
		}
		marker := data[offset+1]

		// Start of scan: everything from here to EOI is entropy-coded data.
		if marker == 0xDA {
			out = append(out, data[offset:]...)
			return out, nil
		}
		// Standalone markers carry no length.
		if marker == 0xD8 || marker == 0xD9 || (marker >= 0xD0 && marker <= 0xD7) {
			out = append(out, data[offset], data[offset+1])
			offset += 2
			continue
		}
		if offset+4 > len(data) {
			return nil, errors.New("jpeg: truncated segment header")
		}
		length := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		if length < 2 || offset+2+length > len(data) {
			return nil, errors.New("jpeg: invalid segment length")
		}

		drop := (marker >= 0xE1 && marker <= 0xEF) || marker == 0xFE
		if !drop {
			out = append(out, data[offset:offset+2+length]...)
		}
		offset += 2 + length
	}
	return out, nil
}

// pngKeepChunks are the critical chunks plus the few ancillary chunks needed
// for correct rendering.
var pngKeepChunks = map[string]bool{
	"IHDR": true,
	"PLTE": true,
	"IDAT": true,
	"IEND": true,
	"tRNS": true,
	"gAMA": true,
	"sRGB": true,
}

func stripPNG(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	out = append(out, pngSignature...)
	offset := len(pngSignature)

	for offset < len(data) {
		if offset+8 > len(data) {
			return nil, errors.New("png: truncated chunk header")
		}
		length := int(binary.BigEndian.Uint32(data[offset : offset+4]))
		chunkType := string(data[offset+4 : offset+8])
		end := offset + 8 + length + 4
		if length < 0 || end > len(data) {
			return nil, errors.New("png: invalid chunk length")
		}

		if pngKeepChunks[chunkType] {
			chunk := data[offset:end]
			expected := binary.BigEndian.Uint32(chunk[8+length:])
			if crc32.ChecksumIEEE(chunk[4:8+length]) != expected {
				return nil, fmt.Errorf("png: bad crc in %s chunk", chunkType)
			}
			out = append(out, chunk...)
		}
		if chunkType == "IEND" {
			return out, nil
		}
		offset = end
	}
	return nil, errors.New("png: missing IEND chunk")
}

package imagemeta

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"
)

func jpegSegment(marker byte, payload []byte) []byte {
	seg := []byte{0xFF, marker}
	seg = binary.BigEndian.AppendUint16(seg, uint16(len(payload)+2))
	return append(seg, payload...)
}

func TestStripJPEGDropsMetadataSegments(t *testing.T) {
	var img []byte
	img = append(img, 0xFF, 0xD8)
	img = append(img, jpegSegment(0xE0, []byte("JFIF\x00"))...)
	img = append(img, jpegSegment(0xE1, []byte("Exif\x00\x00secret-location"))...)
	img = append(img, jpegSegment(0xFE, []byte("made by tool"))...)
	img = append(img, jpegSegment(0xDB, bytes.Repeat([]byte{1}, 64))...)
	img = append(img, 0xFF, 0xDA, 0x00, 0x04, 0x01, 0x02)
	img = append(img, []byte{0xAA, 0xBB}...)
	img = append(img, 0xFF, 0xD9)

	out, err := Strip(img)
	if err != nil {
		t.Fatalf("Strip: %v", err)
	}
	if bytes.Contains(out, []byte("secret-location")) {
		t.Fatal("exif payload survived")
	}
	if bytes.Contains(out, []byte("made by tool")) {
		t.Fatal("comment survived")
	}
	if !bytes.Contains(out, []byte("JFIF")) {
		t.Fatal("JFIF header removed")
	}
	if out[len(out)-2] != 0xFF || out[len(out)-1] != 0xD9 {
		t.Fatal("missing EOI marker")
	}
}

func pngChunk(chunkType string, payload []byte) []byte {
	var chunk []byte
	chunk = binary.BigEndian.AppendUint32(chunk, uint32(len(payload)))
	chunk = append(chunk, chunkType...)
	chunk = append(chunk, payload...)
	return binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(chunk[4:]))
}

func TestStripPNGDropsAncillaryChunks(t *testing.T) {
	var img []byte
	img = append(img, pngSignature...)
	img = append(img, pngChunk("IHDR", bytes.Repeat([]byte{0}, 13))...)
	img = append(img, pngChunk("tEXt", []byte("Software\x00generator v1"))...)
	img = append(img, pngChunk("IDAT", []byte{1, 2, 3})...)
	img = append(img, pngChunk("IEND", nil)...)

	out, err := Strip(img)
	if err != nil {
		t.Fatalf("Strip: %v", err)
	}
	if bytes.Contains(out, []byte("generator v1")) {
		t.Fatal("text chunk survived")
	}
	if !bytes.Contains(out, []byte("IDAT")) || !bytes.Contains(out, []byte("IEND")) {
		t.Fatal("critical chunks missing")
	}
}

func TestStripPassesUnknownFormats(t *testing.T) {
	data := []byte("RIFF....WEBP")
	out, err := Strip(data)
	if err != nil {
		t.Fatalf("Strip: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatal("unknown format modified")
	}
}

func TestStripRejectsTruncatedJPEG(t *testing.T) {
	img := []byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00}
	if _, err := Strip(img); err == nil {
		t.Fatal("expected error for truncated segment")
	}
}

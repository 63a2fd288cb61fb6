package utils

import (
	"bytes"
	"fmt"
)

// MagicHeaderSize is how many leading bytes IsVideoFile needs to tell the
// recognized containers apart.
const MagicHeaderSize = 64

var (
	// ebmlMagic starts every Matroska and WebM file
	ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}
	// ftypBox is the ISO base media file type box found at offset 4
	ftypBox = []byte("ftyp")
)

// ISOBrands contains the major brands accepted for MP4-family containers.
// Browsers recording to MP4 use isom/iso5/iso6 or mp42.
var ISOBrands = [][]byte{
	[]byte("isom"),
	[]byte("iso2"),
	[]byte("iso4"),
	[]byte("iso5"),
	[]byte("iso6"),
	[]byte("mp41"),
	[]byte("mp42"),
	[]byte("avc1"),
	[]byte("dash"),
	[]byte("M4V "),
	[]byte("qt  "),
}

// IsVideoFile checks if header looks like one of the segment containers the
// recorder produces (WebM, Matroska, MP4/QuickTime) and names the format.
func IsVideoFile(header []byte) (bool, string, error) {
	if len(header) < 12 {
		return false, "", fmt.Errorf("data too short to determine file type")
	}

	if bytes.HasPrefix(header, ebmlMagic) {
		// the DocType element sits inside the EBML header
		if bytes.Contains(header[:min(len(header), MagicHeaderSize)], []byte("webm")) {
			return true, "webm", nil
		}
		return true, "mkv", nil
	}

	if bytes.Equal(header[4:8], ftypBox) {
		brand := header[8:12]
		for _, valid := range ISOBrands {
			if bytes.Equal(brand, valid) {
				if bytes.Equal(brand, []byte("qt  ")) {
					return true, "mov", nil
				}
				return true, "mp4", nil
			}
		}
	}

	return false, "", nil
}

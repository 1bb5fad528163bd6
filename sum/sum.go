package sum

import "hash/crc32"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Checksum is the crc32-Castagnoli of data.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

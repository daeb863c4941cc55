package crc

import "github.com/snksoft/crc"

// GT06 devices checksum with CRC-ITU: polynomial 0x1021, reflected, init and final xor 0xFFFF.
var ccittTable = crc.NewTable(crc.X25)

func Crc16Ccitt(data []byte) uint16 {
	return uint16(ccittTable.CalculateCRC(data))
}

// Package crc16 fingerprints texture source bytes with CRC-16/CCITT-FALSE
// (polynomial 0x1021, initial value 0xFFFF, no reflection).
package crc16

import (
	crc "github.com/sigurn/crc16"
)

var table = crc.MakeTable(crc.CRC16_CCITT_FALSE)

// Checksum returns the CRC of data.
func Checksum(data []byte) uint16 {
	return crc.Checksum(data, table)
}

// Update continues a running CRC with data.
func Update(sum uint16, data []byte) uint16 {
	return crc.Complete(crc.Update(sum, data, table), table)
}

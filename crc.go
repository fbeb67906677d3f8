package modbus

// crcTable is the CRC-16 lookup table for polynomial 0xA001 (reversed
// CRC-16-ANSI), built once at package init.
var crcTable [256]uint16

func init() {
	const polynomial = 0xA001
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for j := 0; j < 8; j++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ polynomial
			} else {
				crc >>= 1
			}
		}
		crcTable[i] = crc
	}
}

// CRC16 calculates the Modbus CRC16 checksum.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = (crc >> 8) ^ crcTable[uint8(crc)^b]
	}
	return crc
}

// AddCRC appends the CRC of frame to it, low byte first as transmitted on
// the wire.
func AddCRC(frame []byte) []byte {
	crc := CRC16(frame)
	return append(frame, byte(crc), byte(crc>>8))
}

// ValidateCRC checks the two trailing CRC bytes of a frame.
func ValidateCRC(frame []byte) bool {
	if len(frame) < crcFooterLength+1 {
		return false
	}
	dataLen := len(frame) - crcFooterLength
	received := uint16(frame[dataLen]) | uint16(frame[dataLen+1])<<8
	return CRC16(frame[:dataLen]) == received
}

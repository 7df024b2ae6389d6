package dxl

// crcTable is the lookup table for CRC-16 with polynomial 0x8005, zero initial
// value and no reflection, the variant published for the motor bus
// ("123456789" -> 0xFEE8).
var crcTable = func() [256]uint16 {
	var t [256]uint16
	for i := range t {
		crc := uint16(i) << 8
		for b := 0; b < 8; b++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x8005
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}()

// CRC16 calculates the bus checksum over data.
func CRC16(data []byte) uint16 {
	return updateCRC(0, data)
}

func updateCRC(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}

package wire

import "github.com/Neuton-tinyML/dataset-uploader/internal/checksum"

// Encode builds a complete on-wire frame: header, payload, and trailing
// CRC-16 computed over header+payload.
func Encode(packetType uint16, errorCode ErrorCode, payload []byte) []byte {
	size := HeaderSize + len(payload) + CRCSize

	buf := make([]byte, size)
	PutHeader(buf, Header{
		Preamble: Preamble,
		Type:     packetType,
		Error:    errorCode,
		Size:     uint16(size),
	})
	copy(buf[HeaderSize:], payload)

	crc := checksum.CRC16(buf[:size-CRCSize], 0)
	buf[size-2] = byte(crc)
	buf[size-1] = byte(crc >> 8)

	return buf
}

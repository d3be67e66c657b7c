// Package wire defines the on-wire packet layout shared by every
// transport: header encoding, packet kinds, the answer direction bit,
// error codes, task types, and the payload structs for each packet kind.
//
// All multi-byte integers and IEEE-754 floats are little-endian. The
// header is serialized explicitly, byte by byte, rather than by
// reinterpreting a Go struct's memory layout, so there is no dependency
// on compiler padding or host endianness.
package wire

import "encoding/binary"

// Preamble is the fixed two-byte sync word that opens every frame.
const Preamble uint16 = 0xAA55

// HeaderSize is the fixed header length in bytes: preamble, type, error, size.
const HeaderSize = 8

// CRCSize is the trailing CRC-16 length in bytes.
const CRCSize = 2

// MinPacketSize is the smallest legal packet: header plus CRC, no payload.
const MinPacketSize = HeaderSize + CRCSize

// answerBit marks a packet as a device-to-host answer rather than a
// host-to-device request.
const answerBit uint16 = 0x8000

// Kind identifies the semantic category of a packet, independent of
// direction.
type Kind uint16

const (
	KindModelInfo     Kind = 0
	KindDatasetInfo    Kind = 1
	KindDatasetSample Kind = 2
	KindPerfReport    Kind = 3
	KindError         Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindModelInfo:
		return "MODEL_INFO"
	case KindDatasetInfo:
		return "DATASET_INFO"
	case KindDatasetSample:
		return "DATASET_SAMPLE"
	case KindPerfReport:
		return "PERF_REPORT"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// RequestType builds the type field for a host-to-device request of kind k.
func RequestType(k Kind) uint16 {
	return uint16(k)
}

// AnswerType builds the type field for a device-to-host answer of kind k.
func AnswerType(k Kind) uint16 {
	return uint16(k) | answerBit
}

// IsAnswer reports whether a type field's direction bit marks it as an answer.
func IsAnswer(t uint16) bool {
	return t&answerBit != 0
}

// KindOf strips the direction bit and returns the packet kind.
func KindOf(t uint16) Kind {
	return Kind(t &^ answerBit)
}

// ErrorCode is the header.error field; meaningful only on answers.
type ErrorCode uint16

const (
	ErrorSuccess     ErrorCode = 0
	ErrorInvalidSize ErrorCode = 1
	ErrorNoMemory    ErrorCode = 2
	ErrorSendAgain   ErrorCode = 3
)

func (e ErrorCode) String() string {
	switch e {
	case ErrorSuccess:
		return "SUCCESS"
	case ErrorInvalidSize:
		return "INVALID_SIZE"
	case ErrorNoMemory:
		return "NO_MEMORY"
	case ErrorSendAgain:
		return "SEND_AGAIN"
	default:
		return "UNKNOWN"
	}
}

// TaskType is the device-declared model task, carried in the MODEL_INFO answer.
type TaskType uint32

const (
	TaskBinaryClassification     TaskType = 0
	TaskMulticlassClassification TaskType = 1
	TaskRegression               TaskType = 2
)

// Header is the fixed 8-byte packet header.
type Header struct {
	Preamble uint16
	Type     uint16
	Error    ErrorCode
	Size     uint16 // total packet length, header+payload+CRC
}

// PutHeader encodes h into the first HeaderSize bytes of dst.
func PutHeader(dst []byte, h Header) {
	binary.LittleEndian.PutUint16(dst[0:2], h.Preamble)
	binary.LittleEndian.PutUint16(dst[2:4], h.Type)
	binary.LittleEndian.PutUint16(dst[4:6], uint16(h.Error))
	binary.LittleEndian.PutUint16(dst[6:8], h.Size)
}

// ParseHeader decodes the first HeaderSize bytes of src into a Header.
// Caller must ensure len(src) >= HeaderSize.
func ParseHeader(src []byte) Header {
	return Header{
		Preamble: binary.LittleEndian.Uint16(src[0:2]),
		Type:     binary.LittleEndian.Uint16(src[2:4]),
		Error:    ErrorCode(binary.LittleEndian.Uint16(src[4:6])),
		Size:     binary.LittleEndian.Uint16(src[6:8]),
	}
}

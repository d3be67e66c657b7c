package wire

import (
	"encoding/binary"
	"math"
)

// ModelInfo is the payload of a MODEL_INFO answer.
type ModelInfo struct {
	ColumnsCount uint32
	TaskType     TaskType
}

// ModelInfoSize is the encoded size of ModelInfo in bytes.
const ModelInfoSize = 8

// DecodeModelInfo parses a ModelInfo payload. Caller must ensure
// len(payload) >= ModelInfoSize.
func DecodeModelInfo(payload []byte) ModelInfo {
	return ModelInfo{
		ColumnsCount: binary.LittleEndian.Uint32(payload[0:4]),
		TaskType:     TaskType(binary.LittleEndian.Uint32(payload[4:8])),
	}
}

// EncodeModelInfo appends the encoded ModelInfo to dst and returns the result.
func EncodeModelInfo(dst []byte, mi ModelInfo) []byte {
	var buf [ModelInfoSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], mi.ColumnsCount)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(mi.TaskType))
	return append(dst, buf[:]...)
}

// DatasetInfo is the payload of a DATASET_INFO request.
type DatasetInfo struct {
	ColumnsCount     uint32
	ReverseByteOrder uint8
}

// DatasetInfoSize is the encoded size of DatasetInfo in bytes.
const DatasetInfoSize = 5

// EncodeDatasetInfo appends the encoded DatasetInfo to dst and returns the result.
func EncodeDatasetInfo(dst []byte, di DatasetInfo) []byte {
	var buf [DatasetInfoSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], di.ColumnsCount)
	buf[4] = di.ReverseByteOrder
	return append(dst, buf[:]...)
}

// PerfReport is the payload of a PERF_REPORT answer.
type PerfReport struct {
	Freq        uint32
	FlashUsage  uint32
	RAMUsage    uint32
	RAMUsageCur uint32
	BufferSize  uint32
	USSampleMin float32
	USSampleMax float32
	USSampleAvg float32
}

// PerfReportSize is the encoded size of PerfReport in bytes.
const PerfReportSize = 5*4 + 3*4

// DecodePerfReport parses a PerfReport payload. Caller must ensure
// len(payload) >= PerfReportSize.
func DecodePerfReport(payload []byte) PerfReport {
	return PerfReport{
		Freq:        binary.LittleEndian.Uint32(payload[0:4]),
		FlashUsage:  binary.LittleEndian.Uint32(payload[4:8]),
		RAMUsage:    binary.LittleEndian.Uint32(payload[8:12]),
		RAMUsageCur: binary.LittleEndian.Uint32(payload[12:16]),
		BufferSize:  binary.LittleEndian.Uint32(payload[16:20]),
		USSampleMin: decodeFloat32(payload[20:24]),
		USSampleMax: decodeFloat32(payload[24:28]),
		USSampleAvg: decodeFloat32(payload[28:32]),
	}
}

// EncodePerfReport appends the encoded PerfReport to dst and returns the result.
func EncodePerfReport(dst []byte, pr PerfReport) []byte {
	var buf [PerfReportSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], pr.Freq)
	binary.LittleEndian.PutUint32(buf[4:8], pr.FlashUsage)
	binary.LittleEndian.PutUint32(buf[8:12], pr.RAMUsage)
	binary.LittleEndian.PutUint32(buf[12:16], pr.RAMUsageCur)
	binary.LittleEndian.PutUint32(buf[16:20], pr.BufferSize)
	putFloat32(buf[20:24], pr.USSampleMin)
	putFloat32(buf[24:28], pr.USSampleMax)
	putFloat32(buf[28:32], pr.USSampleAvg)
	return append(dst, buf[:]...)
}

// EncodeSample appends columns as little-endian IEEE-754 float32s to dst
// and returns the result. Used for both DATASET_SAMPLE requests (host
// columns) and their answers (device prediction columns).
func EncodeSample(dst []byte, columns []float32) []byte {
	for _, v := range columns {
		var b [4]byte
		putFloat32(b[:], v)
		dst = append(dst, b[:]...)
	}
	return dst
}

// DecodeSample decodes n float32 columns from payload. Caller must
// ensure len(payload) >= n*4.
func DecodeSample(payload []byte, n int) []float32 {
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = decodeFloat32(payload[i*4 : i*4+4])
	}
	return out
}

func decodeFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func putFloat32(dst []byte, v float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
}

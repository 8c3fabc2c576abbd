package dlq

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/nr-labs/nrdot-core/record"
)

// HeaderSize is the fixed-width frame header: 1 byte kind tag, 8 bytes
// big-endian ingress timestamp (UnixNano), 8 bytes big-endian body size.
const HeaderSize = 17

// MaxBodySize bounds a single frame's body, matching record.MaxRecordBytes
// plus slack for attribute encoding.
const MaxBodySize = record.MaxRecordBytes + 1<<20

// EncodeRecord serializes a Record into a self-describing frame: the fixed
// header followed by the class/debug flags, the attribute set, and the
// payload. This replaces the teacher's serialization.go, whose
// SerializeMetrics/SerializeTraces/SerializeLogs each wrote a fixed-size
// placeholder body instead of the real record.
func EncodeRecord(r record.Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	body.WriteByte(byte(r.Class))
	if r.Debug {
		body.WriteByte(1)
	} else {
		body.WriteByte(0)
	}

	names := r.Attributes.SortedNames()
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(names)))
	body.Write(countBuf[:])

	for _, name := range names {
		val := r.Attributes[name]
		if err := encodeAttr(&body, name, val); err != nil {
			return nil, err
		}
	}

	var payloadLen [8]byte
	binary.BigEndian.PutUint64(payloadLen[:], uint64(len(r.Payload)))
	body.Write(payloadLen[:])
	body.Write(r.Payload)

	header := make([]byte, HeaderSize)
	header[0] = byte(r.Kind)
	binary.BigEndian.PutUint64(header[1:9], uint64(r.IngressNanos))
	binary.BigEndian.PutUint64(header[9:17], uint64(body.Len()))

	out := make([]byte, 0, len(header)+body.Len())
	out = append(out, header...)
	out = append(out, body.Bytes()...)
	return out, nil
}

// DecodeRecord parses a frame previously produced by EncodeRecord.
func DecodeRecord(data []byte) (record.Record, error) {
	if len(data) < HeaderSize {
		return record.Record{}, fmt.Errorf("dlq: frame too short for header: %d bytes", len(data))
	}

	kind := record.Kind(data[0])
	ingressNanos := int64(binary.BigEndian.Uint64(data[1:9]))
	bodySize := binary.BigEndian.Uint64(data[9:17])
	if bodySize > MaxBodySize {
		return record.Record{}, fmt.Errorf("dlq: frame body size %d exceeds max %d", bodySize, MaxBodySize)
	}
	body := data[HeaderSize:]
	if uint64(len(body)) != bodySize {
		return record.Record{}, fmt.Errorf("dlq: frame body size mismatch: header says %d, got %d", bodySize, len(body))
	}

	r := bytes.NewReader(body)

	class, err := r.ReadByte()
	if err != nil {
		return record.Record{}, fmt.Errorf("dlq: reading class: %w", err)
	}
	debugByte, err := r.ReadByte()
	if err != nil {
		return record.Record{}, fmt.Errorf("dlq: reading debug flag: %w", err)
	}

	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return record.Record{}, fmt.Errorf("dlq: reading attribute count: %w", err)
	}
	count := binary.BigEndian.Uint32(countBuf[:])

	attrs := make(record.AttributeSet, count)
	for i := uint32(0); i < count; i++ {
		name, val, err := decodeAttr(r)
		if err != nil {
			return record.Record{}, fmt.Errorf("dlq: reading attribute %d: %w", i, err)
		}
		attrs[name] = val
	}

	var payloadLenBuf [8]byte
	if _, err := io.ReadFull(r, payloadLenBuf[:]); err != nil {
		return record.Record{}, fmt.Errorf("dlq: reading payload length: %w", err)
	}
	payloadLen := binary.BigEndian.Uint64(payloadLenBuf[:])
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return record.Record{}, fmt.Errorf("dlq: reading payload: %w", err)
	}

	return record.Record{
		Kind:         kind,
		IngressNanos: ingressNanos,
		Attributes:   attrs,
		Class:        record.Class(class),
		Debug:        debugByte != 0,
		Payload:      payload,
	}, nil
}

func encodeAttr(buf *bytes.Buffer, name string, val record.AttrValue) error {
	var nameLen [2]byte
	binary.BigEndian.PutUint16(nameLen[:], uint16(len(name)))
	buf.Write(nameLen[:])
	buf.WriteString(name)
	buf.WriteByte(byte(val.Kind()))

	switch val.Kind() {
	case record.AttrString:
		s := val.AsString()
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(s)))
		buf.Write(l[:])
		buf.WriteString(s)
	case record.AttrInt:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(val.AsInt()))
		buf.Write(b[:])
	case record.AttrFloat:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(val.AsFloat()))
		buf.Write(b[:])
	case record.AttrBool:
		if val.AsBool() {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	default:
		return fmt.Errorf("dlq: unknown attribute kind %d for %q", val.Kind(), name)
	}
	return nil
}

func decodeAttr(r *bytes.Reader) (string, record.AttrValue, error) {
	var nameLen [2]byte
	if _, err := io.ReadFull(r, nameLen[:]); err != nil {
		return "", record.AttrValue{}, err
	}
	nameBuf := make([]byte, binary.BigEndian.Uint16(nameLen[:]))
	if _, err := io.ReadFull(r, nameBuf); err != nil {
		return "", record.AttrValue{}, err
	}
	name := string(nameBuf)

	kindByte, err := r.ReadByte()
	if err != nil {
		return "", record.AttrValue{}, err
	}

	switch record.AttrKind(kindByte) {
	case record.AttrString:
		var l [4]byte
		if _, err := io.ReadFull(r, l[:]); err != nil {
			return "", record.AttrValue{}, err
		}
		s := make([]byte, binary.BigEndian.Uint32(l[:]))
		if _, err := io.ReadFull(r, s); err != nil {
			return "", record.AttrValue{}, err
		}
		return name, record.StringAttr(string(s)), nil
	case record.AttrInt:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", record.AttrValue{}, err
		}
		return name, record.IntAttr(int64(binary.BigEndian.Uint64(b[:]))), nil
	case record.AttrFloat:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", record.AttrValue{}, err
		}
		return name, record.FloatAttr(math.Float64frombits(binary.BigEndian.Uint64(b[:]))), nil
	case record.AttrBool:
		bb, err := r.ReadByte()
		if err != nil {
			return "", record.AttrValue{}, err
		}
		return name, record.BoolAttr(bb != 0), nil
	default:
		return "", record.AttrValue{}, fmt.Errorf("dlq: unknown attribute kind byte %d", kindByte)
	}
}

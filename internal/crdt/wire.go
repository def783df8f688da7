package crdt

import (
	"encoding/binary"
	"fmt"

	"github.com/openworld-client/realm-runtime/internal/types"
)

// headerSize is the fixed portion of a wire frame:
// [u32 len | u32 op_kind | u32 component | u32 entity | u64 lamport].
const headerSize = 4 + 4 + 4 + 4 + 8

// Encode serialises op into the fixed CRDT wire frame described in spec
// §4.D. len is the byte count of everything following the length field
// itself.
func Encode(op Operation) []byte {
	body := make([]byte, headerSize-4+len(op.Value))
	binary.BigEndian.PutUint32(body[0:4], uint32(op.Kind))
	binary.BigEndian.PutUint32(body[4:8], uint32(op.Component))
	binary.BigEndian.PutUint32(body[8:12], uint32(op.Entity))
	binary.BigEndian.PutUint64(body[12:20], op.Lamport)
	copy(body[20:], op.Value)

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(body)))
	copy(frame[4:], body)
	return frame
}

// Decode parses one wire frame and returns the trailing unconsumed bytes.
// It returns an error if frame is shorter than the declared length.
func Decode(frame []byte) (Operation, []byte, error) {
	if len(frame) < 4 {
		return Operation{}, nil, fmt.Errorf("crdt: frame too short for length prefix: %d bytes", len(frame))
	}
	bodyLen := binary.BigEndian.Uint32(frame[0:4])
	if uint32(len(frame)-4) < bodyLen {
		return Operation{}, nil, fmt.Errorf("crdt: declared length %d exceeds available %d bytes", bodyLen, len(frame)-4)
	}
	body := frame[4 : 4+bodyLen]
	rest := frame[4+bodyLen:]

	if len(body) < headerSize-4 {
		return Operation{}, nil, fmt.Errorf("crdt: frame body too short: %d bytes", len(body))
	}

	op := Operation{
		Kind:      OpKind(binary.BigEndian.Uint32(body[0:4])),
		Component: ComponentId(binary.BigEndian.Uint32(body[4:8])),
		Entity:    types.SceneEntityId(binary.BigEndian.Uint32(body[8:12])),
		Lamport:   binary.BigEndian.Uint64(body[12:20]),
	}
	if len(body) > headerSize-4 {
		value := make([]byte, len(body)-(headerSize-4))
		copy(value, body[headerSize-4:])
		op.Value = value
	}
	return op, rest, nil
}

// DecodeAll decodes every frame in buf, stopping at the first undersized
// trailing frame (a partial frame awaiting more bytes on the wire).
func DecodeAll(buf []byte) ([]Operation, []byte, error) {
	var ops []Operation
	for len(buf) > 0 {
		if len(buf) < 4 {
			break
		}
		bodyLen := binary.BigEndian.Uint32(buf[0:4])
		if uint32(len(buf)-4) < bodyLen {
			break
		}
		op, rest, err := Decode(buf)
		if err != nil {
			return ops, buf, err
		}
		ops = append(ops, op)
		buf = rest
	}
	return ops, buf, nil
}

// Package wire encodes control commands as FlatBuffers tables for telemetry.
//
// Table ControlCommand:
//
//	timestamp_ns: long  (slot 0)
//	speed:        int   (slot 1)
//	turn:         int   (slot 2)
//	stop:         bool  (slot 3)
package wire

import (
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
)

// ErrMalformed is returned for buffers that do not hold a ControlCommand.
var ErrMalformed = errors.New("malformed ControlCommand buffer")

const (
	slotTimestampNs = iota
	slotSpeed
	slotTurn
	slotStop
	numSlots
)

// fieldSizes are the inline sizes of the fields, by slot.
var fieldSizes = [numSlots]int{8, 4, 4, 1}

// Command is the decoded form of a ControlCommand table.
type Command struct {
	TimestampNs int64
	Speed       int32
	Turn        int32
	Stop        bool
}

// EncodeCommand serialises cmd into a finished buffer owned by the caller.
func EncodeCommand(cmd Command) []byte {
	b := flatbuffers.NewBuilder(64)

	b.StartObject(numSlots)
	b.PrependInt64Slot(slotTimestampNs, cmd.TimestampNs, 0)
	b.PrependInt32Slot(slotSpeed, cmd.Speed, 0)
	b.PrependInt32Slot(slotTurn, cmd.Turn, 0)
	b.PrependBoolSlot(slotStop, cmd.Stop, false)
	b.Finish(b.EndObject())

	return b.FinishedBytes()
}

// DecodeCommand reads a buffer produced by EncodeCommand. Absent fields
// decode to their zero values. Offsets are bounds-checked first, so
// truncated or foreign input yields ErrMalformed instead of a panic.
func DecodeCommand(buf []byte) (Command, error) {
	pos, err := tablePos(buf)
	if err != nil {
		return Command{}, err
	}

	t := flatbuffers.Table{Bytes: buf, Pos: pos}
	return Command{
		TimestampNs: t.GetInt64Slot(vtableOffset(slotTimestampNs), 0),
		Speed:       t.GetInt32Slot(vtableOffset(slotSpeed), 0),
		Turn:        t.GetInt32Slot(vtableOffset(slotTurn), 0),
		Stop:        t.GetBoolSlot(vtableOffset(slotStop), false),
	}, nil
}

// tablePos validates the root table, its vtable and every field the decoder
// reads, and returns the root table position.
func tablePos(buf []byte) (flatbuffers.UOffsetT, error) {
	if len(buf) < flatbuffers.SizeUOffsetT {
		return 0, fmt.Errorf("%w: %d bytes", ErrMalformed, len(buf))
	}

	pos := int(flatbuffers.GetUOffsetT(buf))
	if pos+flatbuffers.SizeSOffsetT > len(buf) {
		return 0, fmt.Errorf("%w: root offset %d out of range", ErrMalformed, pos)
	}

	vt := pos - int(flatbuffers.GetSOffsetT(buf[pos:]))
	if vt < 0 || vt+2*flatbuffers.SizeVOffsetT > len(buf) {
		return 0, fmt.Errorf("%w: vtable offset %d out of range", ErrMalformed, vt)
	}

	vtSize := int(flatbuffers.GetVOffsetT(buf[vt:]))
	tableSize := int(flatbuffers.GetVOffsetT(buf[vt+flatbuffers.SizeVOffsetT:]))
	if vtSize < 2*flatbuffers.SizeVOffsetT || vtSize%flatbuffers.SizeVOffsetT != 0 || vt+vtSize > len(buf) || pos+tableSize > len(buf) {
		return 0, fmt.Errorf("%w: vtable or table overruns buffer", ErrMalformed)
	}

	for slot, size := range fieldSizes {
		entry := int(vtableOffset(slot))
		if entry+flatbuffers.SizeVOffsetT > vtSize {
			continue
		}
		off := int(flatbuffers.GetVOffsetT(buf[vt+entry:]))
		if off != 0 && off+size > tableSize {
			return 0, fmt.Errorf("%w: field %d overruns table", ErrMalformed, slot)
		}
	}
	return flatbuffers.UOffsetT(pos), nil
}

// vtableOffset maps a field slot to its vtable entry: the vtable starts with
// its own size and the table size, two bytes each.
func vtableOffset(slot int) flatbuffers.VOffsetT {
	return flatbuffers.VOffsetT(4 + 2*slot)
}

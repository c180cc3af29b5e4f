// Package wire implements the length-prefixed framing that Controller and
// Worker processes speak over TCP.
//
// Every frame starts with a 4-byte little-endian length prefix covering the
// whole frame (prefix included). The body is one or more NUL-terminated
// strings followed by a trailing uint32, mirroring the original C
// serialize_client_message/serialize_server_message layout.
package wire

import (
	"encoding/binary"
	"fmt"
)

// MaxTaskNameLen is the largest usable task/worker identifier length,
// including the trailing NUL (strlen <= MaxTaskNameLen-1).
const MaxTaskNameLen = 32

const lenPrefixSize = 4

// MaxClientMsgLen bounds a StatusFrame: two cstrings plus a trailing u32.
const MaxClientMsgLen = MaxTaskNameLen + MaxTaskNameLen + 4

// MaxServerMsgLen bounds an AssignFrame: one cstring plus a trailing u32.
const MaxServerMsgLen = MaxTaskNameLen + 4

// ProtocolError indicates a frame could not be encoded or decoded safely.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wire: protocol error: %s", e.Reason)
}

func protoErr(format string, args ...interface{}) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// StatusFrame is the Worker->Controller frame reporting worker identity,
// current task, and time remaining on it.
type StatusFrame struct {
	WorkerID string
	TaskName string
	TimeLeft uint32
}

// Idle reports whether this status frame represents the "give me work" idle
// handshake (empty task name, nothing left to do).
func (f StatusFrame) Idle() bool {
	return f.TaskName == "" && f.TimeLeft == 0
}

// AssignFrame is the Controller->Worker frame carrying a task assignment, or
// an empty task name to signal the worker should exit.
type AssignFrame struct {
	TaskName  string
	SleepTime uint32
}

// Exit reports whether this assignment tells the worker to terminate.
func (f AssignFrame) Exit() bool {
	return f.TaskName == ""
}

func encodeCString(buf []byte, s string) ([]byte, error) {
	if len(s) > MaxTaskNameLen-1 {
		return nil, protoErr("identifier %q exceeds %d bytes", s, MaxTaskNameLen-1)
	}
	buf = append(buf, s...)
	buf = append(buf, 0)
	return buf, nil
}

// EncodeStatus serializes a StatusFrame into a single contiguous buffer,
// length prefix included.
func EncodeStatus(f StatusFrame) ([]byte, error) {
	body := make([]byte, 0, MaxClientMsgLen)
	var err error
	body, err = encodeCString(body, f.WorkerID)
	if err != nil {
		return nil, err
	}
	body, err = encodeCString(body, f.TaskName)
	if err != nil {
		return nil, err
	}
	tail := make([]byte, 4)
	binary.LittleEndian.PutUint32(tail, f.TimeLeft)
	body = append(body, tail...)

	total := lenPrefixSize + len(body)
	if total > MaxClientMsgLen {
		return nil, protoErr("encoded status frame of %d bytes exceeds MaxClientMsgLen", total)
	}
	out := make([]byte, 0, total)
	lp := make([]byte, 4)
	binary.LittleEndian.PutUint32(lp, uint32(total))
	out = append(out, lp...)
	out = append(out, body...)
	return out, nil
}

// EncodeAssign serializes an AssignFrame into a single contiguous buffer,
// length prefix included.
func EncodeAssign(f AssignFrame) ([]byte, error) {
	body := make([]byte, 0, MaxServerMsgLen)
	var err error
	body, err = encodeCString(body, f.TaskName)
	if err != nil {
		return nil, err
	}
	tail := make([]byte, 4)
	binary.LittleEndian.PutUint32(tail, f.SleepTime)
	body = append(body, tail...)

	total := lenPrefixSize + len(body)
	if total > MaxServerMsgLen {
		return nil, protoErr("encoded assign frame of %d bytes exceeds MaxServerMsgLen", total)
	}
	out := make([]byte, 0, total)
	lp := make([]byte, 4)
	binary.LittleEndian.PutUint32(lp, uint32(total))
	out = append(out, lp...)
	out = append(out, body...)
	return out, nil
}

// DecodeLen reads a 4-byte little-endian length prefix.
func DecodeLen(prefix []byte) (uint32, error) {
	if len(prefix) != lenPrefixSize {
		return 0, protoErr("length prefix must be %d bytes, got %d", lenPrefixSize, len(prefix))
	}
	return binary.LittleEndian.Uint32(prefix), nil
}

// scanCString finds a NUL terminator within buf[0:maxLen], returning the
// string and the number of bytes consumed including the terminator.
func scanCString(buf []byte, maxLen int) (string, int, error) {
	limit := maxLen
	if limit > len(buf) {
		limit = len(buf)
	}
	for i := 0; i < limit; i++ {
		if buf[i] == 0 {
			return string(buf[:i]), i + 1, nil
		}
	}
	return "", 0, protoErr("cstring not NUL-terminated within %d bytes", maxLen)
}

// DecodeStatus parses a full status frame body (length prefix already
// consumed; declaredLen is the value from that prefix, used to bound the
// decode and reject oversized frames).
func DecodeStatus(body []byte, declaredLen uint32) (StatusFrame, error) {
	if declaredLen > MaxClientMsgLen {
		return StatusFrame{}, protoErr("declared length %d exceeds MaxClientMsgLen %d", declaredLen, MaxClientMsgLen)
	}
	if int(declaredLen)-lenPrefixSize != len(body) {
		return StatusFrame{}, protoErr("declared length %d does not match body of %d bytes", declaredLen, len(body))
	}

	worker, n1, err := scanCString(body, MaxTaskNameLen)
	if err != nil {
		return StatusFrame{}, err
	}
	rest := body[n1:]

	task, n2, err := scanCString(rest, MaxTaskNameLen)
	if err != nil {
		return StatusFrame{}, err
	}
	rest = rest[n2:]

	if len(rest) != 4 {
		return StatusFrame{}, protoErr("expected 4 trailing bytes, got %d", len(rest))
	}
	timeLeft := binary.LittleEndian.Uint32(rest)

	return StatusFrame{WorkerID: worker, TaskName: task, TimeLeft: timeLeft}, nil
}

// DecodeAssign parses a full assign frame body (length prefix already
// consumed; declaredLen is the value from that prefix).
func DecodeAssign(body []byte, declaredLen uint32) (AssignFrame, error) {
	if declaredLen > MaxServerMsgLen {
		return AssignFrame{}, protoErr("declared length %d exceeds MaxServerMsgLen %d", declaredLen, MaxServerMsgLen)
	}
	if int(declaredLen)-lenPrefixSize != len(body) {
		return AssignFrame{}, protoErr("declared length %d does not match body of %d bytes", declaredLen, len(body))
	}

	task, n1, err := scanCString(body, MaxTaskNameLen)
	if err != nil {
		return AssignFrame{}, err
	}
	rest := body[n1:]

	if len(rest) != 4 {
		return AssignFrame{}, protoErr("expected 4 trailing bytes, got %d", len(rest))
	}
	sleepTime := binary.LittleEndian.Uint32(rest)

	return AssignFrame{TaskName: task, SleepTime: sleepTime}, nil
}

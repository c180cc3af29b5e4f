package wire

import (
	"io"
)

// ReadFrame reads one length-prefixed frame from r and returns the declared
// length and the body that follows the prefix (length prefix not included).
// Unlike the original single-read-per-field decoder, this buffers on short
// reads, which changes nothing observable about the wire protocol.
func ReadFrame(r io.Reader, maxLen uint32) (declaredLen uint32, body []byte, err error) {
	prefix := make([]byte, lenPrefixSize)
	if _, err = io.ReadFull(r, prefix); err != nil {
		return 0, nil, err
	}
	declaredLen, err = DecodeLen(prefix)
	if err != nil {
		return 0, nil, err
	}
	if declaredLen > maxLen {
		return 0, nil, protoErr("declared length %d exceeds max %d", declaredLen, maxLen)
	}
	if declaredLen < lenPrefixSize {
		return 0, nil, protoErr("declared length %d shorter than prefix", declaredLen)
	}
	body = make([]byte, declaredLen-lenPrefixSize)
	if _, err = io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return declaredLen, body, nil
}

// WriteFrame writes a pre-encoded frame (as produced by EncodeStatus or
// EncodeAssign) in a single Write call.
func WriteFrame(w io.Writer, frame []byte) error {
	_, err := w.Write(frame)
	return err
}

// ReadStatus reads and decodes one StatusFrame from r.
func ReadStatus(r io.Reader) (StatusFrame, error) {
	declaredLen, body, err := ReadFrame(r, MaxClientMsgLen)
	if err != nil {
		return StatusFrame{}, err
	}
	return DecodeStatus(body, declaredLen)
}

// ReadAssign reads and decodes one AssignFrame from r.
func ReadAssign(r io.Reader) (AssignFrame, error) {
	declaredLen, body, err := ReadFrame(r, MaxServerMsgLen)
	if err != nil {
		return AssignFrame{}, err
	}
	return DecodeAssign(body, declaredLen)
}

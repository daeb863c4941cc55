package gt06

import (
	"bufio"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	errs "github.com/404minds/gt06-receiver/internal/errors"
)

// ReadFrame returns the next complete frame from the stream, header and stop bits included.
//
// Bytes preceding a header are discarded. A frame that does not end in 0x0D 0x0A returns
// errs.ErrMalformedFrame after consuming only its header, so the next call resynchronises on whatever
// follows. Stream errors (io.EOF included) are returned unchanged.
func ReadFrame(reader *bufio.Reader) ([]byte, error) {
	skipped := 0
	for {
		header, err := reader.Peek(2)
		if err != nil {
			return nil, err
		}
		if header[0] == 0x78 && header[1] == 0x78 {
			break
		}
		_, _ = reader.Discard(1)
		skipped++
	}
	if skipped > 0 {
		logger.Warn("discarded bytes before frame header", zap.Int("bytes", skipped))
	}

	prefix, err := reader.Peek(3)
	if err != nil {
		return nil, err
	}
	frameLength := 3 + int(prefix[2]) + 2

	data, err := reader.Peek(frameLength)
	if err != nil {
		return nil, err
	}
	if data[frameLength-2] != 0x0d || data[frameLength-1] != 0x0a {
		_, _ = reader.Discard(2)
		return nil, errors.Wrapf(errs.ErrMalformedFrame, "missing stop bits after %d byte frame", frameLength)
	}

	frame := make([]byte, frameLength)
	copy(frame, data)
	_, _ = reader.Discard(frameLength)
	return frame, nil
}

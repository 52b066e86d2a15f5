package stream

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteRange is an inclusive [Start, End] span of a file's bytes.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Len() int64 { return r.End - r.Start + 1 }

// ContentRange returns the Content-Range header value for a 206 response.
func (r ByteRange) ContentRange(fileSize int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, fileSize)
}

// UnsatisfiableContentRange is the Content-Range value a 416 response
// must carry.
func UnsatisfiableContentRange(fileSize int64) string {
	return fmt.Sprintf("bytes */%d", fileSize)
}

// ParseRange resolves an optional Range header against a known file size.
// The second return value reports whether the response must be partial
// (206). Supports "bytes=a-b", "bytes=a-" and the suffix form "bytes=-n";
// multiple ranges are rejected. An end past the file is clipped to the
// last byte, per RFC 7233.
func ParseRange(rangeHeader string, fileSize int64) (ByteRange, bool, error) {
	if rangeHeader == "" {
		return ByteRange{Start: 0, End: fileSize - 1}, false, nil
	}

	if fileSize <= 0 {
		return ByteRange{}, false, ErrInvalidRange
	}

	const prefix = "bytes="
	if !strings.HasPrefix(rangeHeader, prefix) {
		return ByteRange{}, false, fmt.Errorf("%w: missing bytes unit", ErrInvalidRange)
	}

	spec := strings.TrimSpace(strings.TrimPrefix(rangeHeader, prefix))
	if strings.Contains(spec, ",") {
		return ByteRange{}, false, fmt.Errorf("%w: multiple ranges not supported", ErrInvalidRange)
	}

	parts := strings.Split(spec, "-")
	if len(parts) != 2 {
		return ByteRange{}, false, fmt.Errorf("%w: malformed range spec", ErrInvalidRange)
	}

	var start, end int64
	var err error

	if parts[0] == "" {
		// Suffix form: last n bytes.
		suffix, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || suffix <= 0 {
			return ByteRange{}, false, fmt.Errorf("%w: bad suffix length", ErrInvalidRange)
		}
		if suffix > fileSize {
			suffix = fileSize
		}
		return ByteRange{Start: fileSize - suffix, End: fileSize - 1}, true, nil
	}

	start, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ByteRange{}, false, fmt.Errorf("%w: bad range start", ErrInvalidRange)
	}

	if parts[1] == "" {
		end = fileSize - 1
	} else {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return ByteRange{}, false, fmt.Errorf("%w: bad range end", ErrInvalidRange)
		}
		if end >= fileSize {
			end = fileSize - 1
		}
	}

	if start < 0 || start > end || start >= fileSize {
		return ByteRange{}, false, fmt.Errorf("%w: %d-%d against size %d", ErrInvalidRange, start, end, fileSize)
	}

	return ByteRange{Start: start, End: end}, true, nil
}

package stream

import (
	"context"
	"io"
)

// Location identifies a blob inside the backing store. It is produced by
// the store adapter during resolution and passed back verbatim on
// download; the streaming core never inspects it.
type Location interface{}

// FileMeta is the resolved description of a stored blob.
type FileMeta struct {
	Location Location
	Size     int64
	MimeType string
	Name     string
}

// ProgressFunc reports download or upload progress as (bytes done, total).
type ProgressFunc func(received, total int64)

// BlobClient is the capability surface the streaming core needs from the
// backing message store. Implementations must be safe for concurrent
// read-only use across sessions.
type BlobClient interface {
	// ResolveMessage looks up the blob attached to a stored message.
	ResolveMessage(ctx context.Context, msgID int) (*FileMeta, error)

	// DownloadRange fetches one bounded chunk. It returns exactly limit
	// bytes except at end of file.
	DownloadRange(ctx context.Context, loc Location, offset, limit int64) ([]byte, error)

	// UploadFile stores a new blob and returns the id of the message
	// holding it.
	UploadFile(ctx context.Context, name string, r io.Reader, size int64, progress ProgressFunc) (int, error)

	// IsAuthorized reports whether the session behind the client is live.
	IsAuthorized(ctx context.Context) (bool, error)
}

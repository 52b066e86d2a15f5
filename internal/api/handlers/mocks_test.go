package handlers

import (
	"context"
	"fmt"
	"io"
	"sync"

	"teledrive/internal/stream"
)

// fakeBlob is an in-memory message store keyed by message id.
type fakeBlob struct {
	mu      sync.Mutex
	blobs   map[int][]byte
	names   map[int]string
	mimes   map[int]string
	nextID     int
	resolveErr error
	downErr    error
	upErr      error
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{
		blobs:  map[int][]byte{},
		names:  map[int]string{},
		mimes:  map[int]string{},
		nextID: 100,
	}
}

func (f *fakeBlob) put(msgID int, name, mime string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[msgID] = data
	f.names[msgID] = name
	f.mimes[msgID] = mime
}

func (f *fakeBlob) ResolveMessage(_ context.Context, msgID int) (*stream.FileMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	data, ok := f.blobs[msgID]
	if !ok {
		return nil, stream.ErrNotFound
	}
	return &stream.FileMeta{
		Location: msgID,
		Size:     int64(len(data)),
		Name:     f.names[msgID],
		MimeType: f.mimes[msgID],
	}, nil
}

func (f *fakeBlob) DownloadRange(_ context.Context, loc stream.Location, offset, limit int64) ([]byte, error) {
	if f.downErr != nil {
		return nil, f.downErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[loc.(int)]
	if !ok {
		return nil, stream.ErrNotFound
	}
	if offset+limit > int64(len(data)) {
		return nil, fmt.Errorf("out of bounds read")
	}
	return data[offset : offset+limit], nil
}

func (f *fakeBlob) UploadFile(_ context.Context, name string, r io.Reader, size int64, progress stream.ProgressFunc) (int, error) {
	if f.upErr != nil {
		return 0, f.upErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	if progress != nil {
		progress(int64(len(data)), size)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.blobs[f.nextID] = data
	f.names[f.nextID] = name
	return f.nextID, nil
}

func (f *fakeBlob) IsAuthorized(context.Context) (bool, error) { return true, nil }

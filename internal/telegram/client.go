package telegram

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"

	"teledrive/internal/stream"
)

// connectRetryAfter is advertised to clients while the MTProto session is
// still establishing.
const connectRetryAfter = 10 * time.Second

// Config holds the Telegram session parameters.
type Config struct {
	APIID       int
	APIHash     string
	SessionFile string
}

// Client adapts a gotd MTProto session to the stream.BlobClient
// capability. Stored files live as document messages in the account's
// saved messages; gotd multiplexes concurrent requests over the single
// connection, so no extra arbitration is needed here.
type Client struct {
	client *telegram.Client
	api    *tg.Client
	log    zerolog.Logger
	ready  chan struct{}
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	c := &Client{
		log:   log,
		ready: make(chan struct{}),
	}
	c.client = telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionFile},
	})
	return c
}

// Run connects and blocks until ctx is canceled. Capability calls made
// before the connection is up fail with a transient error carrying the
// advisory retry delay.
func (c *Client) Run(ctx context.Context) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		c.api = c.client.API()
		close(c.ready)
		c.log.Info().Msg("Telegram session connected")
		<-ctx.Done()
		return ctx.Err()
	})
}

func (c *Client) connected() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

func notReady() error {
	return &stream.TransientError{
		Wait: connectRetryAfter,
		Err:  fmt.Errorf("telegram session still connecting"),
	}
}

// ResolveMessage loads the message and extracts its document: size, mime
// hint, file name and the download location.
func (c *Client) ResolveMessage(ctx context.Context, msgID int) (*stream.FileMeta, error) {
	if !c.connected() {
		return nil, notReady()
	}

	res, err := c.api.MessagesGetMessages(ctx, []tg.InputMessageClass{
		&tg.InputMessageID{ID: msgID},
	})
	if err != nil {
		return nil, c.wrap(err)
	}

	var list []tg.MessageClass
	switch m := res.(type) {
	case *tg.MessagesMessages:
		list = m.Messages
	case *tg.MessagesMessagesSlice:
		list = m.Messages
	default:
		return nil, stream.ErrNotFound
	}
	if len(list) == 0 {
		return nil, stream.ErrNotFound
	}

	msg, ok := list[0].(*tg.Message)
	if !ok {
		return nil, stream.ErrNotFound
	}
	media, ok := msg.Media.(*tg.MessageMediaDocument)
	if !ok {
		return nil, stream.ErrNotFound
	}
	doc, ok := media.Document.AsNotEmpty()
	if !ok {
		return nil, stream.ErrNotFound
	}

	name := ""
	for _, attr := range doc.Attributes {
		if fn, ok := attr.(*tg.DocumentAttributeFilename); ok {
			name = fn.FileName
			break
		}
	}

	return &stream.FileMeta{
		Location: doc.AsInputDocumentFileLocation(),
		Size:     doc.Size,
		MimeType: doc.MimeType,
		Name:     name,
	}, nil
}

// upload.getFile constraints: offset and limit must be multiples of
// downloadAlign, and in precise mode a request may not span a
// downloadBlock boundary.
const (
	downloadAlign = 1024
	downloadBlock = 1 << 20
)

// DownloadRange fetches the exact [offset, offset+limit) window. Telegram
// rejects unaligned upload.getFile requests, so the window is covered
// with aligned sub-requests split at block boundaries and the results
// sliced back to the caller's bytes.
func (c *Client) DownloadRange(ctx context.Context, loc stream.Location, offset, limit int64) ([]byte, error) {
	if !c.connected() {
		return nil, notReady()
	}

	location, ok := loc.(tg.InputFileLocationClass)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected location type %T", stream.ErrUpstreamFailure, loc)
	}

	out := make([]byte, 0, limit)
	for int64(len(out)) < limit {
		pos := offset + int64(len(out))
		alignedOffset := pos - pos%downloadAlign
		end := offset + limit
		if blockEnd := alignedOffset - alignedOffset%downloadBlock + downloadBlock; end > blockEnd {
			end = blockEnd
		}
		reqLimit := end - alignedOffset
		if rem := reqLimit % downloadAlign; rem != 0 {
			reqLimit += downloadAlign - rem
		}

		chunk, err := c.getFile(ctx, location, alignedOffset, reqLimit)
		if err != nil {
			return nil, err
		}

		skip := pos - alignedOffset
		if int64(len(chunk)) <= skip {
			// Short read: the real file ends before the resolved size.
			break
		}
		chunk = chunk[skip:]
		if want := limit - int64(len(out)); int64(len(chunk)) > want {
			chunk = chunk[:want]
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (c *Client) getFile(ctx context.Context, location tg.InputFileLocationClass, offset, limit int64) ([]byte, error) {
	res, err := c.api.UploadGetFile(ctx, &tg.UploadGetFileRequest{
		Precise:  true,
		Location: location,
		Offset:   offset,
		Limit:    int(limit),
	})
	if err != nil {
		return nil, c.wrap(err)
	}

	chunk, ok := res.(*tg.UploadFile)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected upload.getFile result %T", stream.ErrUpstreamFailure, res)
	}
	return chunk.Bytes, nil
}

// UploadFile stores r as a document message in saved messages and returns
// the new message id.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader, size int64, progress stream.ProgressFunc) (int, error) {
	if !c.connected() {
		return 0, notReady()
	}

	u := uploader.NewUploader(c.api)
	if progress != nil {
		u = u.WithProgress(progressAdapter{fn: progress})
	}

	file, err := u.Upload(ctx, uploader.NewUpload(name, r, size))
	if err != nil {
		return 0, c.wrap(err)
	}

	sender := message.NewSender(c.api)
	upd, err := sender.Self().Media(ctx, message.UploadedDocument(file).Filename(name).ForceFile(true))
	if err != nil {
		return 0, c.wrap(err)
	}

	msgID, ok := sentMessageID(upd)
	if !ok {
		return 0, fmt.Errorf("%w: sent message id not found in updates", stream.ErrUpstreamFailure)
	}
	return msgID, nil
}

// IsAuthorized reports whether the stored session is logged in.
func (c *Client) IsAuthorized(ctx context.Context) (bool, error) {
	if !c.connected() {
		return false, notReady()
	}
	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		return false, c.wrap(err)
	}
	return status.Authorized, nil
}

// wrap translates gotd errors into the streaming core's taxonomy.
func (c *Client) wrap(err error) error {
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &stream.TransientError{Wait: wait, Err: err}
	}
	if tgerr.Is(err, "MESSAGE_ID_INVALID", "FILE_ID_INVALID", "LOCATION_INVALID") {
		return stream.ErrNotFound
	}
	if tgerr.Is(err, "AUTH_KEY_UNREGISTERED", "SESSION_PASSWORD_NEEDED") {
		return &stream.TransientError{Wait: connectRetryAfter, Err: err}
	}
	return err
}

type progressAdapter struct {
	fn stream.ProgressFunc
}

func (p progressAdapter) Chunk(_ context.Context, state uploader.ProgressState) error {
	p.fn(state.Uploaded, state.Total)
	return nil
}

// sentMessageID digs the new message id out of the update set returned by
// messages.sendMedia.
func sentMessageID(upd tg.UpdatesClass) (int, bool) {
	switch u := upd.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID, true
	case *tg.Updates:
		for _, inner := range u.Updates {
			switch m := inner.(type) {
			case *tg.UpdateMessageID:
				return m.ID, true
			case *tg.UpdateNewMessage:
				if msg, ok := m.Message.(*tg.Message); ok {
					return msg.ID, true
				}
			}
		}
	}
	return 0, false
}

package stream

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// TypeByName maps a file name's extension to a media type, empty when
// unknown.
func TypeByName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	case ".ogg":
		return "video/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	default:
		return ""
	}
}

// DetectContent picks the response media type: the store's hint wins,
// then the file extension, then content sniffing of the first chunk.
func DetectContent(hint, name string, chunk []byte) string {
	if hint != "" {
		return hint
	}
	if byName := TypeByName(name); byName != "" {
		return byName
	}
	if len(chunk) > 0 {
		return mimetype.Detect(chunk).String()
	}
	return "application/octet-stream"
}

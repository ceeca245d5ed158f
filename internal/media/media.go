// ABOUTME: Inbound media handling - audio detection, transcription contract, sandbox staging
// ABOUTME: Staging failures are logged and swallowed; the turn always continues

package media

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ReplyHint is appended to the prompt whenever media is attached, so the
// agent knows the outbound media syntax.
const ReplyHint = "To send an image back, add a line like: MEDIA:https://example.com/image.jpg (no spaces). Keep caption in the text body."

// inboundDir is the workspace-relative directory staged media lands in.
const inboundDir = "media/inbound"

// IsAudio reports whether a MIME type denotes an audio attachment.
func IsAudio(mimeType string) bool {
	t := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return strings.HasPrefix(t, "audio/") || t == "application/ogg"
}

// Transcriber converts an audio attachment to text. Implementations live
// outside this core; a nil Transcriber simply skips transcription.
type Transcriber interface {
	Transcribe(ctx context.Context, path, mimeType string) (string, error)
}

// Attachment is the media reference carried by an inbound message.
type Attachment struct {
	Path string // local path or file:// URL from the provider adapter
	URL  string // provider-facing URL, sometimes the same file
	Type string // MIME type as reported by the provider
}

// Note renders the prompt line describing an attachment, or "" when there
// is none.
func Note(att Attachment) string {
	if att.Path == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("[media attached: ")
	b.WriteString(att.Path)
	if att.Type != "" {
		b.WriteString(" (")
		b.WriteString(att.Type)
		b.WriteString(")")
	}
	if att.URL != "" {
		b.WriteString(" | ")
		b.WriteString(att.URL)
	}
	b.WriteString("]")
	return b.String()
}

// Stager relocates inbound media into the agent-visible sandbox so the
// agent can read the file by a workspace-relative path.
type Stager struct {
	logger *slog.Logger
}

// NewStager creates a stager. logger may be nil.
func NewStager(logger *slog.Logger) *Stager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stager{logger: logger.With("component", "media")}
}

// Stage copies the attachment's file under <workspaceDir>/media/inbound
// and rewrites att.Path (and att.URL, when it referenced the same file) to
// the workspace-relative destination. Every failure is logged and
// swallowed: the caller proceeds with the original attachment.
func (s *Stager) Stage(workspaceDir string, att *Attachment) {
	if att == nil || workspaceDir == "" {
		return
	}
	source := strings.TrimSpace(att.Path)
	if source == "" {
		return
	}
	if strings.HasPrefix(source, "file://") {
		p, ok := fileURLPath(source)
		if !ok {
			return
		}
		source = p
	}
	if !filepath.IsAbs(source) {
		return
	}

	name := filepath.Base(source)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return
	}

	destDir := filepath.Join(workspaceDir, "media", "inbound")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		s.logger.Warn("failed to stage inbound media", "error", err)
		return
	}
	if err := copyFile(source, filepath.Join(destDir, name)); err != nil {
		s.logger.Warn("failed to stage inbound media", "error", err)
		return
	}

	originalPath := att.Path
	relative := path.Join(inboundDir, name)
	att.Path = relative

	if att.URL == "" {
		return
	}
	normalized := att.URL
	if strings.HasPrefix(normalized, "file://") {
		if p, ok := fileURLPath(normalized); ok {
			normalized = p
		}
	}
	if normalized == originalPath || normalized == source {
		att.URL = relative
	}
}

// fileURLPath converts a file:// URL to a filesystem path.
func fileURLPath(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

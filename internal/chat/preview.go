package chat

import "unicode/utf8"

const (
	// AttachmentPreview replaces the preview of any media message.
	AttachmentPreview = "Attachment"

	previewMaxLen = 20
	previewKeep   = 17
)

// WrapPreview shortens s for the conversation list. Up to 20 runes are kept as is,
// anything longer becomes its first 17 runes followed by "...".
func WrapPreview(s string) string {
	if utf8.RuneCountInString(s) <= previewMaxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:previewKeep]) + "..."
}

// PreviewFor returns the stored preview for a message of type t: the literal
// text, or AttachmentPreview for media. Shortening is left to the display.
func PreviewFor(t MessageType, content string) string {
	if t.IsMedia() {
		return AttachmentPreview
	}
	return content
}

package enums

// AttachmentKind is the transport-level classification of an inbound
// attachment, before routing. MediaKind covers only what we persist.
type AttachmentKind string

const (
	AttachmentPhoto       AttachmentKind = "photo"
	AttachmentVideo       AttachmentKind = "video"
	AttachmentSticker     AttachmentKind = "sticker"
	AttachmentUnsupported AttachmentKind = "unsupported"
)

func (k AttachmentKind) MediaKind() (MediaKind, bool) {
	switch k {
	case AttachmentPhoto:
		return MediaKindPhoto, true
	case AttachmentVideo:
		return MediaKindVideo, true
	default:
		return "", false
	}
}

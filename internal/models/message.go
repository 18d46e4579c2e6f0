package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ItemType categorizes the content of a message.
type ItemType string

const (
	ItemTypeText       ItemType = "text"
	ItemTypeLink       ItemType = "link"
	ItemTypeMedia      ItemType = "media"
	ItemTypeMediaShare ItemType = "media_share"
	ItemTypeStoryShare ItemType = "story_share"
	ItemTypeActionLog  ItemType = "action_log"
	ItemTypeOther      ItemType = "other"
)

// ParseItemType maps a wire item_type to a known ItemType. Unknown values
// become ItemTypeOther.
func ParseItemType(s string) ItemType {
	switch ItemType(s) {
	case ItemTypeText, ItemTypeLink, ItemTypeMedia, ItemTypeMediaShare,
		ItemTypeStoryShare, ItemTypeActionLog:
		return ItemType(s)
	default:
		return ItemTypeOther
	}
}

// Message is one item of a conversation thread. Messages are immutable once
// received; two messages with the same ItemID are the same message.
type Message struct {
	// ItemID is the unique, stable identifier assigned by the remote service.
	ItemID string `json:"item_id" validate:"required"`

	// Timestamp orders messages. Microseconds since epoch on the wire; treated
	// as an opaque integer. Not unique.
	Timestamp int64 `json:"timestamp" validate:"gt=0"`

	// IsSentByViewer is true when the local user authored the message.
	IsSentByViewer bool `json:"is_sent_by_viewer"`

	// ItemType selects which Payload variant is populated.
	ItemType ItemType `json:"item_type"`

	// Payload is the type-specific content.
	Payload Payload `json:"-"`
}

// Payload is the closed set of message content variants.
type Payload interface {
	payloadType() ItemType
}

// TextPayload is a plain text message.
type TextPayload struct {
	Text string `json:"text"`
}

// LinkPayload is a text message carrying a URL preview.
type LinkPayload struct {
	Text  string `json:"text"`
	URL   string `json:"link_url,omitempty"`
	Title string `json:"link_title,omitempty"`
}

// ImageCandidate is one rendition of an image.
type ImageCandidate struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ImageVersions lists the available renditions of an image.
type ImageVersions struct {
	Candidates []ImageCandidate `json:"candidates"`
}

// VideoVersion is one rendition of a video.
type VideoVersion struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Type   int    `json:"type,omitempty"`
}

// MediaPayload is a photo or video sent directly in the thread.
type MediaPayload struct {
	MediaType      int            `json:"media_type,omitempty"`
	ImageVersions2 *ImageVersions `json:"image_versions2,omitempty"`
	VideoVersions  []VideoVersion `json:"video_versions,omitempty"`
}

// Caption is the text attached to a shared post.
type Caption struct {
	Text string `json:"text"`
}

// MediaSharePayload is a post shared into the thread.
type MediaSharePayload struct {
	MediaPayload
	User          User           `json:"user"`
	Caption       *Caption       `json:"caption,omitempty"`
	CarouselMedia []MediaPayload `json:"carousel_media,omitempty"`
}

// StoryMedia is the story being shared together with its author.
type StoryMedia struct {
	MediaPayload
	User User `json:"user"`
}

// StorySharePayload is a story shared into the thread.
type StorySharePayload struct {
	Media *StoryMedia `json:"media,omitempty"`
}

// ActionLogPayload is a system notice such as "liked a message".
type ActionLogPayload struct {
	Description string `json:"description"`
}

// OtherPayload carries any item type the client does not understand.
type OtherPayload struct {
	RawType string `json:"-"`
}

func (TextPayload) payloadType() ItemType       { return ItemTypeText }
func (LinkPayload) payloadType() ItemType       { return ItemTypeLink }
func (MediaPayload) payloadType() ItemType      { return ItemTypeMedia }
func (MediaSharePayload) payloadType() ItemType { return ItemTypeMediaShare }
func (StorySharePayload) payloadType() ItemType { return ItemTypeStoryShare }
func (ActionLogPayload) payloadType() ItemType  { return ItemTypeActionLog }
func (OtherPayload) payloadType() ItemType      { return ItemTypeOther }

// MaxMediaWidth is the default display width media is scaled down to.
const MaxMediaWidth = 200

// BestImage returns the image candidate with the greatest height.
func (m MediaPayload) BestImage() (ImageCandidate, bool) {
	if m.ImageVersions2 == nil || len(m.ImageVersions2.Candidates) == 0 {
		return ImageCandidate{}, false
	}
	best := m.ImageVersions2.Candidates[0]
	for _, candidate := range m.ImageVersions2.Candidates[1:] {
		if candidate.Height > best.Height {
			best = candidate
		}
	}
	return best, true
}

// FirstImage returns the first listed image candidate.
func (m MediaPayload) FirstImage() (ImageCandidate, bool) {
	if m.ImageVersions2 == nil || len(m.ImageVersions2.Candidates) == 0 {
		return ImageCandidate{}, false
	}
	return m.ImageVersions2.Candidates[0], true
}

// BestVideo returns the first video version; the service lists the preferred
// rendition first.
func (m MediaPayload) BestVideo() (VideoVersion, bool) {
	if len(m.VideoVersions) == 0 {
		return VideoVersion{}, false
	}
	return m.VideoVersions[0], true
}

// IsVideo reports whether the media has any video rendition.
func (m MediaPayload) IsVideo() bool {
	return len(m.VideoVersions) > 0
}

// PreviewURL returns the URL a share should display: the first image
// candidate, falling back to the first video version.
func (m MediaPayload) PreviewURL() string {
	if img, ok := m.FirstImage(); ok {
		return img.URL
	}
	if video, ok := m.BestVideo(); ok {
		return video.URL
	}
	return ""
}

// Cover returns the media a share should display. Carousel shares use their
// first item.
func (s MediaSharePayload) Cover() MediaPayload {
	if len(s.CarouselMedia) > 0 {
		return s.CarouselMedia[0]
	}
	return s.MediaPayload
}

// CaptionText returns the caption text or "".
func (s MediaSharePayload) CaptionText() string {
	if s.Caption == nil {
		return ""
	}
	return s.Caption.Text
}

// ScaleToWidth scales width and height down so width does not exceed
// maxWidth, preserving aspect ratio. Media is never upscaled.
func ScaleToWidth(width, height, maxWidth int) (int, int) {
	if width <= 0 || maxWidth <= 0 || width <= maxWidth {
		return width, height
	}
	scaled := height * maxWidth / width
	return maxWidth, scaled
}

// Text returns the human readable text carried by the message, if any.
func (m Message) Text() string {
	switch p := m.Payload.(type) {
	case TextPayload:
		return p.Text
	case LinkPayload:
		return p.Text
	case ActionLogPayload:
		return p.Description
	default:
		return ""
	}
}

// wireMessage is the JSON shape of a thread item.
type wireMessage struct {
	ItemID         string             `json:"item_id"`
	Timestamp      wireTimestamp      `json:"timestamp"`
	IsSentByViewer bool               `json:"is_sent_by_viewer"`
	ItemType       string             `json:"item_type"`
	Text           string             `json:"text,omitempty"`
	Link           *wireLink          `json:"link,omitempty"`
	Media          *MediaPayload      `json:"media,omitempty"`
	MediaShare     *MediaSharePayload `json:"media_share,omitempty"`
	StoryShare     *StorySharePayload `json:"story_share,omitempty"`
	ActionLog      *ActionLogPayload  `json:"action_log,omitempty"`
}

type wireLink struct {
	Text        string          `json:"text"`
	LinkContext wireLinkContext `json:"link_context"`
}

type wireLinkContext struct {
	LinkURL   string `json:"link_url,omitempty"`
	LinkTitle string `json:"link_title,omitempty"`
}

// wireTimestamp accepts both JSON numbers and numeric strings; the service
// sends microsecond timestamps as strings.
type wireTimestamp int64

func (t *wireTimestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*t = 0
			return nil
		}
		data = []byte(s)
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", string(data), err)
	}
	*t = wireTimestamp(v)
	return nil
}

// UnmarshalJSON decodes a thread item, selecting the payload variant from
// item_type. Missing variant bodies decode to zero payloads.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	m.ItemID = wire.ItemID
	m.Timestamp = int64(wire.Timestamp)
	m.IsSentByViewer = wire.IsSentByViewer
	m.ItemType = ParseItemType(wire.ItemType)

	switch m.ItemType {
	case ItemTypeText:
		m.Payload = TextPayload{Text: wire.Text}
	case ItemTypeLink:
		link := LinkPayload{Text: wire.Text}
		if wire.Link != nil {
			link.Text = wire.Link.Text
			link.URL = wire.Link.LinkContext.LinkURL
			link.Title = wire.Link.LinkContext.LinkTitle
		}
		m.Payload = link
	case ItemTypeMedia:
		if wire.Media != nil {
			m.Payload = *wire.Media
		} else {
			m.Payload = MediaPayload{}
		}
	case ItemTypeMediaShare:
		if wire.MediaShare != nil {
			m.Payload = *wire.MediaShare
		} else {
			m.Payload = MediaSharePayload{}
		}
	case ItemTypeStoryShare:
		if wire.StoryShare != nil {
			m.Payload = *wire.StoryShare
		} else {
			m.Payload = StorySharePayload{}
		}
	case ItemTypeActionLog:
		if wire.ActionLog != nil {
			m.Payload = *wire.ActionLog
		} else {
			m.Payload = ActionLogPayload{}
		}
	default:
		m.Payload = OtherPayload{RawType: wire.ItemType}
	}
	return nil
}

// DecodeMessages decodes thread items one at a time. An item that cannot be
// decoded is kept as an OtherPayload placeholder carrying whatever item_id
// could be read and a zero timestamp, so validation rejects it without
// losing the rest of the batch. The second return value counts such items.
func DecodeMessages(raw []json.RawMessage) ([]Message, int) {
	if raw == nil {
		return nil, 0
	}
	out := make([]Message, 0, len(raw))
	undecodable := 0
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal(item, &msg); err != nil {
			undecodable++
			msg = undecodableMessage(item)
		}
		out = append(out, msg)
	}
	return out, undecodable
}

func undecodableMessage(item json.RawMessage) Message {
	var ident struct {
		ItemID   json.RawMessage `json:"item_id"`
		ItemType string          `json:"item_type"`
	}
	_ = json.Unmarshal(item, &ident)

	msg := Message{ItemType: ItemTypeOther, Payload: OtherPayload{RawType: ident.ItemType}}
	var id string
	if err := json.Unmarshal(ident.ItemID, &id); err == nil {
		msg.ItemID = id
	}
	return msg
}

// MarshalJSON encodes the message in the wire shape.
func (m Message) MarshalJSON() ([]byte, error) {
	wire := wireMessage{
		ItemID:         m.ItemID,
		Timestamp:      wireTimestamp(m.Timestamp),
		IsSentByViewer: m.IsSentByViewer,
		ItemType:       string(m.ItemType),
	}

	switch p := m.Payload.(type) {
	case TextPayload:
		wire.Text = p.Text
	case LinkPayload:
		wire.Text = p.Text
		wire.Link = &wireLink{
			Text:        p.Text,
			LinkContext: wireLinkContext{LinkURL: p.URL, LinkTitle: p.Title},
		}
	case MediaPayload:
		wire.Media = &p
	case MediaSharePayload:
		wire.MediaShare = &p
	case StorySharePayload:
		wire.StoryShare = &p
	case ActionLogPayload:
		wire.ActionLog = &p
	case OtherPayload:
		if p.RawType != "" {
			wire.ItemType = p.RawType
		}
	}

	return json.Marshal(wire)
}

func (t wireTimestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(t), 10)), nil
}

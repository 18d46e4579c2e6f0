package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/tOgg1/dmsync/internal/models"
)

const (
	unsupportedText = "Unsupported message type"
	gutterSelected  = "▌ "
	gutterPlain     = "  "
)

type bubbleKind int

const (
	bubblePeer bubbleKind = iota
	bubbleOwn
	bubbleSystem
)

func kindOf(msg models.Message) bubbleKind {
	if _, ok := msg.Payload.(models.ActionLogPayload); ok {
		return bubbleSystem
	}
	if msg.IsSentByViewer {
		return bubbleOwn
	}
	return bubblePeer
}

// messageBody returns the unwrapped display lines for a message.
func messageBody(msg models.Message) []string {
	switch p := msg.Payload.(type) {
	case models.TextPayload:
		return []string{p.Text}
	case models.LinkPayload:
		lines := []string{"Check this out: " + p.Text}
		switch {
		case p.Title != "" && p.URL != "":
			lines = append(lines, fmt.Sprintf("↳ %s (%s)", p.Title, p.URL))
		case p.URL != "":
			lines = append(lines, "↳ "+p.URL)
		}
		return lines
	case models.MediaPayload:
		return []string{mediaLine(p)}
	case models.MediaSharePayload:
		return shareLines(p)
	case models.StorySharePayload:
		if p.Media == nil {
			return []string{"[story unavailable]"}
		}
		lines := []string{fmt.Sprintf("@%s's story", p.Media.User.Username)}
		if url := p.Media.PreviewURL(); url != "" {
			lines = append(lines, "[story] "+url)
		}
		return lines
	case models.ActionLogPayload:
		return []string{p.Description}
	case models.OtherPayload:
		return []string{unsupportedText}
	default:
		return []string{unsupportedText}
	}
}

// PlainText renders a message on one line for non-interactive output.
func PlainText(msg models.Message) string {
	return strings.Join(messageBody(msg), " | ")
}

// mediaLine describes a directly sent photo or video at its display size.
func mediaLine(m models.MediaPayload) string {
	if video, ok := m.BestVideo(); ok {
		w, h := models.ScaleToWidth(video.Width, video.Height, models.MaxMediaWidth)
		return fmt.Sprintf("[video %d×%d] %s", w, h, video.URL)
	}
	if img, ok := m.BestImage(); ok {
		w, h := models.ScaleToWidth(img.Width, img.Height, models.MaxMediaWidth)
		return fmt.Sprintf("[photo %d×%d] %s", w, h, img.URL)
	}
	return "[media unavailable]"
}

func shareLines(p models.MediaSharePayload) []string {
	owner := p.User.Username
	if owner == "" {
		owner = "unknown"
	}
	title := fmt.Sprintf("@%s shared a post", owner)
	if n := len(p.CarouselMedia); n > 0 {
		title = fmt.Sprintf("@%s shared %d photos", owner, n)
	}

	lines := []string{title}
	cover := p.Cover()
	kind := "photo"
	if _, hasImage := cover.FirstImage(); !hasImage && cover.IsVideo() {
		kind = "video"
	}
	if url := cover.PreviewURL(); url != "" {
		lines = append(lines, fmt.Sprintf("[%s %d×%d] %s", kind, models.MaxMediaWidth, models.MaxMediaWidth, url))
	}
	if caption := p.CaptionText(); caption != "" {
		lines = append(lines, captionMarker+firstLine(caption))
	}
	return lines
}

// captionMarker prefixes captions, which are shown on a single line.
const captionMarker = "“"

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// senderName is the label shown above a message.
func senderName(msg models.Message, thread models.Thread) string {
	if msg.IsSentByViewer {
		return "You"
	}
	if name := thread.Peer().DisplayName(); name != "" {
		return name
	}
	return "Them"
}

func relativeTime(micros int64, now time.Time) string {
	if micros <= 0 {
		return ""
	}
	return humanize.RelTime(time.UnixMicro(micros), now, "ago", "from now")
}

// renderBubble lays out one message in width columns. The first returned
// line is the header when withHeader is set.
func renderBubble(msg models.Message, thread models.Thread, width int, withHeader, showTime, selected bool, now time.Time, st styles) []string {
	gutter := gutterPlain
	if selected {
		gutter = st.selected.Render(gutterSelected)
	}
	inner := width - lipgloss.Width(gutterPlain)
	if inner < 1 {
		inner = 1
	}
	bubbleWidth := inner * 3 / 4
	if bubbleWidth < 10 {
		bubbleWidth = inner
	}

	kind := kindOf(msg)
	body := wrapLines(messageBody(msg), bubbleWidth)

	var style lipgloss.Style
	switch kind {
	case bubbleOwn:
		style = st.own
	case bubbleSystem:
		style = st.system
	default:
		style = st.peer
	}

	out := make([]string, 0, len(body)+1)
	if withHeader && kind != bubbleSystem {
		header := st.sender.Render(senderName(msg, thread))
		if showTime {
			if rel := relativeTime(msg.Timestamp, now); rel != "" {
				header += " " + st.muted.Render(rel)
			}
		}
		out = append(out, gutter+align(header, inner, kind))
	}
	for _, line := range body {
		out = append(out, gutter+align(style.Render(line), inner, kind))
	}
	return out
}

func wrapLines(lines []string, width int) []string {
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		if strings.HasPrefix(line, captionMarker) && i > 0 {
			out = append(out, truncate.StringWithTail(line, uint(width), "…"))
			continue
		}
		wrapped := wordwrap.String(line, width)
		for _, part := range strings.Split(wrapped, "\n") {
			// Unbroken words longer than the bubble are cut hard.
			out = append(out, truncate.StringWithTail(part, uint(width), "…"))
		}
	}
	return out
}

func align(line string, width int, kind bubbleKind) string {
	switch kind {
	case bubbleOwn:
		return lipgloss.PlaceHorizontal(width, lipgloss.Right, line)
	case bubbleSystem:
		return lipgloss.PlaceHorizontal(width, lipgloss.Center, line)
	default:
		return line
	}
}

// startMarker is drawn above the oldest message once history is exhausted.
func startMarker(width int, st styles) string {
	return st.marker.Render(lipgloss.PlaceHorizontal(width, lipgloss.Center, "· start of conversation ·"))
}

package models

// Cursor is an opaque pagination token issued by the conversation service.
type Cursor string

// CursorStart is the cursor before any older page has been fetched.
const CursorStart Cursor = ""

// IsStart reports whether c is the start sentinel.
func (c Cursor) IsStart() bool {
	return c == CursorStart
}

// Page is one response of the older-messages endpoint.
type Page struct {
	Messages      []Message `json:"messages"`
	Cursor        Cursor    `json:"cursor,omitempty"`
	MoreAvailable bool      `json:"moreAvailable"`
}

package models

import "encoding/json"

// User is a participant of a thread.
type User struct {
	ID            string `json:"pk,omitempty"`
	Username      string `json:"username"`
	FullName      string `json:"full_name,omitempty"`
	ProfilePicURL string `json:"profile_pic_url,omitempty"`
}

// DisplayName returns the full name, falling back to the username.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// Thread is a two-party conversation as listed by the remote service. Items
// carries the initial snapshot of recent messages.
type Thread struct {
	ThreadID string    `json:"thread_id" validate:"required"`
	Inviter  User      `json:"inviter"`
	Users    []User    `json:"users"`
	Items    []Message `json:"items"`
}

// UnmarshalJSON decodes a thread. Items are decoded individually so one
// malformed item does not discard the snapshot.
func (t *Thread) UnmarshalJSON(data []byte) error {
	type plain Thread
	var wire struct {
		plain
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*t = Thread(wire.plain)
	t.Items, _ = DecodeMessages(wire.Items)
	return nil
}

// Viewer returns the local user. The service reports the viewer as the
// thread's inviter.
func (t Thread) Viewer() User {
	return t.Inviter
}

// Peer returns the other participant, or the zero User if none is listed.
func (t Thread) Peer() User {
	if len(t.Users) == 0 {
		return User{}
	}
	return t.Users[0]
}

// LastActivity returns the largest item timestamp in the snapshot, or 0.
func (t Thread) LastActivity() int64 {
	var latest int64
	for _, item := range t.Items {
		if item.Timestamp > latest {
			latest = item.Timestamp
		}
	}
	return latest
}

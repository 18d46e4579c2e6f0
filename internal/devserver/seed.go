package devserver

import (
	"context"
	"fmt"
	"time"

	"github.com/tOgg1/dmsync/internal/db"
	"github.com/tOgg1/dmsync/internal/models"
)

// DemoThreadID is the thread created by Seed.
const DemoThreadID = "demo"

var demoLines = []string{
	"hey! are we still on for saturday?",
	"yes, 10am at the usual place",
	"perfect, I'll bring the maps",
	"did you see the forecast?",
	"looks dry until the afternoon",
	"let's start earlier then",
}

// Seed creates the demo thread with count messages spaced one minute apart,
// ending now. It cycles through every item type the client renders. Seeding
// an existing demo thread is a no-op.
func Seed(ctx context.Context, database *db.DB, count int) error {
	threads := db.NewThreadRepository(database)
	if _, err := threads.Get(ctx, DemoThreadID); err == nil {
		return nil
	}

	thread := &models.Thread{
		ThreadID: DemoThreadID,
		Inviter:  models.User{Username: "you", FullName: "You"},
		Users:    []models.User{{Username: "sam.rivera", FullName: "Sam Rivera"}},
	}
	if err := threads.Create(ctx, thread); err != nil {
		return fmt.Errorf("create demo thread: %w", err)
	}

	messages := db.NewMessageRepository(database)
	start := time.Now().Add(-time.Duration(count) * time.Minute)
	for i := 0; i < count; i++ {
		msg := demoMessage(i, thread.Peer())
		msg.Timestamp = start.Add(time.Duration(i) * time.Minute).UnixMicro()
		if err := messages.Insert(ctx, thread.ThreadID, &msg); err != nil {
			return fmt.Errorf("insert demo message %d: %w", i, err)
		}
	}
	return nil
}

func demoMessage(i int, peer models.User) models.Message {
	msg := models.Message{IsSentByViewer: i%2 == 1}
	switch i % 9 {
	case 3:
		msg.ItemType = models.ItemTypeLink
		msg.Payload = models.LinkPayload{
			Text: "https://example.com/trail-guide",
			URL:  "https://example.com/trail-guide",
		}
	case 5:
		msg.ItemType = models.ItemTypeMedia
		msg.Payload = models.MediaPayload{
			MediaType: 1,
			ImageVersions2: &models.ImageVersions{Candidates: []models.ImageCandidate{
				{URL: "https://cdn.example.com/p/1080.jpg", Width: 1080, Height: 1350},
				{URL: "https://cdn.example.com/p/320.jpg", Width: 320, Height: 400},
			}},
		}
	case 7:
		msg.ItemType = models.ItemTypeMediaShare
		msg.Payload = models.MediaSharePayload{
			User:    models.User{Username: "trailsdaily"},
			Caption: &models.Caption{Text: "Top 10 ridge walks this autumn"},
			CarouselMedia: []models.MediaPayload{{
				ImageVersions2: &models.ImageVersions{Candidates: []models.ImageCandidate{
					{URL: "https://cdn.example.com/share/1.jpg", Width: 640, Height: 640},
				}},
			}},
		}
	case 8:
		msg.ItemType = models.ItemTypeActionLog
		msg.Payload = models.ActionLogPayload{Description: peer.DisplayName() + " liked a message"}
	default:
		msg.ItemType = models.ItemTypeText
		msg.Payload = models.TextPayload{Text: demoLines[i%len(demoLines)]}
	}
	return msg
}

// Chatter posts a text message from the peer of threadID every interval
// until ctx is done.
func Chatter(ctx context.Context, database *db.DB, threadID string, interval time.Duration) error {
	messages := db.NewMessageRepository(database)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			msg := models.Message{
				ItemType: models.ItemTypeText,
				Payload:  models.TextPayload{Text: demoLines[n%len(demoLines)]},
			}
			if err := messages.Insert(ctx, threadID, &msg); err != nil {
				return fmt.Errorf("chatter: %w", err)
			}
		}
	}
}

package devserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tOgg1/dmsync/internal/db"
	"github.com/tOgg1/dmsync/internal/models"
)

type threadsResponse struct {
	Threads []models.Thread `json:"threads"`
}

type threadResponse struct {
	Thread models.Thread `json:"thread"`
}

type messagesResponse struct {
	Messages []models.Message `json:"messages"`
}

type sendRequest struct {
	Text   string `json:"text" validate:"required,max=2000"`
	Sender string `json:"sender" validate:"omitempty,oneof=viewer peer"`
}

type sendResponse struct {
	Message models.Message `json:"message"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listThreads(c echo.Context) error {
	ctx := c.Request().Context()
	headers, err := s.threads.List(ctx)
	if err != nil {
		return err
	}

	threads := make([]models.Thread, 0, len(headers))
	for _, header := range headers {
		items, err := s.messages.Latest(ctx, header.ThreadID, s.config.PageSize)
		if err != nil {
			return err
		}
		thread := *header
		thread.Items = items
		threads = append(threads, thread)
	}
	return c.JSON(http.StatusOK, threadsResponse{Threads: threads})
}

func (s *Server) getThread(c echo.Context) error {
	ctx := c.Request().Context()
	thread, err := s.lookupThread(c)
	if err != nil {
		return err
	}

	items, err := s.messages.Latest(ctx, thread.ThreadID, s.config.PageSize)
	if err != nil {
		return err
	}
	thread.Items = items
	return c.JSON(http.StatusOK, threadResponse{Thread: *thread})
}

func (s *Server) newMessages(c echo.Context) error {
	thread, err := s.lookupThread(c)
	if err != nil {
		return err
	}

	var since int64
	if raw := c.QueryParam("last_timestamp"); raw != "" {
		since, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "last_timestamp must be an integer")
		}
	}

	msgs, err := s.messages.ListNewer(c.Request().Context(), thread.ThreadID, since, s.config.PageSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messagesResponse{Messages: msgs})
}

// olderMessages walks history backwards. Without a cursor the walk starts
// below the snapshot returned by getThread. Pages that carry messages are
// reported with moreAvailable=true; the oldest one carries an end cursor,
// and the start of history is the empty page with moreAvailable=false that
// cursor resolves to.
func (s *Server) olderMessages(c echo.Context) error {
	ctx := c.Request().Context()
	thread, err := s.lookupThread(c)
	if err != nil {
		return err
	}

	var before db.Position
	if raw := c.QueryParam("cursor"); raw != "" {
		tok, err := decodeCursor(models.Cursor(raw))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if tok.End {
			return c.JSON(http.StatusOK, historyStart())
		}
		before = tok.Position
	} else {
		snapshot, err := s.messages.Latest(ctx, thread.ThreadID, s.config.PageSize)
		if err != nil {
			return err
		}
		if len(snapshot) == 0 {
			return c.JSON(http.StatusOK, historyStart())
		}
		before = db.PositionOf(snapshot[len(snapshot)-1])
	}

	msgs, more, err := s.messages.ListBefore(ctx, thread.ThreadID, before, s.config.PageSize)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return c.JSON(http.StatusOK, historyStart())
	}

	next := endCursor()
	if more {
		next = encodeCursor(db.PositionOf(msgs[len(msgs)-1]))
	}
	return c.JSON(http.StatusOK, models.Page{
		Messages:      msgs,
		Cursor:        next,
		MoreAvailable: true,
	})
}

func historyStart() models.Page {
	return models.Page{Messages: []models.Message{}}
}

func (s *Server) sendMessage(c echo.Context) error {
	thread, err := s.lookupThread(c)
	if err != nil {
		return err
	}

	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg := models.Message{
		IsSentByViewer: req.Sender != "peer",
		ItemType:       models.ItemTypeText,
		Payload:        models.TextPayload{Text: req.Text},
	}
	if err := s.messages.Insert(c.Request().Context(), thread.ThreadID, &msg); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sendResponse{Message: msg})
}

func (s *Server) lookupThread(c echo.Context) (*models.Thread, error) {
	thread, err := s.threads.Get(c.Request().Context(), c.Param("thread_id"))
	if errors.Is(err, db.ErrThreadNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "thread not found")
	}
	return thread, err
}

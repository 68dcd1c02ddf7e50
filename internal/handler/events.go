package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-events/internal/apperr"
	"github.com/iliyamo/campus-events/internal/middleware"
	"github.com/iliyamo/campus-events/internal/service"
	"github.com/iliyamo/campus-events/internal/storage"
)

// DefaultMaxThumbnailBytes bounds uploaded thumbnails.
const DefaultMaxThumbnailBytes = 5 << 20

// EventHandler serves the /events endpoints.
type EventHandler struct {
	svc          *service.EventService
	sweeper      *service.Sweeper
	maxThumbnail int64
}

func NewEventHandler(svc *service.EventService, sweeper *service.Sweeper, maxThumbnail int64) *EventHandler {
	if maxThumbnail <= 0 {
		maxThumbnail = DefaultMaxThumbnailBytes
	}
	return &EventHandler{svc: svc, sweeper: sweeper, maxThumbnail: maxThumbnail}
}

// createEventReq binds either a multipart form or a JSON body. domains may
// be repeated or a single comma-separated value.
type createEventReq struct {
	OrganizerName    string   `json:"organizerName" form:"organizerName"`
	Name             string   `json:"name" form:"name" validate:"required"`
	Title            string   `json:"title" form:"title" validate:"required"`
	Description      string   `json:"description" form:"description"`
	Date             string   `json:"date" form:"date" validate:"required"`
	Time             string   `json:"time" form:"time" validate:"required"`
	Venue            string   `json:"venue" form:"venue" validate:"required"`
	Domains          []string `json:"domains" form:"domains" validate:"required,min=1"`
	RegistrationLink string   `json:"registrationLink" form:"registrationLink" validate:"omitempty,url"`
}

type updateEventReq struct {
	OrganizerName    *string  `json:"organizerName"`
	Name             *string  `json:"name"`
	Title            *string  `json:"title"`
	Description      *string  `json:"description"`
	Date             *string  `json:"date"`
	Time             *string  `json:"time"`
	Venue            *string  `json:"venue"`
	Domains          []string `json:"domains"`
	RegistrationLink *string  `json:"registrationLink"`
}

func pageParams(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	return page, limit
}

func (h *EventHandler) List(c echo.Context) error {
	page, limit := pageParams(c)
	res, err := h.svc.ListPublic(c.Request().Context(), page, limit)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "events fetched", res)
}

func (h *EventHandler) ListByInterests(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	page, limit := pageParams(c)
	res, err := h.svc.ListByInterests(c.Request().Context(), u.Interests, page, limit)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "events fetched", res)
}

func (h *EventHandler) Get(c echo.Context) error {
	ev, err := h.svc.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "event fetched", ev)
}

func (h *EventHandler) MyEvents(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	page, limit := pageParams(c)
	res, err := h.svc.ListOwnedBy(c.Request().Context(), u.ID, page, limit)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "events fetched", res)
}

func (h *EventHandler) Create(c echo.Context) error {
	var req createEventReq
	if err := bind(c, &req); err != nil {
		return err
	}
	img, closeImg, err := h.thumbnail(c)
	if err != nil {
		return err
	}
	defer closeImg()

	u, _ := middleware.CurrentUser(c)
	ev, err := h.svc.Create(c.Request().Context(), *u, service.EventInput{
		OrganizerName:    req.OrganizerName,
		Name:             req.Name,
		Title:            req.Title,
		Description:      req.Description,
		Date:             req.Date,
		Time:             req.Time,
		Venue:            req.Venue,
		Domains:          req.Domains,
		RegistrationLink: req.RegistrationLink,
	}, img)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "event created", ev)
}

func (h *EventHandler) UpdateDetails(c echo.Context) error {
	var req updateEventReq
	if err := bind(c, &req); err != nil {
		return err
	}
	u, _ := middleware.CurrentUser(c)
	ev, err := h.svc.Update(c.Request().Context(), c.Param("id"), u.ID, service.EventPatch{
		OrganizerName:    req.OrganizerName,
		Name:             req.Name,
		Title:            req.Title,
		Description:      req.Description,
		Date:             req.Date,
		Time:             req.Time,
		Venue:            req.Venue,
		Domains:          req.Domains,
		RegistrationLink: req.RegistrationLink,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "event updated", ev)
}

func (h *EventHandler) UpdateThumbnail(c echo.Context) error {
	img, closeImg, err := h.thumbnail(c)
	if err != nil {
		return err
	}
	defer closeImg()

	u, _ := middleware.CurrentUser(c)
	ev, err := h.svc.ReplaceThumbnail(c.Request().Context(), c.Param("id"), u.ID, img)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "thumbnail updated", ev)
}

func (h *EventHandler) Delete(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	if err := h.svc.Delete(c.Request().Context(), c.Param("id"), u.ID); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "event deleted", echo.Map{})
}

// Cleanup runs the retention sweep on demand.
func (h *EventHandler) Cleanup(c echo.Context) error {
	n, err := h.sweeper.RunOnce(c.Request().Context(), service.TriggerManual)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "past events cleaned up", echo.Map{"deletedCount": n})
}

// thumbnail opens the optional "thumbnail" file of a multipart request.
// The returned close func is always safe to call.
func (h *EventHandler) thumbnail(c echo.Context) (*storage.Image, func(), error) {
	noop := func() {}
	if !strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return nil, noop, nil
	}
	fh, err := c.FormFile("thumbnail")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, apperr.BadRequest("invalid thumbnail upload")
	}
	if fh.Size > h.maxThumbnail {
		return nil, noop, apperr.BadRequest("thumbnail is too large")
	}
	ct := fh.Header.Get(echo.HeaderContentType)
	if ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, noop, apperr.BadRequest("thumbnail must be an image")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, noop, apperr.Internal("could not read thumbnail", err)
	}
	return &storage.Image{
		Body:        f,
		Size:        fh.Size,
		Filename:    fh.Filename,
		ContentType: ct,
	}, func() { _ = f.Close() }, nil
}

package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-events/internal/apperr"
	"github.com/iliyamo/campus-events/internal/model"
	"github.com/iliyamo/campus-events/internal/queue"
	"github.com/iliyamo/campus-events/internal/repository"
	"github.com/iliyamo/campus-events/internal/storage"
)

type EventService struct {
	events repository.EventStore
	images storage.ImageStore
	notify *Notifier
	loc    *time.Location
	log    zerolog.Logger
	now    func() time.Time
}

func NewEventService(events repository.EventStore, images storage.ImageStore, notify *Notifier,
	loc *time.Location, logger zerolog.Logger) *EventService {
	if images == nil {
		images = storage.Nop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &EventService{
		events: events,
		images: images,
		notify: notify,
		loc:    loc,
		log:    logger.With().Str("component", "events").Logger(),
		now:    time.Now,
	}
}

// EventInput carries the fields of a new event.
type EventInput struct {
	OrganizerName    string
	Name             string
	Title            string
	Description      string
	Date             string
	Time             string
	Venue            string
	Domains          []string
	RegistrationLink string
}

// EventPatch is a partial update. Nil fields are left untouched.
type EventPatch struct {
	OrganizerName    *string
	Name             *string
	Title            *string
	Description      *string
	Date             *string
	Time             *string
	Venue            *string
	Domains          []string
	RegistrationLink *string
}

func (s *EventService) ListPublic(ctx context.Context, page, limit int) (model.EventPage, error) {
	p := model.NewPage(page, limit)
	list, total, err := s.events.ListUpcoming(ctx, repository.EventFilter{From: s.now()}, p)
	if err != nil {
		return model.EventPage{}, apperr.Internal("could not list events", err)
	}
	return model.NewEventPage(list, total, p), nil
}

// ListByInterests lists upcoming events sharing at least one domain with interests.
func (s *EventService) ListByInterests(ctx context.Context, interests []string, page, limit int) (model.EventPage, error) {
	interests = model.NormalizeInterests(interests)
	if len(interests) == 0 {
		return model.EventPage{}, apperr.BadRequest("no interests set for this user")
	}
	p := model.NewPage(page, limit)
	list, total, err := s.events.ListUpcoming(ctx, repository.EventFilter{From: s.now(), Domains: interests}, p)
	if err != nil {
		return model.EventPage{}, apperr.Internal("could not list events", err)
	}
	return model.NewEventPage(list, total, p), nil
}

func (s *EventService) ListOwnedBy(ctx context.Context, ownerID string, page, limit int) (model.EventPage, error) {
	p := model.NewPage(page, limit)
	list, total, err := s.events.ListByOwner(ctx, ownerID, p)
	if err != nil {
		return model.EventPage{}, apperr.Internal("could not list events", err)
	}
	return model.NewEventPage(list, total, p), nil
}

func (s *EventService) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e, err := s.events.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("event not found")
	}
	if err != nil {
		return nil, apperr.Internal("could not load event", err)
	}
	return e, nil
}

// Create stores a new event owned by owner. A failed thumbnail upload
// leaves the event without a thumbnail.
func (s *EventService) Create(ctx context.Context, owner model.User, in EventInput, img *storage.Image) (*model.Event, error) {
	if owner.Role != model.RoleAdmin && owner.Role != model.RoleSuperadmin {
		return nil, apperr.Forbidden("only admins can create events")
	}
	e := &model.Event{
		OwnerID:          owner.ID,
		OrganizerName:    strings.TrimSpace(in.OrganizerName),
		Name:             strings.TrimSpace(in.Name),
		Title:            strings.TrimSpace(in.Title),
		Description:      strings.TrimSpace(in.Description),
		Date:             model.NormalizeDate(in.Date),
		Time:             strings.TrimSpace(in.Time),
		Venue:            strings.TrimSpace(in.Venue),
		Domains:          normalizeDomains(in.Domains),
		RegistrationLink: strings.TrimSpace(in.RegistrationLink),
	}
	if e.OrganizerName == "" {
		e.OrganizerName = owner.Fullname
	}
	if e.Name == "" || e.Title == "" || e.Date == "" || e.Time == "" || e.Venue == "" || len(e.Domains) == 0 {
		return nil, apperr.BadRequest("name, title, date, time, venue and at least one domain are required")
	}
	if err := s.validate(e); err != nil {
		return nil, err
	}

	if img != nil {
		e.ThumbnailURL = s.images.Upload(ctx, *img)
	}
	now := s.now().UTC()
	e.ID = uuid.NewString()
	e.IsApproved = true
	e.CreatedAt = now
	e.UpdatedAt = now
	if err := s.events.Create(ctx, e); err != nil {
		s.images.Delete(ctx, e.ThumbnailURL)
		return nil, apperr.Internal("could not create event", err)
	}
	s.log.Info().Str("event_id", e.ID).Str("owner_id", e.OwnerID).Msg("event created")
	s.notify.Changed(ctx, changeOf(queue.ActionCreated, e))
	return e, nil
}

// Update applies a partial update. OccursAt is re-derived whenever the date
// or the time changes, taking the other half from the stored event.
func (s *EventService) Update(ctx context.Context, id, ownerID string, patch EventPatch) (*model.Event, error) {
	e, err := s.owned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	scheduleChanged := patch.Date != nil || patch.Time != nil
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	apply(&e.OrganizerName, patch.OrganizerName)
	apply(&e.Name, patch.Name)
	apply(&e.Title, patch.Title)
	apply(&e.Description, patch.Description)
	apply(&e.Time, patch.Time)
	apply(&e.Venue, patch.Venue)
	apply(&e.RegistrationLink, patch.RegistrationLink)
	if patch.Date != nil {
		e.Date = model.NormalizeDate(*patch.Date)
	}
	if patch.Domains != nil {
		e.Domains = normalizeDomains(patch.Domains)
	}
	if e.Name == "" || e.Title == "" || e.Venue == "" || len(e.Domains) == 0 {
		return nil, apperr.BadRequest("name, title, venue and domains cannot be empty")
	}
	if scheduleChanged {
		if err := s.validate(e); err != nil {
			return nil, err
		}
	} else if err := validateFields(e); err != nil {
		return nil, err
	}

	e.IsApproved = true
	e.UpdatedAt = s.now().UTC()
	if err := s.events.Update(ctx, e); err != nil {
		return nil, mapEventWriteErr(err, "could not update event")
	}
	s.notify.Changed(ctx, changeOf(queue.ActionUpdated, e))
	return e, nil
}

// ReplaceThumbnail swaps the event image. The old object is removed only
// once the event points at the new one.
func (s *EventService) ReplaceThumbnail(ctx context.Context, id, ownerID string, img *storage.Image) (*model.Event, error) {
	e, err := s.owned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if img == nil || img.Body == nil {
		return nil, apperr.BadRequest("thumbnail image is required")
	}
	newURL := s.images.Upload(ctx, *img)
	if newURL == "" {
		return nil, apperr.Internal("thumbnail upload failed", nil)
	}
	oldURL := e.ThumbnailURL
	e.ThumbnailURL = newURL
	e.UpdatedAt = s.now().UTC()
	if err := s.events.Update(ctx, e); err != nil {
		s.images.Delete(ctx, newURL)
		return nil, mapEventWriteErr(err, "could not update thumbnail")
	}
	s.images.Delete(ctx, oldURL)
	s.notify.Changed(ctx, changeOf(queue.ActionThumbnail, e))
	return e, nil
}

func (s *EventService) Delete(ctx context.Context, id, ownerID string) error {
	e, err := s.owned(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if err := s.events.Delete(ctx, id, ownerID); err != nil {
		return mapEventWriteErr(err, "could not delete event")
	}
	s.images.Delete(ctx, e.ThumbnailURL)
	s.log.Info().Str("event_id", id).Str("owner_id", ownerID).Msg("event deleted")
	s.notify.Changed(ctx, changeOf(queue.ActionDeleted, e))
	return nil
}

// owned loads an event and checks that ownerID owns it.
func (s *EventService) owned(ctx context.Context, id, ownerID string) (*model.Event, error) {
	e, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.OwnerID != ownerID {
		return nil, apperr.Forbidden("you are not the owner of this event")
	}
	return e, nil
}

func (s *EventService) validate(e *model.Event) error {
	at, err := model.ParseOccursAt(e.Date, e.Time, s.loc)
	if err != nil {
		return apperr.BadRequest("date and time do not form a valid schedule")
	}
	e.OccursAt = at.UTC()
	return validateFields(e)
}

func validateFields(e *model.Event) error {
	for _, d := range e.Domains {
		if !model.ValidDomain(d) {
			return apperr.BadRequest("unknown domain " + d)
		}
	}
	if e.RegistrationLink != "" && !validLink(e.RegistrationLink) {
		return apperr.BadRequest("registration link must be an http(s) URL")
	}
	return nil
}

func validLink(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func normalizeDomains(in []string) []string {
	var flat []string
	for _, d := range in {
		flat = append(flat, strings.Split(d, ",")...)
	}
	return model.NormalizeInterests(flat)
}

func mapEventWriteErr(err error, msg string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("event not found")
	case errors.Is(err, repository.ErrForbidden):
		return apperr.Forbidden("you are not the owner of this event")
	}
	return apperr.Internal(msg, err)
}

func changeOf(action string, e *model.Event) queue.EventChanged {
	return queue.EventChanged{
		Action:   action,
		EventID:  e.ID,
		OwnerID:  e.OwnerID,
		Title:    e.Title,
		OccursAt: e.OccursAt,
	}
}

package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/iliyamo/campus-events/internal/model"
	"github.com/iliyamo/campus-events/internal/repository"
)

// EventRepo implements repository.EventStore.
type EventRepo struct {
	col *mongo.Collection
}

var _ repository.EventStore = (*EventRepo)(nil)

func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	_, err := r.col.InsertOne(ctx, e)
	return wrapError(err)
}

func (r *EventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	return findOne[model.Event](ctx, r.col, bson.D{{Key: "_id", Value: id}})
}

func (r *EventRepo) ListUpcoming(ctx context.Context, f repository.EventFilter, p model.Page) ([]model.Event, int64, error) {
	return r.page(ctx, upcomingFilter(f), ascendingSort, p)
}

func (r *EventRepo) ListByOwner(ctx context.Context, ownerID string, p model.Page) ([]model.Event, int64, error) {
	return r.page(ctx, bson.D{{Key: "owner_id", Value: ownerID}}, descendingSort, p)
}

func (r *EventRepo) page(ctx context.Context, filter, sort bson.D, p model.Page) ([]model.Event, int64, error) {
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, wrapError(err)
	}
	if total == 0 {
		return []model.Event{}, 0, nil
	}
	opts := options.Find().SetSort(sort).SetSkip(int64(p.Offset())).SetLimit(int64(p.Limit))
	events, err := findMany[model.Event](ctx, r.col, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// Update replaces the mutable fields when e.OwnerID owns the document.
func (r *EventRepo) Update(ctx context.Context, e *model.Event) error {
	if err := r.checkOwner(ctx, e.ID, e.OwnerID); err != nil {
		return err
	}
	set := bson.D{
		{Key: "organizer_name", Value: e.OrganizerName},
		{Key: "name", Value: e.Name},
		{Key: "title", Value: e.Title},
		{Key: "description", Value: e.Description},
		{Key: "date", Value: e.Date},
		{Key: "time", Value: e.Time},
		{Key: "occurs_at", Value: e.OccursAt},
		{Key: "venue", Value: e.Venue},
		{Key: "domains", Value: e.Domains},
		{Key: "registration_link", Value: e.RegistrationLink},
		{Key: "thumbnail_url", Value: e.ThumbnailURL},
		{Key: "is_approved", Value: e.IsApproved},
		{Key: "updated_at", Value: e.UpdatedAt},
	}
	res, err := r.col.UpdateOne(ctx, ownedFilter(e.ID, e.OwnerID), bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return wrapError(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *EventRepo) Delete(ctx context.Context, id, ownerID string) error {
	if err := r.checkOwner(ctx, id, ownerID); err != nil {
		return err
	}
	res, err := r.col.DeleteOne(ctx, ownedFilter(id, ownerID))
	if err != nil {
		return wrapError(err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteBefore deletes by the ids it read, so events inserted between the
// read and the delete are left alone.
func (r *EventRepo) DeleteBefore(ctx context.Context, cutoff time.Time) ([]model.Event, error) {
	stale, err := findMany[model.Event](ctx, r.col, staleFilter(cutoff))
	if err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		return nil, nil
	}
	ids := make(bson.A, 0, len(stale))
	for _, e := range stale {
		ids = append(ids, e.ID)
	}
	if _, err := r.col.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}); err != nil {
		return nil, wrapError(err)
	}
	return stale, nil
}

func (r *EventRepo) checkOwner(ctx context.Context, id, ownerID string) error {
	cur, err := findOne[model.Event](ctx, r.col, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return err
	}
	if cur.OwnerID != ownerID {
		return repository.ErrForbidden
	}
	return nil
}

var (
	ascendingSort  = bson.D{{Key: "occurs_at", Value: 1}, {Key: "_id", Value: 1}}
	descendingSort = bson.D{{Key: "occurs_at", Value: -1}, {Key: "_id", Value: -1}}
)

func upcomingFilter(f repository.EventFilter) bson.D {
	filter := bson.D{{Key: "occurs_at", Value: bson.D{{Key: "$gte", Value: f.From}}}}
	if len(f.Domains) > 0 {
		filter = append(filter, bson.E{Key: "domains", Value: bson.D{{Key: "$in", Value: f.Domains}}})
	}
	return filter
}

func ownedFilter(id, ownerID string) bson.D {
	return bson.D{{Key: "_id", Value: id}, {Key: "owner_id", Value: ownerID}}
}

func staleFilter(cutoff time.Time) bson.D {
	return bson.D{{Key: "occurs_at", Value: bson.D{{Key: "$lt", Value: cutoff}}}}
}

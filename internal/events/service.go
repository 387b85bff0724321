package events

import (
	"context"
	"errors"
	"fmt"
	"math"

	"ticketly/internal/shared/apperrors"
	"ticketly/internal/shared/bus"
	"ticketly/internal/shared/constants"
	"ticketly/internal/users"
	"ticketly/pkg/cache"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reader is the slice of this package other domains depend on. The lock
// manager and booking coordinator read events and seat types; they never
// mutate them.
type Reader interface {
	GetEventRecord(ctx context.Context, id uuid.UUID) (*Event, error)
	GetSeatTypeRecord(ctx context.Context, id uuid.UUID) (*SeatType, error)
}

type Service interface {
	Reader

	CreateEvent(ctx context.Context, userID uuid.UUID, req *CreateEventRequest) (*EventResponse, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*EventResponse, error)
	ListEvents(ctx context.Context, query EventListQuery) (*PaginatedEvents, error)
	UpdateEvent(ctx context.Context, id, userID uuid.UUID, role string, req *UpdateEventRequest) (*EventResponse, error)
	DeleteEvent(ctx context.Context, id, userID uuid.UUID, role string) error

	CreateSeatType(ctx context.Context, eventID, userID uuid.UUID, role string, req *CreateSeatTypeRequest) (*SeatTypeResponse, error)
	UpdateSeatType(ctx context.Context, eventID, seatTypeID, userID uuid.UUID, role string, req *UpdateSeatTypeRequest) (*SeatTypeResponse, error)
	DeleteSeatType(ctx context.Context, eventID, seatTypeID, userID uuid.UUID, role string) error
}

type service struct {
	repo      Repository
	cache     cache.Service
	publisher bus.Publisher
}

func NewService(repo Repository, cacheService cache.Service, publisher bus.Publisher) Service {
	return &service{
		repo:      repo,
		cache:     cacheService,
		publisher: publisher,
	}
}

func (s *service) GetEventRecord(ctx context.Context, id uuid.UUID) (*Event, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "event not found")
		}
		return nil, apperrors.Internal(err)
	}
	return event, nil
}

func (s *service) GetSeatTypeRecord(ctx context.Context, id uuid.UUID) (*SeatType, error) {
	seatType, err := s.repo.GetSeatType(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSeatTypeNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "seat type not found")
		}
		return nil, apperrors.Internal(err)
	}
	return seatType, nil
}

func (s *service) CreateEvent(ctx context.Context, userID uuid.UUID, req *CreateEventRequest) (*EventResponse, error) {
	event := &Event{
		Name:        req.Name,
		Description: req.Description,
		Venue:       req.Venue,
		StartDate:   req.StartDate,
		Status:      EventStatusDraft,
		OrganizerID: userID,
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, apperrors.Internal(err)
	}

	s.invalidateListCache(ctx)
	s.publisher.Publish(ctx, bus.Event{
		Type:    "event_created",
		Payload: map[string]interface{}{"event_id": event.ID.String()},
	})

	resp := event.ToResponse()
	return &resp, nil
}

func (s *service) GetEvent(ctx context.Context, id uuid.UUID) (*EventResponse, error) {
	var resp EventResponse
	err := s.cache.GetOrSet(ctx, constants.BuildEventDetailKey(id.String()), constants.TTL_EVENT_DETAIL,
		func() (interface{}, error) {
			event, err := s.repo.GetWithSeatTypes(ctx, id)
			if err != nil {
				return nil, err
			}
			return event.ToResponse(), nil
		}, &resp)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "event not found")
		}
		return nil, apperrors.Internal(err)
	}
	return &resp, nil
}

func (s *service) ListEvents(ctx context.Context, query EventListQuery) (*PaginatedEvents, error) {
	// Only the default page is cached; filtered queries go to the DB
	if s.isDefaultQuery(query) {
		var page PaginatedEvents
		err := s.cache.GetOrSet(ctx, constants.KEY_EVENTS_LIST, constants.TTL_EVENT_LIST,
			func() (interface{}, error) {
				return s.listFromDB(ctx, query)
			}, &page)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		return &page, nil
	}

	page, err := s.listFromDB(ctx, query)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return page, nil
}

func (s *service) listFromDB(ctx context.Context, query EventListQuery) (*PaginatedEvents, error) {
	eventsList, totalCount, err := s.repo.GetAll(ctx, query)
	if err != nil {
		return nil, err
	}

	if query.Page == 0 {
		query.Page = 1
	}
	if query.Limit == 0 {
		query.Limit = 10
	}

	page := &PaginatedEvents{
		Events:     make([]EventResponse, 0, len(eventsList)),
		TotalCount: totalCount,
		Page:       query.Page,
		Limit:      query.Limit,
		TotalPages: int(math.Ceil(float64(totalCount) / float64(query.Limit))),
	}
	for i := range eventsList {
		page.Events = append(page.Events, eventsList[i].ToResponse())
	}
	return page, nil
}

func (s *service) isDefaultQuery(query EventListQuery) bool {
	return (query.Page == 0 || query.Page == 1) &&
		(query.Limit == 0 || query.Limit == 10) &&
		query.Search == "" && query.Status == ""
}

func (s *service) UpdateEvent(ctx context.Context, id, userID uuid.UUID, role string, req *UpdateEventRequest) (*EventResponse, error) {
	if _, err := s.authorizeOrganizer(ctx, id, userID, role); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Venue != nil {
		updates["venue"] = *req.Venue
	}
	if req.StartDate != nil {
		updates["start_date"] = *req.StartDate
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if len(updates) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "no fields to update")
	}

	event, err := s.repo.Update(ctx, id, updates)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	s.invalidateEventCaches(ctx, id)
	s.publisher.Publish(ctx, bus.Event{
		Type:    bus.EventEventUpdated,
		Payload: map[string]interface{}{"event_id": id.String()},
	})

	resp := event.ToResponse()
	return &resp, nil
}

func (s *service) DeleteEvent(ctx context.Context, id, userID uuid.UUID, role string) error {
	if _, err := s.authorizeOrganizer(ctx, id, userID, role); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return apperrors.Internal(err)
	}

	s.invalidateEventCaches(ctx, id)
	s.publisher.Publish(ctx, bus.Event{
		Type:    "event_deleted",
		Payload: map[string]interface{}{"event_id": id.String()},
	})
	return nil
}

func (s *service) CreateSeatType(ctx context.Context, eventID, userID uuid.UUID, role string, req *CreateSeatTypeRequest) (*SeatTypeResponse, error) {
	if _, err := s.authorizeOrganizer(ctx, eventID, userID, role); err != nil {
		return nil, err
	}

	price, err := parsePrice(req.Price)
	if err != nil {
		return nil, err
	}

	seatType := &SeatType{
		EventID:           eventID,
		Name:              req.Name,
		Description:       req.Description,
		Price:             price,
		Quantity:          req.Quantity,
		AvailableQuantity: req.Quantity,
	}

	if err := s.repo.CreateSeatType(ctx, seatType); err != nil {
		return nil, apperrors.Internal(err)
	}

	s.invalidateEventCaches(ctx, eventID)
	s.publisher.Publish(ctx, bus.Event{
		Type: "seat_type_created",
		Payload: map[string]interface{}{
			"event_id":     eventID.String(),
			"seat_type_id": seatType.ID.String(),
		},
	})

	resp := seatType.ToResponse()
	return &resp, nil
}

func (s *service) UpdateSeatType(ctx context.Context, eventID, seatTypeID, userID uuid.UUID, role string, req *UpdateSeatTypeRequest) (*SeatTypeResponse, error) {
	if _, err := s.authorizeOrganizer(ctx, eventID, userID, role); err != nil {
		return nil, err
	}

	existing, err := s.GetSeatTypeRecord(ctx, seatTypeID)
	if err != nil {
		return nil, err
	}
	if existing.EventID != eventID {
		return nil, apperrors.New(apperrors.KindNotFound, "seat type not found for event")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Price != nil {
		price, err := parsePrice(*req.Price)
		if err != nil {
			return nil, err
		}
		updates["price"] = price
	}
	if len(updates) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "no fields to update")
	}

	seatType, err := s.repo.UpdateSeatType(ctx, seatTypeID, updates)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	s.invalidateEventCaches(ctx, eventID)
	s.publisher.Publish(ctx, bus.Event{
		Type: "seat_type_updated",
		Payload: map[string]interface{}{
			"event_id":     eventID.String(),
			"seat_type_id": seatTypeID.String(),
		},
	})

	resp := seatType.ToResponse()
	return &resp, nil
}

func (s *service) DeleteSeatType(ctx context.Context, eventID, seatTypeID, userID uuid.UUID, role string) error {
	if _, err := s.authorizeOrganizer(ctx, eventID, userID, role); err != nil {
		return err
	}

	existing, err := s.GetSeatTypeRecord(ctx, seatTypeID)
	if err != nil {
		return err
	}
	if existing.EventID != eventID {
		return apperrors.New(apperrors.KindNotFound, "seat type not found for event")
	}

	// Live seat rows mean locks or bookings reference this type
	liveSeats, err := s.repo.CountLiveSeats(ctx, seatTypeID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if liveSeats > 0 {
		return apperrors.Newf(apperrors.KindConflict, "seat type has %d active seats and cannot be deleted", liveSeats)
	}

	if err := s.repo.DeleteSeatType(ctx, seatTypeID); err != nil {
		return apperrors.Internal(err)
	}

	s.invalidateEventCaches(ctx, eventID)
	s.publisher.Publish(ctx, bus.Event{
		Type: "seat_type_deleted",
		Payload: map[string]interface{}{
			"event_id":     eventID.String(),
			"seat_type_id": seatTypeID.String(),
		},
	})
	return nil
}

// authorizeOrganizer verifies the caller owns the event or is an admin
func (s *service) authorizeOrganizer(ctx context.Context, eventID, userID uuid.UUID, role string) (*Event, error) {
	event, err := s.GetEventRecord(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != userID && role != string(users.RoleAdmin) {
		return nil, apperrors.New(apperrors.KindAuthRequired, "only the event organizer may manage seat types")
	}
	return event, nil
}

func (s *service) invalidateEventCaches(ctx context.Context, eventID uuid.UUID) {
	if err := s.cache.Delete(ctx, constants.BuildEventDetailKey(eventID.String())); err != nil {
		// Stale entries age out on TTL
		_ = err
	}
	s.invalidateListCache(ctx)
}

func (s *service) invalidateListCache(ctx context.Context) {
	_ = s.cache.Delete(ctx, constants.KEY_EVENTS_LIST)
}

func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperrors.Wrap(err, apperrors.KindValidation, fmt.Sprintf("invalid price %q", raw))
	}
	if price.IsNegative() {
		return decimal.Zero, apperrors.New(apperrors.KindValidation, "price must not be negative")
	}
	return price, nil
}

package realtime

import (
	"context"
	"encoding/json"

	"ticketly/internal/seats"
	"ticketly/internal/shared/apperrors"

	"github.com/google/uuid"
)

// ActionRouter maps client-originated messages onto the seat lock
// manager. The originator gets a direct response; everyone else sees
// the resulting bus broadcast.
type ActionRouter struct {
	seats seats.Service
}

func NewActionRouter(seatService seats.Service) *ActionRouter {
	return &ActionRouter{seats: seatService}
}

type seatActionData struct {
	EventID           uuid.UUID `json:"event_id"`
	SeatTypeID        uuid.UUID `json:"seat_type_id"`
	SeatLabel         string    `json:"seat_label"`
	AdditionalSeconds int       `json:"additional_seconds,omitempty"`
}

func (r *ActionRouter) Dispatch(ctx context.Context, userID uuid.UUID, msg *clientMessage) (interface{}, error) {
	var data seatActionData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return nil, apperrors.New(apperrors.KindValidation, "malformed action data")
		}
	}
	if data.EventID == uuid.Nil || data.SeatTypeID == uuid.Nil {
		return nil, apperrors.New(apperrors.KindValidation, "event_id and seat_type_id are required")
	}

	switch msg.Action {
	case "lock_seat":
		return r.seats.Acquire(ctx, userID, data.EventID, data.SeatTypeID, data.SeatLabel)
	case "release_seat":
		if err := r.seats.Release(ctx, userID, data.EventID, data.SeatTypeID, data.SeatLabel); err != nil {
			return nil, err
		}
		return map[string]interface{}{"released": true}, nil
	case "extend_lock":
		return r.seats.Extend(ctx, userID, data.EventID, data.SeatTypeID, data.SeatLabel, data.AdditionalSeconds)
	default:
		return nil, apperrors.Newf(apperrors.KindValidation, "unknown action %q", msg.Action)
	}
}

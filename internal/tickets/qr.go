package tickets

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

// qrImageSize is capped so gate scanners with small buffers can decode
// the image.
const qrImageSize = 300

// qrPayload is what a gate scanner reads back.
type qrPayload struct {
	TicketID   string    `json:"ticket_id"`
	BookingRef string    `json:"booking_ref"`
	EventID    uuid.UUID `json:"event_id"`
	SeatLabel  string    `json:"seat_label"`
}

// BuildQRPayload serialises the scan payload for one ticket.
func BuildQRPayload(ticketID, bookingRef string, eventID uuid.UUID, seatLabel string) (string, error) {
	data, err := json.Marshal(qrPayload{
		TicketID:   ticketID,
		BookingRef: bookingRef,
		EventID:    eventID,
		SeatLabel:  seatLabel,
	})
	if err != nil {
		return "", fmt.Errorf("marshal qr payload: %w", err)
	}
	return string(data), nil
}

// GenerateQR renders the payload as a PNG with high error correction,
// so tickets survive crumpled printouts and cracked screens.
func GenerateQR(payload string) ([]byte, error) {
	image, err := qrcode.Encode(payload, qrcode.High, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr image: %w", err)
	}
	return image, nil
}

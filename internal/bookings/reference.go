package bookings

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// maxReferenceRetries bounds the collision retry loop. With a 4-hex
// suffix per second the collision odds are below 1e-4.
const maxReferenceRetries = 5

// GenerateReference produces a human-readable booking reference,
// BKG-YYYY-MMDD-HHMMSS-XXXX, where XXXX is a random hex suffix.
func GenerateReference(now time.Time) (string, error) {
	suffix := make([]byte, 2)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("generate booking reference: %w", err)
	}

	t := now.UTC()
	return fmt.Sprintf("BKG-%04d-%02d%02d-%02d%02d%02d-%s",
		t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(),
		strings.ToUpper(hex.EncodeToString(suffix)),
	), nil
}

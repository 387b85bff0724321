package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	secret := "whsec_test"

	assert.True(t, VerifyWebhookSignature(body, sign(body, secret), secret))
	assert.False(t, VerifyWebhookSignature(body, sign(body, "other"), secret))
	assert.False(t, VerifyWebhookSignature(body, "", secret))
	assert.False(t, VerifyWebhookSignature(body, sign(body, secret), ""))

	// A single changed byte must fail
	tampered := append([]byte{}, body...)
	tampered[0] = ' '
	assert.False(t, VerifyWebhookSignature(tampered, sign(body, secret), secret))
}

func TestVerifyCheckoutSignature(t *testing.T) {
	secret := "key_secret"
	signature := sign([]byte("order_1|pay_1"), secret)

	assert.True(t, VerifyCheckoutSignature("order_1", "pay_1", signature, secret))
	assert.False(t, VerifyCheckoutSignature("order_1", "pay_2", signature, secret))
	assert.False(t, VerifyCheckoutSignature("order_1", "pay_1", signature, "wrong"))
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(50000), toMinorUnits(decimal.RequireFromString("500.00")))
	assert.Equal(t, int64(50), toMinorUnits(decimal.RequireFromString("0.50")))
	assert.Equal(t, int64(123457), toMinorUnits(decimal.RequireFromString("1234.567")))
}

package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// checkoutSignature is the provider's checkout signature: hex HMAC-SHA256 of
// "<orderID>|<paymentID>" keyed with the API secret.
func checkoutSignature(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// validCheckoutSignature compares in constant time.
func validCheckoutSignature(secret, orderID, paymentID, got string) bool {
	want := checkoutSignature(secret, orderID, paymentID)
	return hmac.Equal([]byte(want), []byte(got))
}

// validWebhookSignature verifies the hex HMAC-SHA256 of the raw webhook body
// keyed with the webhook secret.
func validWebhookSignature(secret string, body []byte, got string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(got))
}

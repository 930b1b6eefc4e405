package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the webhook body signature.
const SignatureHeader = "X-Razorpay-Signature"

// EventIDHeader carries the gateway's unique id for a webhook delivery.
const EventIDHeader = "X-Razorpay-Event-Id"

// VerifyPaymentSignature checks the checkout signature the gateway hands to
// the client: hex(HMAC-SHA256(keySecret, orderID + "|" + paymentID)).
// The comparison is constant time. Missing input never verifies.
func VerifyPaymentSignature(keySecret, orderID, paymentID, signature string) bool {
	if keySecret == "" || orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	return verifyHex(keySecret, []byte(orderID+"|"+paymentID), signature)
}

// VerifyWebhookSignature checks a webhook delivery against the raw request
// bytes using the webhook secret, which is distinct from the key secret.
func VerifyWebhookSignature(webhookSecret string, body []byte, signature string) bool {
	if webhookSecret == "" || len(body) == 0 || signature == "" {
		return false
	}
	return verifyHex(webhookSecret, body, signature)
}

// Sign returns the hex HMAC-SHA256 of payload. Used by tests and local tooling
// to produce signatures the verifiers accept.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyHex(secret string, payload []byte, signature string) bool {
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

package payoutclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// PaymentSignature is hex(HMAC-SHA256(orderID + "|" + paymentID, secret)), the value the
// checkout hands back to the client after a successful payment.
func PaymentSignature(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaymentSignature checks a checkout signature in constant time.
func (c *Client) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	if c.KeySecret == "" || signature == "" {
		return false
	}
	expected := PaymentSignature(orderID, paymentID, c.KeySecret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

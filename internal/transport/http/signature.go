package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Подпись webhook в стиле Stripe: заголовок вида
// t=<unix>,v1=<hex hmac-sha256(secret, "<t>.<body>")>.
const (
	signatureHeader           = "Webhook-Signature"
	defaultSignatureTolerance = 5 * time.Minute
)

// computeSignature считает v1-подпись для тела с данной меткой времени.
func computeSignature(secret []byte, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature разбирает заголовок подписи и сверяет HMAC в константное
// время. Любое отклонение, включая устаревшую метку времени, закрывает
// запрос с ErrSignatureInvalid.
func verifySignature(secret []byte, header string, body []byte, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return domain.ErrSignatureInvalid
	}

	var (
		timestamp  int64
		signatures []string
		sawTS      bool
	)

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return domain.ErrSignatureInvalid
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return domain.ErrSignatureInvalid
			}
			timestamp = ts
			sawTS = true
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if !sawTS || len(signatures) == 0 {
		return domain.ErrSignatureInvalid
	}

	sent := time.Unix(timestamp, 0)
	if now.Sub(sent) > tolerance || sent.Sub(now) > tolerance {
		return domain.ErrSignatureInvalid
	}

	expected := computeSignature(secret, timestamp, body)
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}

	return domain.ErrSignatureInvalid
}

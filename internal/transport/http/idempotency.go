package http

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"

	defaultIdempotencyTTL = 24 * time.Hour
	maxIdempotencyBody    = 1 << 20
)

// IdempotencyMiddleware повторяет сохранённый ответ при повторе запроса с тем
// же Idempotency-Key. Ключ с другим телом запроса отклоняется, параллельный
// повтор во время обработки получает 409.
type IdempotencyMiddleware struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
}

// NewIdempotencyMiddleware создаёт middleware поверх репозитория ключей.
func NewIdempotencyMiddleware(repo domain.IdempotencyRepository, logger *log.Entry) *IdempotencyMiddleware {
	if logger == nil {
		logger = log.New().WithField("component", "idempotency-middleware")
	}
	return &IdempotencyMiddleware{
		repo:   repo,
		ttl:    defaultIdempotencyTTL,
		logger: logger,
	}
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(data)
	return r.ResponseWriter.Write(data)
}

// Wrap возвращает handler с идемпотентной обработкой запросов.
func (m *IdempotencyMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyKeyHeader)
		if key == "" || m.repo == nil {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotencyBody))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "failed to read body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		requestHash := hashRequest(r, body)

		_, err = m.repo.CreateProcessing(key, requestHash, time.Now().UTC().Add(m.ttl))
		if err != nil {
			if errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
				m.replay(w, key, requestHash)
				return
			}
			if errors.Is(err, domain.ErrIdempotencyHashMismatch) {
				respondError(w, http.StatusUnprocessableEntity, "idempotency_mismatch",
					"idempotency key reused with different request")
				return
			}
			m.logger.WithError(err).Warn("idempotency key registration failed")
			respondError(w, http.StatusInternalServerError, "internal_error", "idempotency registration failed")
			return
		}

		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		if rec.status >= 200 && rec.status < 400 {
			err = m.repo.MarkDone(key, rec.body.Bytes(), rec.status)
		} else {
			err = m.repo.MarkFailed(key, rec.body.Bytes(), rec.status)
		}
		if err != nil {
			m.logger.WithError(err).WithField("key", key).Warn("failed to store idempotent response")
		}
	})
}

// replay отдаёт сохранённый ответ по уже известному ключу.
func (m *IdempotencyMiddleware) replay(w http.ResponseWriter, key, requestHash string) {
	record, err := m.repo.Get(key)
	if err != nil {
		m.logger.WithError(err).WithField("key", key).Warn("idempotency record lookup failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "idempotency lookup failed")
		return
	}

	if record.RequestHash != requestHash {
		respondError(w, http.StatusUnprocessableEntity, "idempotency_mismatch",
			"idempotency key reused with different request")
		return
	}

	if record.Status == domain.IdempotencyStatusProcessing {
		respondError(w, http.StatusConflict, "processing", "request is still being processed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replay", "true")
	w.WriteHeader(record.HTTPStatus)
	_, _ = w.Write(record.ResponseBody)
}

func hashRequest(r *http.Request, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(r.Method))
	sum.Write([]byte("\n"))
	sum.Write([]byte(r.URL.Path))
	sum.Write([]byte("\n"))
	sum.Write([]byte(r.Header.Get(userIDHeader)))
	sum.Write([]byte("\n"))
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

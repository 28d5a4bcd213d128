package middleware

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"lukechampine.com/blake3"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"

	defaultIdempotencyTTL = 24 * time.Hour
	maxIdempotentBody     = 1 << 20
)

var bucketIdempotency = []byte("idempotency")

// IdempotencyRecord stores the response produced for an idempotency key.
type IdempotencyRecord struct {
	RequestDigest string    `json:"requestDigest"`
	StatusCode    int       `json:"statusCode"`
	Body          []byte    `json:"body"`
	StoredAt      time.Time `json:"storedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// IdempotencyStore persists responses in a bbolt file so a retried request
// observes the original outcome instead of applying the operation twice.
type IdempotencyStore struct {
	db       *bolt.DB
	ttl      time.Duration
	nowFn    func() time.Time
	logger   *slog.Logger
	inflight sync.Map
}

func OpenIdempotencyStore(path string, ttl time.Duration, logger *slog.Logger) (*IdempotencyStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("idempotency store path required")
	}
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open idempotency store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIdempotency)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init idempotency store: %w", err)
	}
	return &IdempotencyStore{db: db, ttl: ttl, nowFn: time.Now, logger: logger}, nil
}

func (s *IdempotencyStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the stored record for key. Expired records are removed.
func (s *IdempotencyStore) Get(key string) (IdempotencyRecord, bool, error) {
	var record IdempotencyRecord
	found := false
	now := s.nowFn()
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIdempotency)
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &record); err != nil {
			return err
		}
		if now.After(record.ExpiresAt) {
			record = IdempotencyRecord{}
			return bucket.Delete([]byte(key))
		}
		found = true
		return nil
	})
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return record, found, nil
}

func (s *IdempotencyStore) Put(key string, record IdempotencyRecord) error {
	now := s.nowFn()
	if record.StoredAt.IsZero() {
		record.StoredAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = now.Add(s.ttl)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIdempotency).Put([]byte(key), payload)
	})
}

// Middleware replays the stored response when a request repeats an
// Idempotency-Key. Keys are scoped to the caller, method and path. Server
// errors are not stored so the client can retry them.
func (s *IdempotencyStore) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
		if key == "" || s == nil {
			next.ServeHTTP(w, r)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_input", "unreadable_body", "could not read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		digest := blake3.Sum256(body)
		requestDigest := hex.EncodeToString(digest[:])
		scoped := scopeKey(r, key)

		// Claim the key before the lookup. The record is stored before the
		// claim is released, so the next holder always sees it.
		if _, busy := s.inflight.LoadOrStore(scoped, struct{}{}); busy {
			WriteError(w, http.StatusConflict, "state_conflict", "idempotency_in_flight",
				"a request with this idempotency key is in progress")
			return
		}
		defer s.inflight.Delete(scoped)

		if record, ok, err := s.Get(scoped); err != nil {
			s.logger.Error("idempotency lookup failed", "error", err)
		} else if ok {
			if record.RequestDigest != requestDigest {
				WriteError(w, http.StatusUnprocessableEntity, "invalid_input", "idempotency_key_reused",
					"idempotency key was used with a different request body")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(HeaderReplayed, "true")
			w.WriteHeader(record.StatusCode)
			_, _ = w.Write(record.Body)
			return
		}

		recorder := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)
		if recorder.status == 0 {
			recorder.status = http.StatusOK
		}
		if recorder.status >= http.StatusInternalServerError {
			return
		}
		if err := s.Put(scoped, IdempotencyRecord{
			RequestDigest: requestDigest,
			StatusCode:    recorder.status,
			Body:          recorder.buf.Bytes(),
		}); err != nil {
			s.logger.Error("idempotency store failed", "error", err)
		}
	})
}

func scopeKey(r *http.Request, key string) string {
	caller := "anonymous"
	if addr, ok := CallerFrom(r.Context()); ok {
		caller = addr.Hex()
	}
	return caller + " " + r.Method + " " + r.URL.Path + " " + key
}

// responseRecorder captures the response for idempotent operations.
type responseRecorder struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	rr.buf.Write(b)
	return rr.ResponseWriter.Write(b)
}

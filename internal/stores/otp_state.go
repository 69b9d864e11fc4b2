package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aurumvault/adminauth/internal/limiters"
	"github.com/aurumvault/adminauth/store"
)

const (
	emailStateVersionV1 = 1

	flagPending = 1 << 0
	flagUsed    = 1 << 1

	maxEmailBytes = 320

	minStateTTL = time.Second
)

var (
	ErrStateUnavailable = errors.New("otp state backend unavailable")
	// ErrStateCorrupt is returned with ErrStateUnavailable for a stored
	// record that cannot be decoded. The record is left in place.
	ErrStateCorrupt = errors.New("otp state record corrupt")
	errStateTruncated   = errors.New("otp state record truncated")
)

// PendingOTP is the single outstanding code for an email.
type PendingOTP struct {
	Email     string
	CodeHash  [32]byte
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
	// Attempts counts verification attempts made against this code.
	Attempts uint16
	// Nonce identifies the issuance that created this code.
	Nonce [16]byte
}

// Expired reports whether the code can no longer be used at now. The code
// is still accepted at exactly ExpiresAt.
func (p *PendingOTP) Expired(now time.Time) bool {
	return p == nil || now.After(p.ExpiresAt)
}

// EmailState is everything the engine tracks for one email address.
type EmailState struct {
	Limits  limiters.RateLimitRecord
	Pending *PendingOTP
}

// Empty reports whether nothing needs to be persisted.
func (s *EmailState) Empty() bool {
	return s == nil || (s.Pending == nil && s.Limits.Empty())
}

// Clone returns a deep copy.
func (s *EmailState) Clone() *EmailState {
	if s == nil {
		return &EmailState{}
	}
	out := &EmailState{Limits: s.Limits.Clone()}
	if s.Pending != nil {
		p := *s.Pending
		out.Pending = &p
	}
	return out
}

// TTL returns how long the record must be retained at now: until the pending
// code expires, the lockout ends, or the newest request leaves the window,
// whichever is last.
func (s *EmailState) TTL(now time.Time, window time.Duration) time.Duration {
	var until time.Time
	if s.Pending != nil && s.Pending.ExpiresAt.After(until) {
		until = s.Pending.ExpiresAt
	}
	if s.Limits.LockoutUntil.After(until) {
		until = s.Limits.LockoutUntil
	}
	if !s.Limits.LastRequestAt.IsZero() {
		if end := s.Limits.LastRequestAt.Add(window); end.After(until) {
			until = end
		}
	}
	for _, ts := range s.Limits.RequestTimes {
		if end := ts.Add(window); end.After(until) {
			until = end
		}
	}
	// A nonzero failure counter without a lockout still needs to survive
	// until the pending code or window ends; fall back to the window.
	if until.IsZero() && s.Limits.FailedCount > 0 {
		until = now.Add(window)
	}

	ttl := until.Sub(now)
	if ttl < minStateTTL {
		ttl = minStateTTL
	}
	return ttl
}

// EmailStateStore loads and compare-and-swaps [EmailState] records.
type EmailStateStore struct {
	kv     store.Store
	prefix string
}

// NewEmailStateStore creates a store. prefix defaults to "ao".
func NewEmailStateStore(kv store.Store, prefix string) *EmailStateStore {
	if prefix == "" {
		prefix = "ao"
	}
	return &EmailStateStore{
		kv:     kv,
		prefix: prefix,
	}
}

func (s *EmailStateStore) key(email string) string {
	return s.prefix + ":otp:" + email
}

// Load returns the current state for email and the raw bytes it was decoded
// from (nil when absent). An undecodable record is an error, never an empty
// state, so a lockout cannot be cleared by overwriting it.
func (s *EmailStateStore) Load(ctx context.Context, email string) (*EmailState, []byte, error) {
	raw, err := s.kv.Get(ctx, s.key(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &EmailState{}, nil, nil
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrStateUnavailable, err)
	}

	state, err := DecodeEmailState(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w: %v", ErrStateUnavailable, ErrStateCorrupt, err)
	}
	return state, raw, nil
}

// Swap writes next only if the stored bytes still equal old. An empty next
// deletes the record.
func (s *EmailStateStore) Swap(
	ctx context.Context,
	email string,
	old []byte,
	next *EmailState,
	ttl time.Duration,
) (bool, error) {
	var encoded []byte
	if !next.Empty() {
		var err error
		encoded, err = EncodeEmailState(next)
		if err != nil {
			return false, err
		}
	} else if old == nil {
		return true, nil
	}

	ok, err := s.kv.CompareAndSwap(ctx, s.key(email), old, encoded, ttl)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStateUnavailable, err)
	}
	return ok, nil
}

// EncodeEmailState serializes a state record.
func EncodeEmailState(state *EmailState) ([]byte, error) {
	if state == nil {
		return nil, errors.New("nil otp state")
	}
	if len(state.Limits.RequestTimes) > limiters.MaxTrackedRequests {
		return nil, errors.New("otp state has too many request times")
	}

	var buf bytes.Buffer
	buf.WriteByte(emailStateVersionV1)

	var flags byte
	if state.Pending != nil {
		flags |= flagPending
		if state.Pending.Used {
			flags |= flagUsed
		}
	}
	buf.WriteByte(flags)

	limits := state.Limits
	if limits.FailedCount < 0 || limits.FailedCount > 0xFFFF {
		return nil, errors.New("otp state failed count out of range")
	}
	fields := []any{
		unixNano(limits.LastRequestAt),
		uint16(limits.FailedCount),
		unixNano(limits.LockoutUntil),
		uint16(len(limits.RequestTimes)),
	}
	for _, f := range fields {
		if err := binary.Write(&buf, binary.BigEndian, f); err != nil {
			return nil, err
		}
	}
	for _, ts := range limits.RequestTimes {
		if err := binary.Write(&buf, binary.BigEndian, unixNano(ts)); err != nil {
			return nil, err
		}
	}

	if p := state.Pending; p != nil {
		if len(p.Email) > maxEmailBytes {
			return nil, errors.New("otp state email too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(p.Email))); err != nil {
			return nil, err
		}
		buf.WriteString(p.Email)
		buf.Write(p.CodeHash[:])
		for _, f := range []any{unixNano(p.CreatedAt), unixNano(p.ExpiresAt), p.Attempts} {
			if err := binary.Write(&buf, binary.BigEndian, f); err != nil {
				return nil, err
			}
		}
		buf.Write(p.Nonce[:])
	}

	return buf.Bytes(), nil
}

// DecodeEmailState parses a record produced by EncodeEmailState.
func DecodeEmailState(data []byte) (*EmailState, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errStateTruncated
	}
	if version != emailStateVersionV1 {
		return nil, fmt.Errorf("unsupported otp state version %d", version)
	}
	flags, err := reader.ReadByte()
	if err != nil {
		return nil, errStateTruncated
	}

	var (
		last, lockout int64
		failed, count uint16
	)
	for _, f := range []any{&last, &failed, &lockout, &count} {
		if err := binary.Read(reader, binary.BigEndian, f); err != nil {
			return nil, errStateTruncated
		}
	}
	if count > limiters.MaxTrackedRequests {
		return nil, errors.New("otp state has too many request times")
	}

	state := &EmailState{
		Limits: limiters.RateLimitRecord{
			LastRequestAt: fromUnixNano(last),
			FailedCount:   int(failed),
			LockoutUntil:  fromUnixNano(lockout),
		},
	}
	if count > 0 {
		state.Limits.RequestTimes = make([]time.Time, 0, count)
		for i := 0; i < int(count); i++ {
			var ts int64
			if err := binary.Read(reader, binary.BigEndian, &ts); err != nil {
				return nil, errStateTruncated
			}
			state.Limits.RequestTimes = append(state.Limits.RequestTimes, fromUnixNano(ts))
		}
	}

	if flags&flagPending != 0 {
		p := &PendingOTP{Used: flags&flagUsed != 0}

		var emailLen uint16
		if err := binary.Read(reader, binary.BigEndian, &emailLen); err != nil {
			return nil, errStateTruncated
		}
		if emailLen > maxEmailBytes {
			return nil, errors.New("otp state email too long")
		}
		email := make([]byte, emailLen)
		if _, err := io.ReadFull(reader, email); err != nil {
			return nil, errStateTruncated
		}
		p.Email = string(email)

		if _, err := io.ReadFull(reader, p.CodeHash[:]); err != nil {
			return nil, errStateTruncated
		}
		var created, expires int64
		for _, f := range []any{&created, &expires, &p.Attempts} {
			if err := binary.Read(reader, binary.BigEndian, f); err != nil {
				return nil, errStateTruncated
			}
		}
		p.CreatedAt = fromUnixNano(created)
		p.ExpiresAt = fromUnixNano(expires)
		if _, err := io.ReadFull(reader, p.Nonce[:]); err != nil {
			return nil, errStateTruncated
		}
		state.Pending = p
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in otp state record")
	}
	return state, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

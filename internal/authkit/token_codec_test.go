package authkit

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fixedClock struct {
	timestamp time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.timestamp
}

type controllableClock struct {
	mutex   sync.Mutex
	current time.Time
}

func newControllableClock(start time.Time) *controllableClock {
	return &controllableClock{current: start}
}

func (clock *controllableClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.current
}

func (clock *controllableClock) Advance(duration time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.current = clock.current.Add(duration)
}

func (clock *controllableClock) Set(timestamp time.Time) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.current = timestamp
}

func testSigningKeys() SigningKeys {
	return SigningKeys{
		AccessKey:  []byte("access-secret-key-1234567890"),
		RefreshKey: []byte("refresh-secret-key-0987654321"),
	}
}

func newTestCodec(t *testing.T, clock Clock) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(testSigningKeys(), "test-issuer", clock)
	if err != nil {
		t.Fatalf("failed to build codec: %v", err)
	}
	return codec
}

func TestNewTokenCodecRejectsSharedKeys(t *testing.T) {
	t.Parallel()

	_, err := NewTokenCodec(SigningKeys{AccessKey: []byte("same"), RefreshKey: []byte("same")}, "issuer", nil)
	if err == nil {
		t.Fatalf("expected error when access and refresh keys are identical")
	}
	if _, err := NewTokenCodec(SigningKeys{RefreshKey: []byte("refresh")}, "issuer", nil); err == nil {
		t.Fatalf("expected error when access key is missing")
	}
	if _, err := NewTokenCodec(SigningKeys{AccessKey: []byte("access")}, "issuer", nil); err == nil {
		t.Fatalf("expected error when refresh key is missing")
	}
}

func TestMintRejectsEmptySubject(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, fixedClock{timestamp: time.Unix(1700000000, 0)})
	_, err := codec.Mint("", PurposeAccess, time.Minute)
	if err == nil {
		t.Fatalf("expected error when subject is empty")
	}

	expected := "jwt.mint.failure: subject must be non-empty"
	if err.Error() != expected {
		t.Fatalf("expected error %q, got %q", expected, err.Error())
	}
}

func TestMintRejectsNonPositiveTTL(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, fixedClock{timestamp: time.Unix(1700000000, 0)})
	if _, err := codec.Mint("alice", PurposeAccess, 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
	if _, err := codec.Mint("alice", TokenPurpose("other"), time.Minute); !errors.Is(err, ErrUnknownTokenPurpose) {
		t.Fatalf("expected ErrUnknownTokenPurpose, got %v", err)
	}
}

func TestMintVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	reference := time.Unix(1700000000, 0).UTC()
	codec := newTestCodec(t, fixedClock{timestamp: reference})

	testCases := []struct {
		subject string
		purpose TokenPurpose
		ttl     time.Duration
	}{
		{subject: "alice", purpose: PurposeAccess, ttl: time.Second},
		{subject: "bob@example.com", purpose: PurposeAccess, ttl: 15 * time.Minute},
		{subject: "carol", purpose: PurposeRefresh, ttl: 7 * 24 * time.Hour},
		{subject: "ünïcode-user", purpose: PurposeRefresh, ttl: time.Hour},
	}
	for _, testCase := range testCases {
		token, mintErr := codec.Mint(testCase.subject, testCase.purpose, testCase.ttl)
		if mintErr != nil {
			t.Fatalf("mint %q failed: %v", testCase.subject, mintErr)
		}
		claims, verifyErr := codec.Verify(token, testCase.purpose)
		if verifyErr != nil {
			t.Fatalf("verify %q failed: %v", testCase.subject, verifyErr)
		}
		if claims.Subject != testCase.subject {
			t.Fatalf("expected subject %q, got %q", testCase.subject, claims.Subject)
		}
		if !claims.IssuedAt.Equal(reference) {
			t.Fatalf("expected issuedAt %v, got %v", reference, claims.IssuedAt)
		}
		if !claims.ExpiresAt.Equal(reference.Add(testCase.ttl)) {
			t.Fatalf("expected expiry %v, got %v", reference.Add(testCase.ttl), claims.ExpiresAt)
		}
	}
}

func TestMintIsDeterministicForIdenticalTimestamps(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, fixedClock{timestamp: time.Unix(1700000000, 0)})
	first, _ := codec.Mint("alice", PurposeAccess, time.Minute)
	second, _ := codec.Mint("alice", PurposeAccess, time.Minute)
	if first != second {
		t.Fatalf("expected identical tokens for identical timestamps")
	}
}

func TestVerifyRejectsCrossPurposeTokens(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, fixedClock{timestamp: time.Unix(1700000000, 0)})
	for _, subject := range []string{"alice", "bob", "x"} {
		for _, ttl := range []time.Duration{time.Second, time.Minute, 24 * time.Hour} {
			accessToken, _ := codec.Mint(subject, PurposeAccess, ttl)
			if _, err := codec.Verify(accessToken, PurposeRefresh); !errors.Is(err, ErrBadSignature) {
				t.Fatalf("expected ErrBadSignature verifying access token as refresh, got %v", err)
			}
			refreshToken, _ := codec.Mint(subject, PurposeRefresh, ttl)
			if _, err := codec.Verify(refreshToken, PurposeAccess); !errors.Is(err, ErrBadSignature) {
				t.Fatalf("expected ErrBadSignature verifying refresh token as access, got %v", err)
			}
		}
	}
}

func TestVerifyFailureKinds(t *testing.T) {
	t.Parallel()

	reference := time.Unix(1700000000, 0).UTC()
	clock := newControllableClock(reference)
	codec := newTestCodec(t, clock)
	validToken, err := codec.Mint("alice", PurposeAccess, time.Minute)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	segments := strings.Split(validToken, ".")
	tamperedToken := segments[0] + "." + segments[1] + ".AAAA" + segments[2][4:]

	otherCodec, _ := NewTokenCodec(SigningKeys{AccessKey: []byte("foreign-access"), RefreshKey: []byte("foreign-refresh")}, "test-issuer", clock)
	foreignToken, _ := otherCodec.Mint("alice", PurposeAccess, time.Minute)

	testCases := []struct {
		name      string
		token     string
		expectErr error
	}{
		{name: "empty", token: "", expectErr: ErrMalformedToken},
		{name: "garbage", token: "not-a-token", expectErr: ErrMalformedToken},
		{name: "bad base64", token: "a.b.c", expectErr: ErrMalformedToken},
		{name: "tampered signature", token: tamperedToken, expectErr: ErrBadSignature},
		{name: "foreign key", token: foreignToken, expectErr: ErrBadSignature},
	}
	for _, testCase := range testCases {
		if _, verifyErr := codec.Verify(testCase.token, PurposeAccess); !errors.Is(verifyErr, testCase.expectErr) {
			t.Fatalf("%s: expected %v, got %v", testCase.name, testCase.expectErr, verifyErr)
		}
	}
}

func TestVerifyExpiryBoundaryIsInclusive(t *testing.T) {
	t.Parallel()

	reference := time.Unix(1700000000, 0).UTC()
	clock := newControllableClock(reference)
	codec := newTestCodec(t, clock)
	token, err := codec.Mint("alice", PurposeAccess, time.Minute)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	clock.Set(reference.Add(time.Minute - time.Second))
	if _, verifyErr := codec.Verify(token, PurposeAccess); verifyErr != nil {
		t.Fatalf("expected token valid one second before expiry, got %v", verifyErr)
	}

	clock.Set(reference.Add(time.Minute))
	if _, verifyErr := codec.Verify(token, PurposeAccess); !errors.Is(verifyErr, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired at expiry instant, got %v", verifyErr)
	}
}

func TestVerifyRejectsForeignIssuer(t *testing.T) {
	t.Parallel()

	clock := fixedClock{timestamp: time.Unix(1700000000, 0)}
	foreignCodec, err := NewTokenCodec(testSigningKeys(), "someone-else", clock)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	token, _ := foreignCodec.Mint("alice", PurposeAccess, time.Minute)
	if _, verifyErr := newTestCodec(t, clock).Verify(token, PurposeAccess); verifyErr == nil {
		t.Fatalf("expected issuer mismatch to fail verification")
	}
}

func TestExtractAccessors(t *testing.T) {
	t.Parallel()

	reference := time.Unix(1700000000, 0).UTC()
	codec := newTestCodec(t, fixedClock{timestamp: reference})
	token, _ := codec.Mint("alice", PurposeAccess, 2*time.Minute)

	subject, err := codec.ExtractSubject(token, PurposeAccess)
	if err != nil || subject != "alice" {
		t.Fatalf("expected subject alice, got %q (%v)", subject, err)
	}
	expiry, err := codec.ExtractExpiry(token, PurposeAccess)
	if err != nil || !expiry.Equal(reference.Add(2*time.Minute)) {
		t.Fatalf("unexpected expiry %v (%v)", expiry, err)
	}
	if _, err := codec.ExtractSubject(token, PurposeRefresh); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected accessor to refuse unverified claims, got %v", err)
	}
}

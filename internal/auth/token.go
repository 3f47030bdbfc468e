package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SpectatorAudience is the audience every spectator token is issued for.
const SpectatorAudience = "arena-spectator"

var (
	// ErrInvalidToken indicates the token failed signature checks or had malformed structure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken signals that the token's expiry is in the past.
	ErrExpiredToken = errors.New("token expired")
	// ErrWrongAudience is returned for tokens minted for another service.
	ErrWrongAudience = errors.New("token audience mismatch")
)

// SpectatorClaims identifies a spectator admitted to watch a battle.
type SpectatorClaims struct {
	Spectator string
	Battle    string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

type tokenHeader struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
}

type tokenPayload struct {
	Subject  string `json:"sub"`
	Battle   string `json:"bid,omitempty"`
	Expires  int64  `json:"exp"`
	Issued   int64  `json:"iat"`
	Audience string `json:"aud"`
}

// SpectatorTokens issues and verifies compact HS256 tokens for spectator feeds.
type SpectatorTokens struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
}

// NewSpectatorTokens constructs a token authority for the shared secret and clock skew
// allowance.
func NewSpectatorTokens(secret string, leeway time.Duration) (*SpectatorTokens, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("hmac secret must not be empty")
	}
	if leeway < 0 {
		leeway = 0
	}
	return &SpectatorTokens{secret: []byte(secret), now: time.Now, leeway: leeway}, nil
}

// WithClock overrides the clock, enabling deterministic unit tests.
func (t *SpectatorTokens) WithClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	t.now = clock
}

// Issue mints a token naming spectator, valid for ttl. An empty battle admits the
// spectator to any battle served with the same secret.
func (t *SpectatorTokens) Issue(spectator, battle string, ttl time.Duration) (string, error) {
	if t == nil || len(t.secret) == 0 {
		return "", errors.New("token authority not initialised")
	}
	spectator = strings.TrimSpace(spectator)
	if spectator == "" {
		return "", fmt.Errorf("%w: spectator name must not be empty", ErrInvalidToken)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: ttl must be positive", ErrInvalidToken)
	}
	now := t.now()
	header, err := json.Marshal(tokenHeader{Algorithm: "HS256", Type: "JWT"})
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(tokenPayload{
		Subject:  spectator,
		Battle:   strings.TrimSpace(battle),
		Expires:  now.Add(ttl).Unix(),
		Issued:   now.Unix(),
		Audience: SpectatorAudience,
	})
	if err != nil {
		return "", err
	}
	signed := encodeSegment(header) + "." + encodeSegment(payload)
	return signed + "." + encodeSegment(t.sign([]byte(signed))), nil
}

// Verify parses the token and validates its signature, audience, battle and expiry. An
// empty battle skips the battle check.
func (t *SpectatorTokens) Verify(token, battle string) (*SpectatorClaims, error) {
	if t == nil || len(t.secret) == 0 {
		return nil, errors.New("token authority not initialised")
	}
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	//1.- Check the algorithm and signature before trusting any claim.
	var header tokenHeader
	if err := decodeJSONSegment(parts[0], &header); err != nil {
		return nil, ErrInvalidToken
	}
	if header.Algorithm != "HS256" {
		return nil, fmt.Errorf("%w: unexpected algorithm %q", ErrInvalidToken, header.Algorithm)
	}
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal(signature, t.sign([]byte(parts[0]+"."+parts[1]))) {
		return nil, ErrInvalidToken
	}

	//2.- Validate the claims against this service and battle.
	var payload tokenPayload
	if err := decodeJSONSegment(parts[1], &payload); err != nil {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(payload.Subject) == "" || payload.Expires <= 0 {
		return nil, ErrInvalidToken
	}
	if payload.Audience != SpectatorAudience {
		return nil, fmt.Errorf("%w: %q", ErrWrongAudience, payload.Audience)
	}
	battle = strings.TrimSpace(battle)
	if battle != "" && payload.Battle != "" && payload.Battle != battle {
		return nil, fmt.Errorf("%w: token for battle %q", ErrInvalidToken, payload.Battle)
	}
	expiresAt := time.Unix(payload.Expires, 0)
	if expiresAt.Add(t.leeway).Before(t.now()) {
		return nil, ErrExpiredToken
	}
	return &SpectatorClaims{
		Spectator: payload.Subject,
		Battle:    payload.Battle,
		ExpiresAt: expiresAt,
		IssuedAt:  time.Unix(payload.Issued, 0),
	}, nil
}

func (t *SpectatorTokens) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

func encodeSegment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeJSONSegment(segment string, dst any) error {
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

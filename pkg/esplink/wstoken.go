package esplink

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const HandshakeTokenTTL = 10 * time.Minute

// HandshakeToken is a short-lived HS256 token the gateway in front of the
// device can check before upgrading the connection.
type HandshakeToken struct {
	Token     string
	ExpiresAt time.Time
}

func GenerateHandshakeToken(secret, deviceID string, now time.Time) (*HandshakeToken, error) {
	if secret == "" {
		return nil, NewConfigError("handshake secret is empty")
	}
	expiresAt := now.Add(HandshakeTokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   deviceID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return nil, NewConfigError("sign handshake token").Wrap(err)
	}
	return &HandshakeToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// ParseHandshakeToken validates token against secret and returns its subject.
func ParseHandshakeToken(token, secret string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, NewConfigError("unexpected signing method " + t.Method.Alg())
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", NewConfigError("invalid handshake token").Wrap(err)
	}
	if !parsed.Valid {
		return "", NewConfigError("invalid handshake token")
	}
	return claims.Subject, nil
}

// handshakeHeader builds the headers sent with every dial.
func handshakeHeader(config *LinkConfig, now time.Time) (http.Header, error) {
	header := make(http.Header)
	for k, v := range config.Headers {
		header.Set(k, v)
	}
	if config.AuthSecret != "" {
		tok, err := GenerateHandshakeToken(config.AuthSecret, config.DeviceID, now)
		if err != nil {
			return nil, err
		}
		header.Set("Authorization", "Bearer "+tok.Token)
	}
	return header, nil
}

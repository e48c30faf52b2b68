package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

// Service issues access tokens to recording devices. There are no user
// accounts: a device presents the shared secret, which is checked against
// the configured bcrypt hash, and receives a signed bearer token.
type Service struct {
	secret     []byte
	secretHash []byte
}

type Claims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

type TokenRequest struct {
	DeviceID     string `json:"device_id"`
	DeviceSecret string `json:"device_secret"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func NewService(secret, deviceSecretHash string) *Service {
	return &Service{
		secret:     []byte(secret),
		secretHash: []byte(deviceSecretHash),
	}
}

// IssueToken verifies the presented device secret and signs a token.
func (s *Service) IssueToken(req TokenRequest) (TokenResponse, error) {
	if req.DeviceID == "" || req.DeviceSecret == "" {
		return TokenResponse{}, errors.New("device_id and device_secret required")
	}
	if err := bcrypt.CompareHashAndPassword(s.secretHash, []byte(req.DeviceSecret)); err != nil {
		return TokenResponse{}, errors.New("invalid device secret")
	}

	token, err := s.signToken(req.DeviceID, tokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(tokenTTL.Seconds()),
	}, nil
}

// ValidateToken parses and checks a bearer token, returning the device id.
func (s *Service) ValidateToken(token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}
	return claims.DeviceID, nil
}

func (s *Service) signToken(deviceID string, ttl time.Duration) (string, error) {
	claims := Claims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

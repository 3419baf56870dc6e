// Package auth implements the Coinbase Cloud credential signer. Every
// signed operation gets a freshly minted short-lived ES256 JWT; tokens are
// never cached or reused.
package auth

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	wsServiceName   = "public_websocket_api"
	restServiceName = "retail_rest_api_proxy"

	// TokenTTL is how long a minted token stays valid at the exchange.
	TokenTTL = 2 * time.Minute
)

// Signer mints bearer tokens from a Coinbase Cloud API key.
type Signer struct {
	keyName    string
	privateKey *ecdsa.PrivateKey
	now        func() time.Time
}

// NewSigner parses the EC private key PEM and returns a ready signer.
func NewSigner(keyName, privateKeyPEM string) (*Signer, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse EC private key: %w", err)
	}
	return &Signer{
		keyName:    keyName,
		privateKey: key,
		now:        time.Now,
	}, nil
}

// SignRequest mints a token for a REST call. The uri claim binds the token
// to one method and path.
func (s *Signer) SignRequest(method, host, path string) (string, error) {
	uri := fmt.Sprintf("%s %s%s", method, host, path)
	return s.sign(restServiceName, uri)
}

// SignWebsocket mints a token for a streaming subscribe or unsubscribe.
func (s *Signer) SignWebsocket() (string, error) {
	return s.sign(wsServiceName, "")
}

func (s *Signer) sign(service, uri string) (string, error) {
	now := s.now()

	claims := jwt.MapClaims{
		"aud": []string{service},
		"iss": "coinbase-cloud",
		"nbf": now.Unix(),
		"exp": now.Add(TokenTTL).Unix(),
		"sub": s.keyName,
	}
	if uri != "" {
		claims["uri"] = uri
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = s.keyName

	nonce, err := randomNonce()
	if err != nil {
		return "", err
	}
	token.Header["nonce"] = nonce

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func randomNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

package ecommerce

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/blowfish"

	"github.com/marketsync/backend/internal/domain/integration"
)

// NaverConfig holds configuration for the Naver Commerce API
type NaverConfig struct {
	// Marketplace is the id this adapter instance serves
	Marketplace integration.MarketplaceID
	// ClientID is the application id issued by the commerce API center
	ClientID string
	// ClientSecret is the application secret. It doubles as the bcrypt salt
	// for the token request signature, so it looks like "$2a$04$..."
	ClientSecret string
	// APIBaseURL is the base URL for the Naver Commerce API
	APIBaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// ChangeLimit is the page length for last-changed-statuses (max 300)
	ChangeLimit int
	// ProductPageSize is the page length for products/search (max 500)
	ProductPageSize int
}

const (
	// NaverProductionAPIURL is the production API endpoint
	NaverProductionAPIURL = "https://api.commerce.naver.com"

	naverDefaultChangeLimit     = 300
	naverDefaultProductPageSize = 100
	naverMaxQueryIDs            = 300
)

// Errors for Naver configuration
var (
	ErrNaverConfigMissingMarketplace  = errors.New("naver: marketplace id is required")
	ErrNaverConfigMissingClientID     = errors.New("naver: client id is required")
	ErrNaverConfigMissingClientSecret = errors.New("naver: client secret is required")
	ErrNaverConfigInvalidClientSecret = errors.New("naver: client secret is not a bcrypt salt")
)

// NewNaverConfig creates a new Naver configuration with defaults
func NewNaverConfig(marketplace integration.MarketplaceID, clientID, clientSecret string) *NaverConfig {
	return &NaverConfig{
		Marketplace:     marketplace,
		ClientID:        clientID,
		ClientSecret:    clientSecret,
		APIBaseURL:      NaverProductionAPIURL,
		TimeoutSeconds:  defaultTimeoutSeconds,
		ChangeLimit:     naverDefaultChangeLimit,
		ProductPageSize: naverDefaultProductPageSize,
	}
}

// Validate validates the Naver configuration and fills in defaults
func (c *NaverConfig) Validate() error {
	if !c.Marketplace.IsValid() {
		return ErrNaverConfigMissingMarketplace
	}
	if c.ClientID == "" {
		return ErrNaverConfigMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrNaverConfigMissingClientSecret
	}
	if _, _, err := parseBcryptSalt(c.ClientSecret); err != nil {
		return fmt.Errorf("%w: %v", ErrNaverConfigInvalidClientSecret, err)
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = NaverProductionAPIURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.ChangeLimit <= 0 || c.ChangeLimit > naverDefaultChangeLimit {
		c.ChangeLimit = naverDefaultChangeLimit
	}
	if c.ProductPageSize <= 0 {
		c.ProductPageSize = naverDefaultProductPageSize
	}
	return nil
}

// ---------------------------------------------------------------------------
// Signature
// ---------------------------------------------------------------------------

// The token endpoint wants bcrypt(clientID + "_" + timestamp) salted with the
// client secret. golang.org/x/crypto/bcrypt always draws a random salt, so the
// hash is computed here from the same blowfish primitives.

const (
	bcryptAlphabet     = "./ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	bcryptSaltPrefix   = 29 // "$2a$" + cost + "$" + 22 salt chars
	bcryptEncodedSalt  = 22
	bcryptHashBytes    = 23
	bcryptMaxKeyLength = 72
)

var (
	bcryptEncoding   = base64.NewEncoding(bcryptAlphabet)
	bcryptMagicBlock = []byte("OrpheanBeholderScryDoubt")
)

// Sign returns the client_secret_sign value for the given millisecond timestamp
func (c *NaverConfig) Sign(timestamp int64) (string, error) {
	prefix, cost, err := parseBcryptSalt(c.ClientSecret)
	if err != nil {
		return "", err
	}
	password := []byte(c.ClientID + "_" + strconv.FormatInt(timestamp, 10))
	if len(password) > bcryptMaxKeyLength {
		return "", fmt.Errorf("naver: signature input longer than %d bytes", bcryptMaxKeyLength)
	}

	hash, err := bcryptHash(password, cost, []byte(prefix[bcryptSaltPrefix-bcryptEncodedSalt:]))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(append([]byte(prefix), hash...)), nil
}

// parseBcryptSalt returns the "$2a$NN$<salt>" prefix and the cost
func parseBcryptSalt(secret string) (string, int, error) {
	if len(secret) < bcryptSaltPrefix || secret[0] != '$' || secret[1] != '2' || secret[3] != '$' || secret[6] != '$' {
		return "", 0, errors.New("expected $2a$NN$ prefix and 22 salt characters")
	}
	switch secret[2] {
	case 'a', 'b', 'y':
	default:
		return "", 0, fmt.Errorf("unknown bcrypt version 2%c", secret[2])
	}
	cost, err := strconv.Atoi(secret[4:6])
	if err != nil || cost < 4 || cost > 31 {
		return "", 0, errors.New("invalid bcrypt cost")
	}
	return secret[:bcryptSaltPrefix], cost, nil
}

func bcryptHash(password []byte, cost int, encodedSalt []byte) ([]byte, error) {
	padded := append([]byte(nil), encodedSalt...)
	for i := 0; i < 4-len(encodedSalt)%4; i++ {
		padded = append(padded, '=')
	}
	salt := make([]byte, bcryptEncoding.DecodedLen(len(padded)))
	n, err := bcryptEncoding.Decode(salt, padded)
	if err != nil {
		return nil, fmt.Errorf("naver: decode bcrypt salt: %w", err)
	}
	salt = salt[:n]

	// C implementations include the trailing NUL in the key
	key := append(append([]byte(nil), password...), 0)
	cipher, err := blowfish.NewSaltedCipher(key, salt)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < 1<<uint(cost); i++ {
		blowfish.ExpandKey(key, cipher)
		blowfish.ExpandKey(salt, cipher)
	}

	block := append([]byte(nil), bcryptMagicBlock...)
	for i := 0; i < len(block); i += 8 {
		for j := 0; j < 64; j++ {
			cipher.Encrypt(block[i:i+8], block[i:i+8])
		}
	}

	out := make([]byte, bcryptEncoding.EncodedLen(bcryptHashBytes))
	bcryptEncoding.Encode(out, block[:bcryptHashBytes])
	for len(out) > 0 && out[len(out)-1] == '=' {
		out = out[:len(out)-1]
	}
	return out, nil
}

package credentials

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"
	cloudkms "google.golang.org/api/cloudkms/v1"
	"google.golang.org/api/option"
)

const (
	// DefaultLocation is the Cloud KMS location used when none is configured.
	DefaultLocation = "global"

	cryptoKeyNameFormat = "projects/%s/locations/%s/keyRings/%s/cryptoKeys/%s"

	errMessageCreateKMSService = "create cloud kms service"
	errMessageDecrypt          = "decrypt with cloud kms"
	errMessageDecodePlaintext  = "decode kms plaintext"

	logMessageDecrypting = "decrypting credentials"
	logFieldCryptoKey    = "crypto_key"
)

// KeyName renders the resource name of a Cloud KMS crypto key.
func KeyName(project string, location string, keyRing string, cryptoKey string) string {
	if location == "" {
		location = DefaultLocation
	}
	return fmt.Sprintf(cryptoKeyNameFormat, project, location, keyRing, cryptoKey)
}

// KMSDecrypter decrypts ciphertext with a single Cloud KMS crypto key.
type KMSDecrypter struct {
	service *cloudkms.Service
	keyName string
	logger  *zap.Logger
}

// NewKMSDecrypter builds a decrypter for keyName using application default credentials unless options override them.
func NewKMSDecrypter(ctx context.Context, keyName string, logger *zap.Logger, options ...option.ClientOption) (*KMSDecrypter, error) {
	service, err := cloudkms.NewService(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageCreateKMSService, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KMSDecrypter{service: service, keyName: keyName, logger: logger}, nil
}

// Decrypt returns the plaintext for ciphertext.
func (decrypter *KMSDecrypter) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	decrypter.logger.Info(logMessageDecrypting, zap.String(logFieldCryptoKey, decrypter.keyName))
	request := &cloudkms.DecryptRequest{Ciphertext: base64.StdEncoding.EncodeToString(ciphertext)}
	response, err := decrypter.service.Projects.Locations.KeyRings.CryptoKeys.Decrypt(decrypter.keyName, request).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageDecrypt, err)
	}
	plaintext, err := base64.StdEncoding.DecodeString(response.Plaintext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageDecodePlaintext, err)
	}
	return plaintext, nil
}

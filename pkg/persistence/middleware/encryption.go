package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/ports"
)

// EnvelopeKey holds the ciphertext inside an encrypted checkpoint.
const EnvelopeKey = "__encrypted__"

// ErrNotEncrypted is returned when a stored checkpoint has no envelope.
var ErrNotEncrypted = errors.New("checkpoint is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot decrypt.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.CheckpointStore
	config EncryptionConfig
}

// sealed is the part of a checkpoint that is encrypted. Phase and progress
// stay readable for monitoring.
type sealed struct {
	GatheredInfo  domain.GatheredInfo `json:"gatheredInfo"`
	ExecutionPlan domain.Plan         `json:"executionPlan"`
}

// NewEncryptionMiddleware creates a middleware that encrypts checkpoint
// contents using AES-GCM.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, cp domain.Checkpoint) error {
	plainText, err := json.Marshal(sealed{GatheredInfo: cp.GatheredInfo, ExecutionPlan: cp.ExecutionPlan})
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt checkpoint: %w", err)
	}

	envelope := domain.Checkpoint{
		TaskID:   cp.TaskID,
		Phase:    cp.Phase,
		Progress: cp.Progress,
		GatheredInfo: domain.GatheredInfo{Extra: map[string]any{
			EnvelopeKey: base64.StdEncoding.EncodeToString(ciphertext),
		}},
	}
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, taskID string) (domain.Checkpoint, error) {
	envelope, err := m.next.Load(ctx, taskID)
	if err != nil {
		return domain.Checkpoint{}, err
	}

	encoded, ok := envelope.GatheredInfo.Extra[EnvelopeKey].(string)
	if !ok {
		return domain.Checkpoint{}, ErrNotEncrypted
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to decrypt checkpoint: %w", err)
	}

	var inner sealed
	if err := json.Unmarshal(plainText, &inner); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to unmarshal decrypted checkpoint: %w", err)
	}

	envelope.GatheredInfo = inner.GatheredInfo
	envelope.ExecutionPlan = inner.ExecutionPlan
	return envelope, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, taskID string) error {
	return m.next.Delete(ctx, taskID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// encPrefix marks a value as encrypted so decryption can skip plaintext and
// a re-encryption pass never double-encrypts.
const encPrefix = "enc:v1:"

// sensitiveKeys are the field names whose string values get encrypted.
// Matching applies at the top level and inside the nested sub-objects.
var sensitiveKeys = map[string]struct{}{
	"patient_name":       {},
	"patient_first_name": {},
	"patient_last_name":  {},
	"date_of_birth":      {},
	"mrn":                {},
	"ssn":                {},
	"address":            {},
	"phone":              {},
	"email":              {},
	"insurance_id":       {},
	"physician_name":     {},
	"physician_npi":      {},
}

// nestedObjects are the sub-objects the encryptor recurses into.
var nestedObjects = map[string]struct{}{
	"facility": {},
	"patient":  {},
	"order":    {},
}

// FieldEncryptor encrypts and decrypts designated sensitive fields in an
// extracted-fields map.
type FieldEncryptor interface {
	EncryptFields(fields map[string]any) (map[string]any, error)
	DecryptFields(fields map[string]any) (map[string]any, error)
}

type aesEncryptor struct {
	aead cipher.AEAD
}

// NewAESEncryptor builds a FieldEncryptor over AES-256-GCM from a 32-byte
// hex-encoded key.
func NewAESEncryptor(keyHex string) (FieldEncryptor, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &aesEncryptor{aead: aead}, nil
}

// EncryptFields returns a copy of fields with sensitive string values
// encrypted. Non-string and absent values pass through unchanged, as do keys
// outside the sensitive set.
func (e *aesEncryptor) EncryptFields(fields map[string]any) (map[string]any, error) {
	return e.transform(fields, e.encryptValue)
}

// DecryptFields reverses EncryptFields. Values without the encryption prefix
// pass through unchanged.
func (e *aesEncryptor) DecryptFields(fields map[string]any) (map[string]any, error) {
	return e.transform(fields, e.decryptValue)
}

func (e *aesEncryptor) transform(fields map[string]any, fn func(string) (string, error)) (map[string]any, error) {
	if fields == nil {
		return nil, nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, nested := nestedObjects[k]; nested {
			if sub, ok := v.(map[string]any); ok {
				tsub, err := e.transform(sub, fn)
				if err != nil {
					return nil, err
				}
				out[k] = tsub
				continue
			}
		}
		if _, sensitive := sensitiveKeys[k]; sensitive {
			if s, ok := v.(string); ok && s != "" {
				ts, err := fn(s)
				if err != nil {
					return nil, fmt.Errorf("field %q: %w", k, err)
				}
				out[k] = ts
				continue
			}
		}
		out[k] = v
	}
	return out, nil
}

func (e *aesEncryptor) encryptValue(plain string) (string, error) {
	if strings.HasPrefix(plain, encPrefix) {
		return plain, nil
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plain), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *aesEncryptor) decryptValue(enc string) (string, error) {
	if !strings.HasPrefix(enc, encPrefix) {
		return enc, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(enc, encPrefix))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	ns := e.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("ciphertext shorter than nonce")
	}
	plain, err := e.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}
	return string(plain), nil
}

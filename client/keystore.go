package traderepublic

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

const (
	privateKeyFile = "device_key.pem"
	publicKeyFile  = "device_key.pub.pem"
)

// KeyPair is the device ECDSA key pair used to register this client during
// 2FA verification. The private key is never sent anywhere; only the public
// key's base64 SubjectPublicKeyInfo goes on the wire, as the 2FA deviceKey.
type KeyPair struct {
	Private *ecdsa.PrivateKey
	PEM     struct {
		Private []byte
		Public  []byte
	}
}

// KeyStore generates, persists, and loads the device key pair in a directory
// readable only by the owning user. It follows the same basePath-from-env,
// MkdirAll(0700), restricted-file-mode conventions as the reference's
// FileTokenStorage, adding atomic write-temp-then-rename persistence, which
// the reference's direct os.WriteFile does not.
type KeyStore struct {
	basePath string
}

// NewKeyStore creates a key store rooted at path, creating the directory if
// necessary with owner-only permissions.
func NewKeyStore(path string) (*KeyStore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("failed to create key store directory: %w", err)
	}
	return &KeyStore{basePath: path}, nil
}

// HasStored reports whether a key pair has already been persisted.
func (k *KeyStore) HasStored() bool {
	_, err := os.Stat(filepath.Join(k.basePath, privateKeyFile))
	return err == nil
}

// Load reads the persisted key pair from disk.
func (k *KeyStore) Load() (*KeyPair, error) {
	privPath := filepath.Join(k.basePath, privateKeyFile)
	privPEM, err := os.ReadFile(privPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	pubPath := filepath.Join(k.basePath, publicKeyFile)
	pubPEM, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}

	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}
	priv, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	kp := &KeyPair{Private: priv}
	kp.PEM.Private = privPEM
	kp.PEM.Public = pubPEM
	return kp, nil
}

// Generate creates a fresh P-256 ECDSA key pair. It does not persist it; call
// Save to do so.
func (k *KeyStore) Generate() (*KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	privDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER})

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	kp := &KeyPair{Private: priv}
	kp.PEM.Private = privPEM
	kp.PEM.Public = pubPEM
	return kp, nil
}

// Save persists kp atomically: each file is written to a temp path in the
// same directory, then renamed into place, so a crash mid-write can never
// leave a truncated key file behind.
func (k *KeyStore) Save(kp *KeyPair) error {
	if err := k.writeAtomic(privateKeyFile, kp.PEM.Private, 0600); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}
	if err := k.writeAtomic(publicKeyFile, kp.PEM.Public, 0600); err != nil {
		return fmt.Errorf("failed to save public key: %w", err)
	}
	return nil
}

func (k *KeyStore) writeAtomic(name string, data []byte, mode os.FileMode) error {
	finalPath := filepath.Join(k.basePath, name)
	tmpPath := fmt.Sprintf("%s.tmp-%d", finalPath, os.Getpid())

	if err := os.WriteFile(tmpPath, data, mode); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// PublicKeyBase64 returns the DER SubjectPublicKeyInfo of kp's public key,
// base64-encoded. This is the deviceKey sent during 2FA verification.
func PublicKeyBase64(kp *KeyPair) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&kp.Private.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// EnsureKeyPair loads the persisted key pair, generating and saving one on
// first use. Failures here are fatal to initialization.
func (k *KeyStore) EnsureKeyPair() (*KeyPair, error) {
	if k.HasStored() {
		return k.Load()
	}

	kp, err := k.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key pair: %w", err)
	}
	if err := k.Save(kp); err != nil {
		return nil, fmt.Errorf("failed to initialize key pair: %w", err)
	}
	return kp, nil
}

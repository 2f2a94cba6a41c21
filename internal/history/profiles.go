package history

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/johndauphine/chfile/internal/secrets"
)

// masterKeyEnv holds a base64 encoded 32-byte key. When unset, the key is
// derived from encryption.master_key in the secrets file.
const masterKeyEnv = "CHFILE_MASTER_KEY"

const profileCipherV1 byte = 1

// ProfileInfo describes a saved profile without its contents.
type ProfileInfo struct {
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func getMasterKey() ([]byte, error) {
	if raw := strings.TrimSpace(os.Getenv(masterKeyEnv)); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("%s is not valid base64: %w", masterKeyEnv, err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", masterKeyEnv, len(key))
		}
		return key, nil
	}

	cfg, err := secrets.LoadOptional()
	if err != nil {
		return nil, err
	}
	if pass := cfg.GetMasterKey(); pass != "" {
		sum := sha256.Sum256([]byte(pass))
		return sum[:], nil
	}
	return nil, fmt.Errorf("no master key: set %s or encryption.master_key in %s", masterKeyEnv, secrets.GetSecretsPath())
}

// encryptProfile seals plaintext with AES-GCM. The profile name is bound as
// additional data so a payload cannot be moved to another name.
func encryptProfile(name string, plaintext []byte) ([]byte, error) {
	gcm, err := profileCipher()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, profileCipherV1)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, []byte(name)), nil
}

func decryptProfile(name string, payload []byte) ([]byte, error) {
	if len(payload) < 1 {
		return nil, errors.New("profile payload too short")
	}
	if payload[0] != profileCipherV1 {
		return nil, fmt.Errorf("unsupported profile cipher version %d", payload[0])
	}
	gcm, err := profileCipher()
	if err != nil {
		return nil, err
	}
	body := payload[1:]
	if len(body) < gcm.NonceSize() {
		return nil, errors.New("profile payload missing nonce")
	}
	nonce, sealed := body[:gcm.NonceSize()], body[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("decrypting profile %s: %w", name, err)
	}
	return plain, nil
}

func profileCipher() (cipher.AEAD, error) {
	key, err := getMasterKey()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// SaveProfile encrypts and stores config under name, replacing any
// existing profile of that name.
func (s *State) SaveProfile(name, description string, config []byte) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("profile name is required")
	}
	sealed, err := encryptProfile(name, config)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = s.db.Exec(`INSERT INTO profiles (name, description, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			config = excluded.config,
			updated_at = excluded.updated_at`,
		name, description, sealed, now, now)
	if err != nil {
		return fmt.Errorf("saving profile %s: %w", name, err)
	}
	return nil
}

// GetProfile returns the decrypted config stored under name.
func (s *State) GetProfile(name string) ([]byte, error) {
	var sealed []byte
	err := s.db.QueryRow(`SELECT config FROM profiles WHERE name = ?`, name).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading profile %s: %w", name, err)
	}
	return decryptProfile(name, sealed)
}

// ListProfiles returns all profiles ordered by name.
func (s *State) ListProfiles() ([]ProfileInfo, error) {
	rows, err := s.db.Query(`SELECT name, description, created_at, updated_at FROM profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var out []ProfileInfo
	for rows.Next() {
		var (
			p                ProfileInfo
			created, updated int64
		)
		if err := rows.Scan(&p.Name, &p.Description, &created, &updated); err != nil {
			return nil, err
		}
		p.CreatedAt = time.UnixMilli(created)
		p.UpdatedAt = time.UnixMilli(updated)
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProfile removes name. Deleting an unknown profile returns ErrNotFound.
func (s *State) DeleteProfile(name string) error {
	res, err := s.db.Exec(`DELETE FROM profiles WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting profile %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("profile %s: %w", name, ErrNotFound)
	}
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/eventflow-io/eventflow/internal/config"
)

// PersistentKeyStore implements KeyStore with a PostgreSQL backend. Keys are
// stored bcrypt-hashed, never in plaintext; lookup compares the presented key
// against every active hash.
type PersistentKeyStore struct {
	conn   *Connection
	logger *slog.Logger
}

// Compile-time interface assertion.
var _ KeyStore = (*PersistentKeyStore)(nil)

// NewPersistentKeyStore creates a PostgreSQL-backed key store.
// Returns ErrNoDatabaseConnection if conn is nil.
func NewPersistentKeyStore(conn *Connection) (*PersistentKeyStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &PersistentKeyStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}, nil
}

// FindByKey retrieves an API key by its key value using bcrypt hash
// comparison. Queries all active keys and compares hashes in-memory,
// acceptable while the key population stays small.
// Returns (nil, false) if the key is not found or invalid.
func (s *PersistentKeyStore) FindByKey(ctx context.Context, key string) (*APIKey, bool) {
	if key == "" {
		return nil, false
	}

	query := `
		SELECT id, key_hash, producer, name, permissions, created_at, expires_at, active
		FROM api_keys
		WHERE active = TRUE
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		s.logger.Error("API key lookup failed", slog.Any("error", err))

		return nil, false
	}

	defer func() {
		_ = rows.Close()
	}()

	var keyFound *APIKey

	for rows.Next() {
		var (
			apiKey          APIKey
			permissionsJSON []byte
		)

		err := rows.Scan(
			&apiKey.ID,
			&apiKey.Key, // bcrypt hash, used only for comparison
			&apiKey.Producer,
			&apiKey.Name,
			&permissionsJSON,
			&apiKey.CreatedAt,
			&apiKey.ExpiresAt,
			&apiKey.Active,
		)
		if err != nil {
			continue
		}

		if err := json.Unmarshal(permissionsJSON, &apiKey.Permissions); err != nil {
			continue
		}

		if CompareAPIKeyHash(apiKey.Key, key) {
			// Never return the hash; mask like any other key surface.
			apiKey.Key = MaskKey(key)
			keyFound = &apiKey

			break
		}
	}

	if err := rows.Err(); err != nil {
		s.logger.Error("API key lookup failed", slog.Any("error", err))

		return nil, false
	}

	return keyFound, keyFound != nil
}

// Add stores a new API key. apiKey.Key must hold the plaintext key; only its
// bcrypt hash is persisted.
func (s *PersistentKeyStore) Add(ctx context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	hash, err := HashAPIKey(apiKey.Key)
	if err != nil {
		return fmt.Errorf("hash API key: %w", err)
	}

	permissions, err := json.Marshal(apiKey.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}

	id := apiKey.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO api_keys (id, key_hash, producer, name, permissions, created_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id,
		hash,
		apiKey.Producer,
		apiKey.Name,
		permissions,
		apiKey.CreatedAt,
		apiKey.ExpiresAt,
		apiKey.Active,
	)
	if err != nil {
		return fmt.Errorf("insert API key: %w", err)
	}

	s.logger.Info("Registered API key",
		slog.String("producer", apiKey.Producer),
		slog.String("key", MaskKey(apiKey.Key)))

	return nil
}

// Deactivate marks a key inactive so it can no longer authenticate.
func (s *PersistentKeyStore) Deactivate(ctx context.Context, keyID string) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE api_keys SET active = FALSE WHERE id = $1`, keyID)
	if err != nil {
		return fmt.Errorf("deactivate API key: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate API key: %w", err)
	}

	if affected == 0 {
		return ErrKeyNotFound
	}

	return nil
}

package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/avendel/supportbot/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// PostgresStorage keeps the same whole-document contract as FileStorage
// but stores the serialized document in a single jsonb row.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Load() (*models.Store, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT document FROM store_document WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return s.freshStore()
	}
	if err != nil {
		return nil, fmt.Errorf("error loading store document: %w", err)
	}

	var store models.Store
	if err := json.Unmarshal(data, &store); err != nil {
		s.logger.Warn("Store document is corrupt, starting fresh", zap.Error(err))
		return s.freshStore()
	}
	if store.Sessions == nil {
		store.Sessions = make(map[int64]*models.Session)
	}
	return &store, nil
}

func (s *PostgresStorage) freshStore() (*models.Store, error) {
	store := models.NewStore()
	if err := s.Persist(store); err != nil {
		return nil, fmt.Errorf("failed to initialize store document: %w", err)
	}
	return store, nil
}

func (s *PostgresStorage) Persist(store *models.Store) error {
	data, err := json.Marshal(store)
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	query := `
		INSERT INTO store_document (id, document, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE
		SET document = EXCLUDED.document, updated_at = NOW()`

	if _, err := s.db.Exec(query, data); err != nil {
		return fmt.Errorf("error persisting store document: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// internal/storage/factory.go
package storage

import (
	"fmt"
	"log/slog"

	"github.com/bngseg/collector/internal/config"
	catalogstorage "github.com/bngseg/collector/internal/storage/catalog"
	"github.com/bngseg/collector/internal/storage/memory"
	"github.com/bngseg/collector/internal/storage/websocket"
)

// NewBackend creates a storage backend based on configuration. The backend
// is not initialized.
func NewBackend(cfg config.StorageConfig, logger *slog.Logger) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		return catalogstorage.NewPostgres(cfg.DB, logger), nil
	case "sqlite":
		return catalogstorage.NewSQLite(cfg.SQLite, logger), nil
	case "websocket":
		return websocket.New(cfg.WebSocket, logger), nil
	case "memory", "":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

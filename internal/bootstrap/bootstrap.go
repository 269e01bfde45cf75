// Package bootstrap opens the configured backends for the server and the admin CLI.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/blob"
	blobfs "github.com/mamadbah2/shellsale/internal/blob/fs"
	blobs3 "github.com/mamadbah2/shellsale/internal/blob/s3"
	"github.com/mamadbah2/shellsale/internal/config"
	"github.com/mamadbah2/shellsale/internal/domain/models"
	"github.com/mamadbah2/shellsale/internal/repository"
	"github.com/mamadbah2/shellsale/internal/repository/memory"
	"github.com/mamadbah2/shellsale/internal/repository/mongodb"
	"github.com/mamadbah2/shellsale/internal/repository/postgres"
	"github.com/mamadbah2/shellsale/internal/repository/sqlite"
)

// OpenStore connects the sale store selected by cfg.Driver, applies its schema and
// seeds the catalog file when one is configured.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (repository.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var store repository.Store
	switch cfg.Driver {
	case config.StoreMemory, "":
		store = memory.NewStore()
	case config.StoreSQLite:
		s, err := sqlite.NewStore(ctx, cfg.SQLitePath, logger.Named("repo.sqlite"))
		if err != nil {
			return nil, err
		}
		store = s
	case config.StorePostgres:
		s, err := postgres.NewStore(ctx, cfg.PostgresDSN, logger.Named("repo.postgres"))
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		store = s
	case config.StoreMongoDB:
		s, err := mongodb.NewMongoDBRepository(ctx, cfg.MongoURI, cfg.MongoDBName, logger.Named("repo.mongodb"))
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}

	if cfg.CatalogPath != "" {
		catalog, err := LoadCatalog(cfg.CatalogPath)
		if err == nil {
			err = store.SeedCatalog(ctx, catalog)
		}
		if err != nil {
			_ = store.Close(ctx)
			return nil, fmt.Errorf("seed catalog %s: %w", cfg.CatalogPath, err)
		}
		logger.Info("catalog seeded",
			zap.String("path", cfg.CatalogPath),
			zap.Int("sizes", len(catalog.Sizes)),
			zap.Int("baskets", len(catalog.Baskets)),
			zap.Int("operations", len(catalog.Operations)))
	}

	logger.Info("sale store ready", zap.String("driver", cfg.Driver))
	return store, nil
}

// LoadCatalog reads a catalog JSON file with sizes, baskets and operations.
func LoadCatalog(path string) (models.Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.Catalog{}, err
	}
	var catalog models.Catalog
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return models.Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	return catalog, nil
}

// OpenBlobStore opens the document archive selected by cfg.Driver.
func OpenBlobStore(ctx context.Context, cfg config.DocumentsConfig) (blob.Store, error) {
	switch cfg.Driver {
	case config.DocumentFS, "":
		return blobfs.New(cfg.Dir)
	case config.DocumentS3:
		return blobs3.New(ctx, blobs3.Config{
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported document driver %q", cfg.Driver)
	}
}

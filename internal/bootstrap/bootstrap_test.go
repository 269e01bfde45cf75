package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/shellsale/internal/blob"
	"github.com/mamadbah2/shellsale/internal/config"
	"github.com/mamadbah2/shellsale/internal/domain/models"
	"github.com/mamadbah2/shellsale/internal/repository"
)

const catalogJSON = `{
  "sizes": [{"id": 1, "code": "T3", "name": "Taglia 3", "minAnimalsPerKg": 400, "maxAnimalsPerKg": 600}],
  "baskets": [{"id": 10, "physicalNumber": 7, "flupsyId": 1}],
  "operations": [{"id": 101, "type": "sale-harvest", "basketId": 10, "date": "2024-05-02",
    "animalCount": 5000, "totalWeight": 10, "animalsPerKg": 500, "sizeId": 1}]
}`

func writeCatalog(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(catalogJSON), 0o600))
	return path
}

func availableOps(t *testing.T, store repository.Store) []models.AvailableOperation {
	var ops []models.AvailableOperation
	require.NoError(t, store.View(context.Background(), func(ctx context.Context, r repository.Reader) error {
		var err error
		ops, err = r.ListAvailableOperations(ctx, models.OperationFilter{})
		return err
	}))
	return ops
}

func TestOpenStoreSeedsCatalog(t *testing.T) {
	ctx := context.Background()
	catalog := writeCatalog(t)

	for _, cfg := range []config.StoreConfig{
		{Driver: config.StoreMemory, CatalogPath: catalog},
		{Driver: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "sales.db"), CatalogPath: catalog},
	} {
		t.Run(cfg.Driver, func(t *testing.T) {
			store, err := OpenStore(ctx, cfg, zaptest.NewLogger(t))
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close(ctx) })

			ops := availableOps(t, store)
			require.Len(t, ops, 1)
			assert.EqualValues(t, 101, ops[0].OperationID)
			assert.Equal(t, "T3", ops[0].SizeCode)
		})
	}
}

func TestOpenStoreErrors(t *testing.T) {
	ctx := context.Background()

	_, err := OpenStore(ctx, config.StoreConfig{Driver: "redis"}, nil)
	require.Error(t, err)

	_, err = OpenStore(ctx, config.StoreConfig{Driver: config.StoreMemory, CatalogPath: filepath.Join(t.TempDir(), "none.json")}, nil)
	require.ErrorContains(t, err, "seed catalog")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = LoadCatalog(bad)
	require.ErrorContains(t, err, "decode catalog")
}

func TestOpenBlobStore(t *testing.T) {
	store, err := OpenBlobStore(context.Background(), config.DocumentsConfig{Driver: config.DocumentFS, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, blob.DriverFilesystem, store.Driver())

	store, err = OpenBlobStore(context.Background(), config.DocumentsConfig{Driver: config.DocumentS3, Bucket: "archive", Region: "eu-south-1"})
	require.NoError(t, err)
	assert.Equal(t, blob.DriverS3, store.Driver())

	_, err = OpenBlobStore(context.Background(), config.DocumentsConfig{Driver: "ftp"})
	require.Error(t, err)
}

func TestOpenIntegrations(t *testing.T) {
	ctx := context.Background()

	in, err := OpenIntegrations(ctx, &config.Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Len(t, in.Sinks, 1)
	assert.Nil(t, in.Notifier)
	require.NoError(t, in.Dispatcher(config.EventsConfig{}).Dispatch(ctx, models.Event{ID: "evt-1", Type: models.EventSaleCreated}))
	in.Close()

	in, err = OpenIntegrations(ctx, &config.Config{WhatsApp: config.WhatsAppConfig{
		AccessToken:   "token",
		PhoneNumberID: "123",
		Recipients:    []string{"39111"},
	}}, nil)
	require.NoError(t, err)
	require.NotNil(t, in.Notifier)
	assert.Len(t, in.Sinks, 2)
	in.Close()

	_, err = OpenIntegrations(ctx, &config.Config{Sheets: config.SheetsConfig{
		CredentialsPath: filepath.Join(t.TempDir(), "missing.json"),
		SpreadsheetID:   "sheet",
	}}, nil)
	require.Error(t, err)
}

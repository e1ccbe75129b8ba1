package fixtures

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domaincatalog "divineconnect/internal/domain/catalog"
)

func TestLoadBundledCatalog(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, err := Load(filepath.Join("..", "..", "..", "data", "catalog.json"), now)
	require.NoError(t, err)

	require.NotEmpty(t, c.Services)
	ganesh := c.Services[0]
	assert.Equal(t, domaincatalog.ServiceID("pooja-ganesh"), ganesh.ID)
	base, ok := ganesh.Prices.BaseFor(domaincatalog.ModeAtTemple)
	assert.True(t, ok)
	assert.Equal(t, int64(1100), base)
	assert.Equal(t, int64(200), ganesh.Prices.MaterialsSurcharge)
	assert.True(t, ganesh.Active)

	require.Len(t, c.Coupons, 2)
	assert.Equal(t, "DIVINE10", c.Coupons[0].Code)
	assert.True(t, c.Coupons[0].UsableAt(now))

	require.NotEmpty(t, c.Providers)
	assert.True(t, c.Providers[0].Visible)
	assert.Equal(t, now, c.Providers[0].CreatedAt)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.json"), time.Now())
	require.NoError(t, err)
	assert.Empty(t, c.Services)
}

func TestDecodeRejectsUnknownMode(t *testing.T) {
	_, err := Decode([]byte(`{"services":[{"id":"x","prices":{"teleport":10}}]}`), time.Now())
	assert.Error(t, err)
}

func TestDecodeNormalizesCouponCode(t *testing.T) {
	c, err := Decode([]byte(`{"coupons":[{"code":" divine10 ","kind":"percent","value":10,"valid_until":"2020-01-01T00:00:00Z"}]}`), time.Now())
	require.NoError(t, err)
	require.Len(t, c.Coupons, 1)
	assert.Equal(t, "DIVINE10", c.Coupons[0].Code)
	assert.False(t, c.Coupons[0].UsableAt(time.Now()))
}

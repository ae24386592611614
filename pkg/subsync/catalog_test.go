package subsync_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/subsync/pkg/subsync"
)

func TestParseCatalog(t *testing.T) {
	c, err := subsync.ParseCatalog("price_gold=gold:3000, price_diamond=diamond:100000 ,price_elite=elite:500000")
	require.NoError(t, err)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, subsync.PlanDescriptor{Name: "gold", Credits: 3000}, c.Lookup("price_gold"))
	assert.Equal(t, subsync.PlanDescriptor{Name: "diamond", Credits: 100000}, c.Lookup("price_diamond"))
	assert.Equal(t, subsync.PlanDescriptor{Name: "elite", Credits: 500000}, c.Lookup("price_elite"))
	assert.Equal(t, []string{"price_diamond", "price_elite", "price_gold"}, c.PriceIDs())
}

func TestParseCatalog_Empty(t *testing.T) {
	c, err := subsync.ParseCatalog("")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, subsync.DefaultPlan(), c.Lookup("price_anything"))
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"missing equals", "price_gold"},
		{"missing credits", "price_gold=gold"},
		{"non numeric credits", "price_gold=gold:lots"},
		{"negative credits", "price_gold=gold:-1"},
		{"empty name", "price_gold=:10"},
		{"empty price id", "=gold:10"},
		{"duplicate price id", "price_gold=gold:10,price_gold=silver:5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := subsync.ParseCatalog(tt.text)
			assert.ErrorIs(t, err, subsync.ErrInvalidCatalog)
		})
	}
}

func TestCatalog_LookupDefaults(t *testing.T) {
	c := subsync.MustCatalog(map[string]subsync.PlanDescriptor{
		"price_gold": {Name: "gold", Credits: 3000},
	})

	assert.Equal(t, subsync.DefaultPlan(), c.Lookup(""))
	assert.Equal(t, subsync.DefaultPlan(), c.Lookup("price_unknown"))
	// Price ids are opaque and compared exactly
	assert.Equal(t, subsync.DefaultPlan(), c.Lookup("PRICE_GOLD"))

	var nilCatalog *subsync.Catalog
	assert.Equal(t, subsync.DefaultPlan(), nilCatalog.Lookup("price_gold"))
	assert.Equal(t, 0, nilCatalog.Len())
}

func TestCatalog_StringRoundTrip(t *testing.T) {
	c := subsync.MustCatalog(map[string]subsync.PlanDescriptor{
		"price_b": {Name: "diamond", Credits: 100000},
		"price_a": {Name: "gold", Credits: 3000},
	})
	assert.Equal(t, "price_a=gold:3000,price_b=diamond:100000", c.String())

	parsed, err := subsync.ParseCatalog(c.String())
	require.NoError(t, err)
	assert.Equal(t, c.String(), parsed.String())
}

func TestMustCatalog_Panics(t *testing.T) {
	assert.Panics(t, func() {
		subsync.MustCatalog(map[string]subsync.PlanDescriptor{"price_x": {Name: ""}})
	})
}

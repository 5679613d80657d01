package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedProducts_ReferenceKnownCategories(t *testing.T) {
	t.Parallel()

	names := make(map[string]bool)
	for _, c := range SeedCategories() {
		names[c.Name] = true
	}

	for _, p := range SeedProducts() {
		assert.True(t, names[p.Category], "product %q references unknown category %q", p.Name, p.Category)
		assert.True(t, p.Price.IsPositive(), "product %q must have a positive price", p.Name)
		assert.LessOrEqual(t, p.Price.Exponent(), int32(0))
		assert.GreaterOrEqual(t, p.Price.Exponent(), int32(-2), "price %s exceeds two decimal places", p.Price)
	}
}

func TestSeedData_Sizes(t *testing.T) {
	t.Parallel()

	require.Len(t, SeedCategories(), 3)
	require.Len(t, SeedProducts(), 3)

	// The third product belongs to the second category.
	assert.Equal(t, SeedCategories()[1].Name, SeedProducts()[2].Category)
}

func TestSeedData_FreshSlices(t *testing.T) {
	t.Parallel()

	a := SeedCategories()
	a[0].Name = "mutated"
	assert.Equal(t, "Electronics", SeedCategories()[0].Name)
}

package catalog

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jask/vendrecon/internal/source"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func tierExampleIndex() *Index {
	return NewIndex([]Entry{
		{SKU: "SKU001", Name: "Cola", Family: "Soda", Type: "Beverage", Cost: dec("1.00"), HasCost: true,
			Aliases: map[source.System]string{source.Cantaloupe: "Coca Cola 16.9oz"}},
		{SKU: "SKU002", Name: "Trail Mix", Family: "Variety Pack", Type: "Snack", Cost: dec("0.80"), HasCost: true},
		{SKU: "SKU003", Name: "Pretzels", Family: "Variety Pack", Type: "Snack", Cost: dec("1.20"), HasCost: true},
	})
}

func TestResolveTiers(t *testing.T) {
	t.Parallel()

	idx := tierExampleIndex()

	direct := idx.Resolve(source.Cantaloupe, "Coca Cola 16.9oz")
	require.Equal(t, TierDirect, direct.Tier)
	require.Equal(t, "SKU001", direct.SKU)
	require.Equal(t, "Cola", direct.Name)
	require.True(t, direct.Cost.Equal(dec("1.00")))

	family := idx.Resolve(source.Nayax, "Variety Pack")
	require.Equal(t, TierFamily, family.Tier)
	require.Equal(t, "FAMILY_VARIETY_PACK", family.SKU)
	require.Equal(t, "Variety Pack", family.Name)
	require.Equal(t, "Snack", family.Type)
	require.True(t, family.Cost.Equal(dec("1.00")), family.Cost.String())

	unmapped := idx.Resolve(source.HahaAI, "Unknown Snack XYZ")
	require.Equal(t, TierUnmapped, unmapped.Tier)
	require.Equal(t, UnmappedSKU, unmapped.SKU)
	require.Equal(t, "Unknown Snack XYZ", unmapped.Name)
	require.Equal(t, "", unmapped.Family)
	require.Equal(t, UnknownType, unmapped.Type)
	require.True(t, unmapped.Cost.IsZero())
}

func TestResolveAliasIsPerSystem(t *testing.T) {
	t.Parallel()

	idx := tierExampleIndex()
	// The Cantaloupe alias is not part of the Nayax vocabulary.
	require.Equal(t, TierUnmapped, idx.Resolve(source.Nayax, "Coca Cola 16.9oz").Tier)
	// Master names match from any source.
	res := idx.Resolve(source.Nayax, " Pretzels ")
	require.Equal(t, TierDirect, res.Tier)
	require.Equal(t, "SKU003", res.SKU)
}

func TestFamilyMeanSkipsMissingCosts(t *testing.T) {
	t.Parallel()

	idx := NewIndex([]Entry{
		{SKU: "A", Name: "A", Family: "Chips", Type: "Snack", Cost: dec("1.10"), HasCost: true},
		{SKU: "B", Name: "B", Family: "Chips", Type: "Snack", Cost: dec("0.90"), HasCost: true},
		{SKU: "C", Name: "C", Family: "Chips", Type: "Candy"},
		{SKU: "D", Name: "D", Family: "Gum"},
	})
	chips := idx.Resolve(source.Cantaloupe, "Chips")
	require.True(t, chips.Cost.Equal(dec("1.00")))
	require.Equal(t, "Snack", chips.Type)

	gum := idx.Resolve(source.Cantaloupe, "Gum")
	require.Equal(t, TierFamily, gum.Tier)
	require.True(t, gum.Cost.IsZero())
	require.Equal(t, UnknownType, gum.Type)
	require.Len(t, idx.Families(), 2)
}

func TestCollisionsFirstWins(t *testing.T) {
	t.Parallel()

	idx := NewIndex([]Entry{
		{SKU: "SKU001", Name: "Cola", Cost: dec("1.00"), HasCost: true,
			Aliases: map[source.System]string{source.Nayax: "Coke"}},
		{SKU: "SKU009", Name: "Diet Cola", Cost: dec("1.05"), HasCost: true,
			Aliases: map[source.System]string{source.Nayax: "Coke"}},
		{SKU: "SKU001", Name: "Cola Again"},
	})
	require.Equal(t, 2, idx.Len())
	require.Equal(t, "SKU001", idx.Resolve(source.Nayax, "Coke").SKU)

	collisions := idx.Collisions()
	require.Len(t, collisions, 2)
	require.Equal(t, "alias", collisions[0].Kind)
	require.Equal(t, source.Nayax, collisions[0].System)
	require.Equal(t, "SKU009", collisions[0].Ignored)
	require.Equal(t, "sku", collisions[1].Kind)
	require.Contains(t, collisions[0].String(), `"Coke"`)
}

func TestSuggest(t *testing.T) {
	t.Parallel()

	idx := tierExampleIndex()
	name, ok := idx.Suggest("Coca Cola 16.9 oz")
	require.True(t, ok)
	require.Equal(t, "Cola", name)

	_, ok = idx.Suggest("Yasso Frozen Greek Yogurt Bar")
	require.False(t, ok)
	_, ok = idx.Suggest("")
	require.False(t, ok)
}

func TestFamilySKU(t *testing.T) {
	t.Parallel()

	require.Equal(t, "FAMILY_VARIETY_PACK", FamilySKU("Variety Pack"))
	require.Equal(t, "FAMILY_KIND_BARS_ASSORTED", FamilySKU(" Kind Bars (assorted) "))
}

func TestLoadCSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.csv")
	data := "Master_SKU,Master_Name,Product_Family,Type,Cost,Cantaloupe_Name,Haha_AI_Name,Nayax_Name\n" +
		"SKU001,Cola,Soda,Beverage,$1.00,Coca Cola 16.9oz,,Coke\n" +
		"SKU002,Trail Mix,Variety Pack,Snack,$0.80,,,\n" +
		"SKU004,Bad,,Snack,-1.00,,,\n" +
		",,,,,,,\n" +
		"SKU005,Gum,,,,,Gum Pack,\n" +
		"SKU006,Big,,Snack,\"$1,200.50\",,,\n" +
		"UNMAPPED,Reserved,,,1,,,\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	entries, warnings, err := Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.Len(t, warnings, 2)
	require.Equal(t, 4, warnings[0].Line)
	require.Equal(t, 8, warnings[1].Line)

	require.Equal(t, "Coke", entries[0].Aliases[source.Nayax])
	require.Equal(t, "Coca Cola 16.9oz", entries[0].Aliases[source.Cantaloupe])
	require.True(t, entries[0].HasCost)
	require.False(t, entries[2].HasCost)
	require.Equal(t, "Gum Pack", entries[2].Aliases[source.HahaAI])
	require.True(t, entries[3].Cost.Equal(dec("1200.50")))

	_, _, err = Load(filepath.Join(dir, "nope.csv"))
	require.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoadXLSX(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Master SKU", "Master Name", "Product Family", "Type", "Cost", "Cantaloupe Name"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"SKU010", "Water", "", "Beverage", 0.45, "Dasani 20oz"}))
	path := filepath.Join(t.TempDir(), "catalog.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	entries, warnings, err := Load(path)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, entries, 1)
	require.True(t, entries[0].Cost.Equal(dec("0.45")))

	idx := NewIndex(entries)
	require.Equal(t, "SKU010", idx.Resolve(source.Cantaloupe, "Dasani 20oz").SKU)
}

func TestCostsAreRoundedToCents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.csv")
	data := "Master_SKU,Master_Name,Cost\nSKU001,Gum,0.125\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	entries, _, err := Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].Cost.Equal(dec("0.13")), entries[0].Cost.String())

	idx := NewIndex([]Entry{{SKU: "SKU002", Name: "Mints", Cost: dec("0.333"), HasCost: true}})
	require.True(t, idx.Resolve(source.Nayax, "Mints").Cost.Equal(dec("0.33")))
}

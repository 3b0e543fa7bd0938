package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NotEmpty(t, c.Ranks)
	require.Len(t, c.Departments, 3)

	d, ok := c.DepartmentByCode("dnipro")
	require.True(t, ok)
	require.Equal(t, "Управління НПУ в Дніпрі", d.Title)

	_, ok = c.DepartmentByCode("odesa")
	require.False(t, ok)
}

func TestDepartmentByTitle(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	d, ok := c.DepartmentByTitle("Управління НПУ в Харкові")
	require.True(t, ok)
	require.Equal(t, "kharkiv", d.Code)

	// Code is accepted as a selection too.
	d, ok = c.DepartmentByTitle("kyiv")
	require.True(t, ok)
	require.Equal(t, "kyiv", d.Code)
}

func TestRanksFor(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	dnipro, _ := c.DepartmentByCode("dnipro")
	require.Equal(t, c.Ranks, c.RanksFor(dnipro))

	kyiv, _ := c.DepartmentByCode("kyiv")
	require.NotContains(t, c.RanksFor(kyiv), "Полковник")
}

func TestLongestRankPrefix(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	tests := []struct {
		name     string
		in       string
		wantRank string
		wantRest string
		wantOK   bool
	}{
		{"single word rank", "Капітан Марія Коваленко", "Капітан", "Марія Коваленко", true},
		{"multi word rank wins over prefix", "Старший сержант Іван Шевченко", "Старший сержант", "Іван Шевченко", true},
		{"case insensitive", "капітан Марія Коваленко", "Капітан", "Марія Коваленко", true},
		{"no rank", "Марія Коваленко", "", "Марія Коваленко", false},
		{"rank must be a full word", "Капітанка Марія Коваленко", "", "Капітанка Марія Коваленко", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rank, rest, ok := c.LongestRankPrefix(tt.in)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantRank, rank)
			require.Equal(t, tt.wantRest, rest)
		})
	}
}

func TestRankIndexOrder(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.Less(t, c.RankIndex("Сержант"), c.RankIndex("Капітан"))
	require.Equal(t, -1, c.RankIndex("Гетьман"))
}

package job

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func newTestPipeline() *Pipeline {
	return NewPipeline(clocktesting.NewFakePassiveClock(time.Date(2024, 3, 9, 12, 30, 45, 123456789, time.UTC)))
}

func names(ps []Product) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func TestTotalValue(t *testing.T) {
	assert.Equal(t, 575.0, newTestPipeline().TotalValue())
}

func TestGroupByCategory(t *testing.T) {
	g := newTestPipeline().GroupByCategory()

	assert.Equal(t, []string{"electronics", "books", "movies", "sports"}, g.Categories())
	assert.Equal(t, 4, g.Len())
	assert.Equal(t, []string{"Wireless Mouse"}, names(g.Items("electronics")))
	assert.Equal(t, []string{"The Clean Architecture", "The Clean Coder"}, names(g.Items("books")))
	assert.Equal(t, []string{"Matrix"}, names(g.Items("movies")))
	assert.Equal(t, []string{"Basketball"}, names(g.Items("sports")))
	assert.Empty(t, g.Items("games"))
}

func TestGroupingMarshalKeepsOrder(t *testing.T) {
	b, err := json.Marshal(newTestPipeline().GroupByCategory())
	require.NoError(t, err)

	want := `{"electronics":[{"id":1,"name":"Wireless Mouse","price":100,"category":"electronics"}],` +
		`"books":[{"id":2,"name":"The Clean Architecture","price":50,"category":"books"},` +
		`{"id":5,"name":"The Clean Coder","price":150,"category":"books"}],` +
		`"movies":[{"id":3,"name":"Matrix","price":200,"category":"movies"}],` +
		`"sports":[{"id":4,"name":"Basketball","price":75,"category":"sports"}]}`
	assert.JSONEq(t, want, string(b))
	assert.Less(t, strings.Index(string(b), `"books"`), strings.Index(string(b), `"movies"`))
}

func TestExpensiveItems(t *testing.T) {
	items := newTestPipeline().ExpensiveItems()

	require.Len(t, items, 2)
	assert.Equal(t, 200.0, items[0].Price)
	assert.Equal(t, 150.0, items[1].Price)
	assert.Equal(t, []string{"Matrix", "The Clean Coder"}, names(items))
}

func TestSummary(t *testing.T) {
	s := newTestPipeline().Summary()

	assert.Equal(t, 5, s.TotalItems)
	assert.Equal(t, 575.0, s.TotalValue)
	assert.Equal(t, 115.0, s.AveragePrice)
	assert.Equal(t, []string{"electronics", "books", "movies", "sports"}, s.Categories)
	assert.Equal(t, "2024-03-09T12:30:45.123Z", s.Timestamp)
}

func TestRunBundlesAllAggregations(t *testing.T) {
	b := newTestPipeline().Run()

	assert.Equal(t, 575.0, b.TotalValue)
	assert.Equal(t, 4, b.ByCategory.Len())
	assert.Len(t, b.ExpensiveItems, 2)
	assert.Equal(t, 115.0, b.Summary.AveragePrice)
}

func TestCatalogIsNotMutable(t *testing.T) {
	ps := Products()
	ps[0].Price = 1e6

	p := newTestPipeline()
	assert.Equal(t, 575.0, p.TotalValue())
	assert.Len(t, Products(), 5)

	g := p.GroupByCategory()
	items := g.Items("books")
	items[0].Name = "changed"
	assert.Equal(t, "The Clean Architecture", g.Items("books")[0].Name)
}

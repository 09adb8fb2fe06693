package job

import (
	"bytes"
	"encoding/json"

	"k8s.io/utils/clock"
)

// ExpensiveThreshold is the strict lower bound for ExpensiveItems.
const ExpensiveThreshold = 100

const summaryTimeFormat = "2006-01-02T15:04:05.000Z"

// CategoryGrouping maps category to products, keeping categories in first-seen order.
type CategoryGrouping struct {
	order []string
	items map[string][]Product
}

func (g CategoryGrouping) Categories() []string { return append([]string(nil), g.order...) }

func (g CategoryGrouping) Items(category string) []Product {
	return append([]Product(nil), g.items[category]...)
}

func (g CategoryGrouping) Len() int { return len(g.order) }

// MarshalJSON renders the grouping as an object whose keys keep first-seen order.
func (g CategoryGrouping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cat := range g.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(cat)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(g.items[cat])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type Summary struct {
	TotalItems   int      `json:"totalItems"`
	TotalValue   float64  `json:"totalValue"`
	AveragePrice float64  `json:"averagePrice"`
	Categories   []string `json:"categories"`
	Timestamp    string   `json:"timestamp"`
}

// Batch is the output of one aggregation tick.
type Batch struct {
	TotalValue     float64          `json:"totalValue"`
	ByCategory     CategoryGrouping `json:"byCategory"`
	ExpensiveItems []Product        `json:"expensiveItems"`
	Summary        Summary          `json:"summary"`
}

// Pipeline runs the deterministic aggregations over the catalog.
// Only Summary reads the clock.
type Pipeline struct {
	products []Product
	clock    clock.PassiveClock
}

func NewPipeline(clk clock.PassiveClock) *Pipeline {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Pipeline{products: Products(), clock: clk}
}

func (p *Pipeline) TotalValue() float64 {
	var sum float64
	for _, it := range p.products {
		sum += it.Price
	}
	return sum
}

func (p *Pipeline) GroupByCategory() CategoryGrouping {
	g := CategoryGrouping{items: map[string][]Product{}}
	for _, it := range p.products {
		if _, ok := g.items[it.Category]; !ok {
			g.order = append(g.order, it.Category)
		}
		g.items[it.Category] = append(g.items[it.Category], it)
	}
	return g
}

func (p *Pipeline) ExpensiveItems() []Product {
	out := make([]Product, 0, len(p.products))
	for _, it := range p.products {
		if it.Price > ExpensiveThreshold {
			out = append(out, it)
		}
	}
	return out
}

func (p *Pipeline) Summary() Summary {
	total := p.TotalValue()
	n := len(p.products)
	var avg float64
	if n > 0 {
		avg = total / float64(n)
	}
	return Summary{
		TotalItems:   n,
		TotalValue:   total,
		AveragePrice: avg,
		Categories:   p.GroupByCategory().Categories(),
		Timestamp:    p.clock.Now().UTC().Format(summaryTimeFormat),
	}
}

// Run executes all four aggregations once.
func (p *Pipeline) Run() Batch {
	return Batch{
		TotalValue:     p.TotalValue(),
		ByCategory:     p.GroupByCategory(),
		ExpensiveItems: p.ExpensiveItems(),
		Summary:        p.Summary(),
	}
}

package job

// Product is one row of the in-memory catalog the batch job aggregates.
type Product struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
}

// catalog is loaded once and never mutated; readers get copies.
var catalog = [...]Product{
	{ID: 1, Name: "Wireless Mouse", Price: 100, Category: "electronics"},
	{ID: 2, Name: "The Clean Architecture", Price: 50, Category: "books"},
	{ID: 3, Name: "Matrix", Price: 200, Category: "movies"},
	{ID: 4, Name: "Basketball", Price: 75, Category: "sports"},
	{ID: 5, Name: "The Clean Coder", Price: 150, Category: "books"},
}

// Products returns a copy of the catalog in dataset order.
func Products() []Product {
	out := make([]Product, len(catalog))
	copy(out, catalog[:])
	return out
}

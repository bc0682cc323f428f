package storefront

// DefaultProducts returns the demo catalog used when no catalog is
// configured.
func DefaultProducts() []Product {
	return []Product{
		{ID: "p-001", Name: "Red Running Shoes", Tags: []string{"shoes", "running", "red"}, PriceCents: 8900},
		{ID: "p-002", Name: "Blue Running Shoes", Tags: []string{"shoes", "running", "blue"}, PriceCents: 8900},
		{ID: "p-003", Name: "Leather Boots", Tags: []string{"shoes", "boots", "leather"}, PriceCents: 14900},
		{ID: "p-004", Name: "Canvas Sneakers", Tags: []string{"shoes", "sneakers", "canvas"}, PriceCents: 5900},
		{ID: "p-005", Name: "Trail Hiking Boots", Tags: []string{"shoes", "boots", "hiking"}, PriceCents: 17900},
		{ID: "p-006", Name: "Red Rain Jacket", Tags: []string{"jacket", "rain", "red"}, PriceCents: 12000},
		{ID: "p-007", Name: "Down Parka", Tags: []string{"jacket", "winter"}, PriceCents: 24900},
		{ID: "p-008", Name: "Denim Jacket", Tags: []string{"jacket", "denim"}, PriceCents: 9900},
		{ID: "p-009", Name: "Wool Beanie", Tags: []string{"hat", "wool", "winter"}, PriceCents: 2500},
		{ID: "p-010", Name: "Straw Sun Hat", Tags: []string{"hat", "summer"}, PriceCents: 3200},
		{ID: "p-011", Name: "Baseball Cap", Tags: []string{"hat", "cap"}, PriceCents: 1900},
		{ID: "p-012", Name: "Merino Socks", Tags: []string{"socks", "wool"}, PriceCents: 1800},
		{ID: "p-013", Name: "Running Socks", Tags: []string{"socks", "running"}, PriceCents: 1400},
		{ID: "p-014", Name: "Cotton T-Shirt", Tags: []string{"shirt", "cotton"}, PriceCents: 1500},
		{ID: "p-015", Name: "Linen Shirt", Tags: []string{"shirt", "linen", "summer"}, PriceCents: 4500},
		{ID: "p-016", Name: "Flannel Shirt", Tags: []string{"shirt", "flannel", "red"}, PriceCents: 3900},
		{ID: "p-017", Name: "Chino Trousers", Tags: []string{"trousers", "cotton"}, PriceCents: 5500},
		{ID: "p-018", Name: "Slim Jeans", Tags: []string{"trousers", "denim", "jeans"}, PriceCents: 6900},
		{ID: "p-019", Name: "Running Shorts", Tags: []string{"shorts", "running"}, PriceCents: 2900},
		{ID: "p-020", Name: "Leather Belt", Tags: []string{"belt", "leather"}, PriceCents: 3500},
		{ID: "p-021", Name: "Canvas Backpack", Tags: []string{"bag", "canvas"}, PriceCents: 7900},
		{ID: "p-022", Name: "Leather Wallet", Tags: []string{"wallet", "leather"}, PriceCents: 4900},
		{ID: "p-023", Name: "Silk Scarf", Tags: []string{"scarf", "silk"}, PriceCents: 5900},
		{ID: "p-024", Name: "Wool Gloves", Tags: []string{"gloves", "wool", "winter"}, PriceCents: 2900},
		{ID: "p-025", Name: "Red Sandals", Tags: []string{"shoes", "sandals", "red", "summer"}, PriceCents: 4400},
		{ID: "p-026", Name: "Swim Shorts", Tags: []string{"shorts", "swim", "summer"}, PriceCents: 3400},
	}
}

package plan

// Plan is one entry of the static plan catalog. Prices are whole rupiah.
type Plan struct {
	ID       string
	Name     string
	PriceIDR int64
	Summary  string
	Features []string
}

const Currency = "IDR"

var catalog = []Plan{
	{
		ID:       "starter",
		Name:     "Starter",
		PriceIDR: 89000,
		Summary:  "Perfect for light personal projects and quick cleanup work.",
		Features: []string{
			"Background remover: 3x per day",
			"Visual generation: 15 images per day",
			"3 active projects at a time",
			"Save and reuse prompts",
			"Side panel extension access",
		},
	},
	{
		ID:       "pro",
		Name:     "Pro",
		PriceIDR: 199000,
		Summary:  "For frequent slide builders who need faster output and more options.",
		Features: []string{
			"Everything in Starter",
			"Background remover: 15x per day",
			"Visual generation: 20 images per day",
			"Up to 3 variants per prompt",
			"10 active projects at a time",
			"Priority processing queue",
		},
	},
	{
		ID:       "premium",
		Name:     "Premium",
		PriceIDR: 359000,
		Summary:  "For heavy production workflows that demand more output and speed.",
		Features: []string{
			"Everything in Pro",
			"Background remover: 40x per day",
			"Visual generation: 40 images per day",
			"Up to 5 variants per prompt",
			"Highest priority queue",
		},
	},
}

func Catalog() []Plan {
	items := make([]Plan, len(catalog))
	copy(items, catalog)
	return items
}

func ByID(id string) (Plan, bool) {
	for _, item := range catalog {
		if item.ID == id {
			return item, true
		}
	}
	return Plan{}, false
}

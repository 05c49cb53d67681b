package document

// DefaultPage returns the skeleton an editor opens with when the server
// provides no initial config.
func DefaultPage() Page {
	return Page{
		Content: Tree{
			"businessInfo": map[string]any{
				"name":     "",
				"tagline":  "",
				"industry": "",
			},
			"hero": map[string]any{
				"headline":    "",
				"subheadline": "",
				"ctaText":     "Get Started",
				"ctaLink":     "#",
			},
			"problemSection": map[string]any{
				"title":       "",
				"description": "",
				"points":      []any{},
			},
			"features": []any{},
			"socialProof": map[string]any{
				"title":        "",
				"stats":        []any{},
				"testimonials": []any{},
			},
			"pricing": map[string]any{
				"title": "",
				"plans": []any{},
			},
			"faq": map[string]any{
				"title": "Frequently Asked Questions",
				"items": []any{},
			},
			"cta": map[string]any{
				"headline":    "",
				"description": "",
				"buttonText":  "Get Started",
				"buttonLink":  "#",
			},
		},
		Style: Tree{
			"theme": map[string]any{
				"primaryColor":   "#2563eb",
				"secondaryColor": "#0f172a",
				"fontFamily":     "Inter",
			},
		},
	}
}

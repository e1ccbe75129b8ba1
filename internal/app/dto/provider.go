package dto

import domainprovider "divineconnect/internal/domain/provider"

type Provider struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Category        string   `json:"category"`
	Locality        string   `json:"locality,omitempty"`
	Languages       []string `json:"languages,omitempty"`
	Rating          float64  `json:"rating"`
	ReviewCount     int      `json:"review_count"`
	ExperienceYears int      `json:"experience_years"`
}

type ProviderCollection struct {
	Items []Provider `json:"items"`
}

func MapProvider(p *domainprovider.Profile) Provider {
	return Provider{
		ID:              string(p.ID),
		Name:            p.Name,
		Category:        string(p.Category),
		Locality:        p.Locality,
		Languages:       append([]string(nil), p.Languages...),
		Rating:          p.Rating,
		ReviewCount:     p.ReviewCount,
		ExperienceYears: p.ExperienceYears,
	}
}

func MapProviders(list []*domainprovider.Profile) ProviderCollection {
	items := make([]Provider, 0, len(list))
	for _, p := range list {
		items = append(items, MapProvider(p))
	}
	return ProviderCollection{Items: items}
}

package models

import "time"

// TattooStyle classifies portfolio works.
type TattooStyle string

const (
	StyleTraditional TattooStyle = "traditional"
	StyleRealism     TattooStyle = "realism"
	StyleBlackwork   TattooStyle = "blackwork"
	StyleMinimal     TattooStyle = "minimal"
	StyleGeometric   TattooStyle = "geometric"
	StyleWatercolor  TattooStyle = "watercolor"
	StyleTribal      TattooStyle = "tribal"
	StyleJapanese    TattooStyle = "japanese"
	StyleOldschool   TattooStyle = "oldschool"
	StyleNewschool   TattooStyle = "newschool"
)

var tattooStyles = map[TattooStyle]bool{
	StyleTraditional: true, StyleRealism: true, StyleBlackwork: true, StyleMinimal: true,
	StyleGeometric: true, StyleWatercolor: true, StyleTribal: true, StyleJapanese: true,
	StyleOldschool: true, StyleNewschool: true,
}

// Valid reports whether the style is one of the known styles.
func (s TattooStyle) Valid() bool {
	return tattooStyles[s]
}

type TattooWork struct {
	ID          string      `yaml:"id" json:"id"`
	Title       string      `yaml:"title" json:"title"`
	ImageURL    string      `yaml:"image_url" json:"imageUrl"`
	Style       TattooStyle `yaml:"style" json:"style"`
	Description string      `yaml:"description" json:"description,omitempty"`
	CreatedAt   time.Time   `yaml:"created_at" json:"createdAt"`
}

type BusinessHours struct {
	Day    string `yaml:"day" json:"day"`
	Open   string `yaml:"open" json:"open"`
	Close  string `yaml:"close" json:"close"`
	IsOpen bool   `yaml:"is_open" json:"isOpen"`
}

type ContactInfo struct {
	Address       string `yaml:"address" json:"address"`
	Phone         string `yaml:"phone" json:"phone"`
	Email         string `yaml:"email" json:"email"`
	Instagram     string `yaml:"instagram" json:"instagram"`
	GoogleMapsURL string `yaml:"google_maps_url" json:"googleMapsUrl"`
}

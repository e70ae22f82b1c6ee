package storage

import (
	"time"

	"gorm.io/datatypes"
)

// NoImage is the poster value for films without artwork.
const NoImage = "noimage"

// FilmRecord is the wire shape of one film returned to clients.
type FilmRecord struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Poster       string            `json:"poster"`
	BasicDetails BasicDetails      `json:"basic_details"`
	RawDetails   map[string]string `json:"raw_details"`
}

// BasicDetails is the structured infobox of a film.
type BasicDetails struct {
	DirectedBy  string `json:"directed_by"`
	Language    string `json:"language"`
	Country     string `json:"country"`
	RunningTime string `json:"running_time"`
	Starring    string `json:"starring"`
}

// Map returns the non-empty details keyed by their wire names.
func (b BasicDetails) Map() map[string]string {
	m := make(map[string]string, 5)
	for k, v := range map[string]string{
		"directed_by":  b.DirectedBy,
		"language":     b.Language,
		"country":      b.Country,
		"running_time": b.RunningTime,
		"starring":     b.Starring,
	} {
		if v != "" {
			m[k] = v
		}
	}
	return m
}

// FilmVectors is one embedding per taxonomy field for a film.
type FilmVectors struct {
	FilmID  string
	Title   string
	Vectors map[string][]float32 // field name -> embedding
}

// SimilarityQuery asks for films whose stored Field embedding is close to Vector.
type SimilarityQuery struct {
	Field     string
	Vector    []float32
	Threshold float32 // minimum cosine similarity
	Limit     int
	// RestrictTo limits candidates to these film ids. nil means unrestricted;
	// a non-nil empty slice matches nothing.
	RestrictTo []string
}

// CollectionInfo contains collection statistics
type CollectionInfo struct {
	PointsCount uint64
}

// Film is the relational row backing FilmRecord and keyword search.
type Film struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	Title        string         `gorm:"not null;index"`
	Poster       string         `gorm:"not null;default:noimage"`
	BasicDetails datatypes.JSON `gorm:"type:jsonb;not null"`
	RawDetails   datatypes.JSON `gorm:"type:jsonb;not null"`
	SearchText   string         `gorm:"type:text;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Film) TableName() string { return "films" }

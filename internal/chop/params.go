package chop

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// OnsetParams controls onset detection. Window sizes are in analysis frames.
type OnsetParams struct {
	HopLength int     `json:"hop_length" validate:"gt=0"`
	PreMax    int     `json:"pre_max" validate:"gte=0"`
	PostMax   int     `json:"post_max" validate:"gte=1"`
	PreAvg    int     `json:"pre_avg" validate:"gte=0"`
	PostAvg   int     `json:"post_avg" validate:"gte=1"`
	Delta     float64 `json:"delta" validate:"gte=0"`
	Wait      int     `json:"wait" validate:"gte=0"`
	Backtrack bool    `json:"backtrack"`
}

// Params are the knobs of one pipeline run.
type Params struct {
	// MinDuration is the shortest gap, in seconds, that ends a chop at the next onset.
	MinDuration float64 `json:"min_duration" validate:"gt=0"`
	// DefaultLength is the length, in seconds, given to the last chop and to chops whose next onset is too close.
	DefaultLength float64     `json:"default_length" validate:"gt=0"`
	NClusters     int         `json:"n_clusters" validate:"gte=1"`
	MaxChops      int         `json:"max_chops" validate:"gte=1"`
	Onset         OnsetParams `json:"onset"`
}

// DefaultParams returns the stock chopping parameters.
func DefaultParams() Params {
	return Params{
		MinDuration:   0.2,
		DefaultLength: 1.8,
		NClusters:     6,
		MaxChops:      6,
		Onset: OnsetParams{
			HopLength: 512,
			PreMax:    7,
			PostMax:   7,
			PreAvg:    7,
			PostAvg:   7,
			Delta:     0.25,
			Wait:      0,
		},
	}
}

var validate = validator.New()

// Validate checks every field against its bounds.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return nil
}

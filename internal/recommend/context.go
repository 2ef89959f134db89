package recommend

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/scentmatch/scentmatch/internal/model"
)

// Options offered for the situational context of a recommendation request.
var (
	Moods      = []string{"Stressed", "Happy", "Sad", "Angry", "Neutral", "Excited", "Relaxed"}
	Activities = []string{"Office", "Date Night", "Evening Walk", "Travel", "Gym", "Social Event", "Casual Day", "Formal Event"}
	Climates   = []string{"Hot", "Hot & Humid", "Hot & Dry", "Temperate", "Cold"}
)

// Bounds and defaults of the numeric context signals.
const (
	DefaultTemperature = 24.0
	MinTemperature     = -10.0
	MaxTemperature     = 40.0
	DefaultHumidity    = 60.0
	MinHumidity        = 0.0
	MaxHumidity        = 100.0
)

// ErrContextIncomplete is returned when mood, activity or climate is missing.
var ErrContextIncomplete = errors.New("mood, activity and climate are required")

// DefaultContext returns an empty context with the default environment readings.
func DefaultContext() model.RecommendationContext {
	t, h := DefaultTemperature, DefaultHumidity
	return model.RecommendationContext{Temperature: &t, Humidity: &h}
}

// ParseContext builds a context from raw form values. Missing numeric values take
// their defaults; values out of range are clamped.
func ParseContext(mood, activity, climate, temperature, humidity string) (model.RecommendationContext, error) {
	rc := DefaultContext()
	rc.Mood = strings.TrimSpace(mood)
	rc.Activity = strings.TrimSpace(activity)
	rc.PrimaryClimate = strings.TrimSpace(climate)

	if s := strings.TrimSpace(temperature); s != "" {
		t, err := parseReading(s)
		if err != nil {
			return rc, fmt.Errorf("temperature %q: %w", s, err)
		}
		t = clamp(t, MinTemperature, MaxTemperature)
		rc.Temperature = &t
	}
	if s := strings.TrimSpace(humidity); s != "" {
		h, err := parseReading(s)
		if err != nil {
			return rc, fmt.Errorf("humidity %q: %w", s, err)
		}
		h = clamp(h, MinHumidity, MaxHumidity)
		rc.Humidity = &h
	}
	return rc, nil
}

// ValidateContext checks that the required context signals are present.
func ValidateContext(rc model.RecommendationContext) error {
	if rc.Mood == "" || rc.Activity == "" || rc.PrimaryClimate == "" {
		return ErrContextIncomplete
	}
	return nil
}

var errNotFinite = errors.New("not a finite number")

func parseReading(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	return v, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

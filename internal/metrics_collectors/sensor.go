package metrics_collectors

import (
	"math"
	"strings"

	"github.com/rs/zerolog"
)

// sensor carries the identity shared by every collector.
type sensor struct {
	key    string
	typ    string
	name   string
	arg    string
	Logger zerolog.Logger
}

func newSensor(conditionType, arg, name string, logger zerolog.Logger) sensor {
	if name == "" {
		name = strings.TrimSpace(ConditionTypes[conditionType].Name + " " + arg)
	}
	key := SensorKey(conditionType, arg)
	return sensor{
		key:    key,
		typ:    conditionType,
		name:   name,
		arg:    arg,
		Logger: logger.With().Str("sensor", key).Logger(),
	}
}

func (s *sensor) Key() string  { return s.key }
func (s *sensor) Type() string { return s.typ }
func (s *sensor) Name() string { return s.name }
func (s *sensor) Arg() string  { return s.arg }

func (s *sensor) Unit() string {
	return ConditionTypes[s.typ].Unit
}

func (s *sensor) Description() string {
	return ConditionTypes[s.typ].Description
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

const (
	kib = 1024.0
	mib = kib * 1024
	gib = mib * 1024
)

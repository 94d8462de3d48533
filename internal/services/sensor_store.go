package services

import (
	"sort"

	"github.com/hausnet/heartbeat-agent/internal/models"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// SensorStore keeps the latest reading of every system sensor. It is safe
// for concurrent use.
type SensorStore struct {
	readings cmap.ConcurrentMap[string, models.SensorReading]
}

func NewSensorStore() *SensorStore {
	return &SensorStore{readings: cmap.New[models.SensorReading]()}
}

func (s *SensorStore) Put(r models.SensorReading) {
	s.readings.Set(r.Key, r)
}

func (s *SensorStore) Get(key string) (models.SensorReading, bool) {
	return s.readings.Get(key)
}

// All returns every reading ordered by key.
func (s *SensorStore) All() []models.SensorReading {
	out := make([]models.SensorReading, 0, s.readings.Count())
	for item := range s.readings.IterBuffered() {
		out = append(out, item.Val)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *SensorStore) Len() int {
	return s.readings.Count()
}

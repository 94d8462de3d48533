package heartbeat

// Device is a device registered with the heartbeat service.
type Device struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	HeartbeatID *int   `json:"heartbeat_id"`
}

// Heartbeat is the heartbeat definition attached to a device.
type Heartbeat struct {
	ID            int `json:"id"`
	PeriodSeconds int `json:"period_seconds"`
}

type apiDescription struct {
	Info struct {
		Title   string `json:"title"`
		Version string `json:"version"`
	} `json:"info"`
}

package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sort"
	"time"
)

type entity struct {
	EntityID     string `json:"entity_id"`
	Domain       string `json:"domain"`
	AreaID       string `json:"area_id,omitempty"`
	DeviceClass  string `json:"device_class,omitempty"`
	DeviceID     string `json:"device_id,omitempty"`
	FriendlyName string `json:"friendly_name,omitempty"`
}

type device struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	AreaID   string `json:"area_id,omitempty"`
}

type stateEvent struct {
	EntityID  string    `json:"entity_id"`
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state"`
}

type blueprint struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	UseCase      string   `json:"use_case"`
	Description  string   `json:"description,omitempty"`
	DeviceTypes  []string `json:"device_types,omitempty"`
	Integrations []string `json:"integrations,omitempty"`
	Quality      float64  `json:"quality"`
}

var entities = []entity{
	{EntityID: "binary_sensor.kitchen_motion", Domain: "binary_sensor", DeviceClass: "motion", DeviceID: "dev-kitchen-motion", FriendlyName: "Kitchen Motion"},
	{EntityID: "light.kitchen", Domain: "light", AreaID: "kitchen", FriendlyName: "Kitchen Light"},
	{EntityID: "switch.coffee_maker", Domain: "switch", AreaID: "kitchen", FriendlyName: "Coffee Maker"},
	{EntityID: "sensor.kitchen_motion_battery", Domain: "sensor", DeviceClass: "battery", DeviceID: "dev-kitchen-motion"},
	{EntityID: "light.bedroom_lamp", Domain: "light", AreaID: "bedroom", FriendlyName: "Bedroom Lamp"},
	{EntityID: "cover.bedroom_blinds", Domain: "cover", AreaID: "bedroom", FriendlyName: "Bedroom Blinds"},
	{EntityID: "light.office_desk", Domain: "light", AreaID: "office"},
	{EntityID: "light.office_ceiling", Domain: "light", AreaID: "office"},
	{EntityID: "switch.office_monitor", Domain: "switch", AreaID: "office"},
	{EntityID: "fan.office", Domain: "fan", AreaID: "office"},
	{EntityID: "climate.living_room", Domain: "climate", AreaID: "living_room", FriendlyName: "Thermostat"},
	{EntityID: "sensor.outdoor_temperature", Domain: "sensor", DeviceClass: "temperature", AreaID: "garden"},
	{EntityID: "weather.home", Domain: "weather"},
	{EntityID: "sensor.electricity_price", Domain: "sensor", DeviceClass: "monetary"},
	{EntityID: "update.core", Domain: "update"},
}

var devices = []device{
	{DeviceID: "dev-kitchen-motion", Name: "Kitchen Motion Sensor", AreaID: "kitchen"},
}

var catalogue = []blueprint{
	{
		ID: "motion-light", Name: "Motion-activated light", UseCase: "comfort",
		Description: "Turn on a light when motion is detected",
		DeviceTypes: []string{"binary_sensor:motion", "light"}, Quality: 0.9,
	},
	{
		ID: "bedtime-routine", Name: "Bedtime routine", UseCase: "convenience",
		Description: "Close the blinds and dim the lamp at night",
		DeviceTypes: []string{"light", "cover"}, Quality: 0.75,
	},
	{
		ID: "morning-coffee", Name: "Morning coffee", UseCase: "convenience",
		Description: "Start the coffee maker when the kitchen wakes up",
		Quality: 0.7,
	},
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/registry/entities", func(w http.ResponseWriter, r *http.Request) {
		if !enforceMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, map[string]any{"entities": entities})
	})

	mux.HandleFunc("/api/v1/registry/devices", func(w http.ResponseWriter, r *http.Request) {
		if !enforceMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, map[string]any{"devices": devices})
	})

	mux.HandleFunc("/api/v1/history/events", func(w http.ResponseWriter, r *http.Request) {
		if !enforceMethod(w, r, http.MethodPost) {
			return
		}
		var req struct {
			EntityIDs []string  `json:"entity_ids"`
			Start     time.Time `json:"start"`
			End       time.Time `json:"end"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"events": history(req.EntityIDs, req.Start, req.End)})
	})

	mux.HandleFunc("/v1/blueprints/search", func(w http.ResponseWriter, r *http.Request) {
		if !enforceMethod(w, r, http.MethodPost) {
			return
		}
		writeJSON(w, map[string]any{"blueprints": catalogue})
	})

	mux.HandleFunc("/context/weather", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"condition": "rainy", "temperature": 14.5, "humidity": 81})
	})
	mux.HandleFunc("/context/energy", func(w http.ResponseWriter, r *http.Request) {
		period := "off_peak"
		if h := time.Now().Hour(); h >= 17 && h < 21 {
			period = "peak"
		}
		writeJSON(w, map[string]any{"price": 0.31, "period": period, "currency": "EUR"})
	})
	mux.HandleFunc("/context/calendar", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"next_event": "Dentist", "starts_at": time.Now().Add(26 * time.Hour).UTC().Format(time.RFC3339), "away": false})
	})

	addr := os.Getenv("MOCK_CORE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	logger := log.New(log.Writer(), "core-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:              addr,
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Printf("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// history replays a fixed household routine for every day in [start, end).
func history(entityIDs []string, start, end time.Time) []stateEvent {
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() || !start.Before(end) {
		start = end.Add(-14 * 24 * time.Hour)
	}
	wanted := make(map[string]bool, len(entityIDs))
	for _, id := range entityIDs {
		wanted[id] = true
	}

	var out []stateEvent
	add := func(id string, at time.Time, state string) {
		if (len(wanted) == 0 || wanted[id]) && !at.Before(start) && at.Before(end) {
			out = append(out, stateEvent{EntityID: id, Timestamp: at, State: state})
		}
	}

	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; day.Before(end); i, day = i+1, day.AddDate(0, 0, 1) {
		wake := day.Add(6*time.Hour + 59*time.Minute + 50*time.Second)
		add("binary_sensor.kitchen_motion", wake, "on")
		add("binary_sensor.kitchen_motion", wake.Add(30*time.Second), "off")
		if i%7 != 3 {
			add("light.kitchen", wake.Add(10*time.Second), "on")
			add("light.kitchen", wake.Add(55*time.Second), "off")
		}
		if day.Weekday() != time.Saturday && day.Weekday() != time.Sunday {
			add("switch.coffee_maker", day.Add(7*time.Hour+2*time.Minute), "on")
			add("switch.coffee_maker", day.Add(7*time.Hour+20*time.Minute), "off")
			add("light.office_desk", day.Add(9*time.Hour), "on")
			add("switch.office_monitor", day.Add(9*time.Hour+5*time.Second), "on")
			add("light.office_desk", day.Add(17*time.Hour+30*time.Minute), "off")
			add("switch.office_monitor", day.Add(17*time.Hour+30*time.Minute+5*time.Second), "off")
		}
		night := day.Add(22 * time.Hour)
		if i%2 == 1 {
			night = night.Add(8 * time.Minute)
		}
		add("light.bedroom_lamp", night, "on")
		add("cover.bedroom_blinds", night.Add(time.Minute), "closed")
		add("light.bedroom_lamp", night.Add(45*time.Minute), "off")
		add("cover.bedroom_blinds", day.Add(7*time.Hour+30*time.Minute), "open")
		add("sensor.kitchen_motion_battery", day.Add(12*time.Hour), "unavailable")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func enforceMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

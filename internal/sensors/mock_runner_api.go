package sensors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Handler returns the control API:
//
//	GET  /            control page
//	GET  /api/state   current values as JSON
//	POST /api/set     change values: speed (m/s) or speedKmh, heartRate, hrv, floors, vo2Max
//	POST /api/trigger emit every channel now
func (m *MockRunner) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", m.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/api/state", m.handleGetState).Methods(http.MethodGet)
	r.HandleFunc("/api/set", m.handleSetValues).Methods(http.MethodPost)
	r.HandleFunc("/api/trigger", m.handleTrigger).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

func (m *MockRunner) handleGetState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.State()); err != nil {
		m.logger.Printf("MockRunner: Error encoding state: %v", err)
	}
}

func (m *MockRunner) handleSetValues(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var update MockRunnerUpdate

	params := []struct {
		name  string
		scale float64
		dst   **float64
	}{
		{"speed", 1, &update.SpeedMps},
		{"speedKmh", 1 / 3.6, &update.SpeedMps},
		{"heartRate", 1, &update.HeartRateBpm},
		{"hrv", 1, &update.HRVMs},
		{"floors", 1, &update.Floors},
		{"vo2Max", 1, &update.VO2Max},
	}
	for _, p := range params {
		raw := query.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			http.Error(w, fmt.Sprintf("invalid %s: %q", p.name, raw), http.StatusBadRequest)
			return
		}
		v *= p.scale
		*p.dst = &v
	}

	m.Set(update)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.State()); err != nil {
		m.logger.Printf("MockRunner: Error encoding state: %v", err)
	}
}

func (m *MockRunner) handleTrigger(w http.ResponseWriter, r *http.Request) {
	m.Trigger()
	w.WriteHeader(http.StatusOK)
}

func (m *MockRunner) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(mockRunnerPage))
}

const mockRunnerPage = `<!DOCTYPE html>
<html>
<head>
    <title>NRG Watch Mock Runner</title>
    <style>
        body { font-family: Arial, sans-serif; max-width: 640px; margin: 0 auto; padding: 20px; }
        label { display: inline-block; width: 140px; }
        input[type="number"] { width: 100px; padding: 5px; }
        button { padding: 10px 20px; margin: 5px; cursor: pointer; }
    </style>
</head>
<body>
    <h1>Mock Runner</h1>
    <div id="state">Loading...</div>
    <h2>Set Values</h2>
    <div><label>Speed (km/h):</label><input type="number" id="speedKmh" step="0.1"></div>
    <div><label>Heart Rate (bpm):</label><input type="number" id="heartRate"></div>
    <div><label>HRV (ms):</label><input type="number" id="hrv"></div>
    <div><label>Floors:</label><input type="number" id="floors"></div>
    <div><label>VO2 Max:</label><input type="number" id="vo2Max" step="0.1"></div>
    <button onclick="setValues()">Apply</button>
    <button onclick="trigger()">Send All Channels</button>
    <script>
        function refreshState() {
            fetch('/api/state')
                .then(r => r.json())
                .then(data => {
                    document.getElementById('state').innerHTML =
                        'Distance: ' + (data.distanceMeters / 1000).toFixed(2) + ' km<br>' +
                        'Speed: ' + data.speedKmh.toFixed(1) + ' km/h<br>' +
                        'Heart Rate: ' + data.heartRate + ' bpm<br>' +
                        'HRV: ' + data.hrv + ' ms<br>' +
                        'Floors: ' + data.floors + '<br>' +
                        'VO2 Max: ' + data.vo2Max;
                });
        }
        function setValues() {
            const params = new URLSearchParams();
            for (const id of ['speedKmh', 'heartRate', 'hrv', 'floors', 'vo2Max']) {
                const v = document.getElementById(id).value;
                if (v !== '') params.set(id, v);
            }
            fetch('/api/set?' + params, {method: 'POST'}).then(refreshState);
        }
        function trigger() {
            fetch('/api/trigger', {method: 'POST'});
        }
        refreshState();
        setInterval(refreshState, 2000);
    </script>
</body>
</html>`

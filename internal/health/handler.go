package health

import "net/http"

// Handler responds to liveness probes. It reports process health only;
// database and Redis reachability are not checked here.
func Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

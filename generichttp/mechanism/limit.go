package mechanism

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"periph.io/x/conn/v3/physic"

	"github.com/robotcore/mechanism/generichttp"
	"github.com/robotcore/mechanism/setpoint"
	"github.com/robotcore/mechanism/units"
	"github.com/robotcore/mechanism/util"
)

var (
	errClamped = errors.New("requested position violates software limits, aborted")
)

// LimitsJSON is a Limiter in radians
type LimitsJSON struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// LimitMiddleware imposes server side travel limits on position setpoints,
// independent of whatever limits the actuator enforces
type LimitMiddleware struct {
	// Limits is nil when the mechanism has no limits
	Limits *util.Limiter[physic.Angle]
}

// Check rejects a POST to .../setpoint whose position target lies outside
// Limits with StatusBadRequest; otherwise it flows control to the next
// handler
func (l LimitMiddleware) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Limits == nil || r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/setpoint") {
			next.ServeHTTP(w, r)
			return
		}
		// downstream handlers want the body too;
		// read it all here, then "paste" it back
		bodyContent, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(bodyContent))
		var sp setpoint.Setpoint
		if err := json.Unmarshal(bodyContent, &sp); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if target, ok := sp.Angle(); ok && !l.Limits.Check(target) {
			http.Error(w, errClamped.Error(), http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Inject places a GET /limits route on the table of the HTTPer
func (l LimitMiddleware) Inject(h generichttp.HTTPer) {
	h.RT()[generichttp.MethodPath{Method: http.MethodGet, Path: "/limits"}] = Limits(l)
}

// Limits returns an HTTP handler func that replies with the limits, or
// null if there are none
func Limits(l LimitMiddleware) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload *LimitsJSON
		if l.Limits != nil {
			payload = &LimitsJSON{Min: units.Radians(l.Limits.Min), Max: units.Radians(l.Limits.Max)}
		}
		writeJSON(w, payload)
	}
}

// Package api provides HTTP handlers for the forecast engine.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/properlytic/engine/internal/cache"
	"github.com/properlytic/engine/internal/forecast"
	"github.com/properlytic/engine/internal/geocode"
	"github.com/properlytic/engine/internal/grid"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Forecast    *forecast.Service
	Detail      *forecast.DetailResolver
	Geocoder    *geocode.Client
	Cache       *cache.Manager
	CORSOrigins []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/viewport", viewportHandler(cfg.Forecast))
		r.Get("/resolution", resolutionHandler)
		r.Get("/cells/{cell_id}", cellDetailHandler(cfg.Detail, cfg.Cache))
		r.Get("/cells/{cell_id}/neighbors", cellNeighborsHandler)
		r.Get("/geocode", geocodeHandler(cfg.Geocoder))
		r.Get("/stats", statsHandler(cfg.Cache))
	})

	return r
}

// viewportHandler serves the year-indexed dataset for a camera position.
func viewportHandler(svc *forecast.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		cam := grid.Camera{Scale: 1}
		var err error
		if cam.CenterLat, err = parseFloat(q.Get("lat")); err != nil {
			http.Error(w, "invalid lat", http.StatusBadRequest)
			return
		}
		if cam.CenterLng, err = parseFloat(q.Get("lng")); err != nil {
			http.Error(w, "invalid lng", http.StatusBadRequest)
			return
		}
		if cam.Zoom, err = parseFloat(q.Get("zoom")); err != nil {
			http.Error(w, "invalid zoom", http.StatusBadRequest)
			return
		}
		cam.Width = parseIntDefault(q.Get("width"), 1280)
		cam.Height = parseIntDefault(q.Get("height"), 800)
		if v := q.Get("offset_x"); v != "" {
			cam.OffsetX, _ = strconv.ParseFloat(v, 64)
		}
		if v := q.Get("offset_y"); v != "" {
			cam.OffsetY, _ = strconv.ParseFloat(v, 64)
		}
		if v := q.Get("scale"); v != "" {
			if s, err := strconv.ParseFloat(v, 64); err == nil && s > 0 {
				cam.Scale = s
			}
		}

		years, err := parseYears(q.Get("years"))
		if err != nil {
			http.Error(w, "invalid years", http.StatusBadRequest)
			return
		}

		var override *int
		if v := q.Get("resolution"); v != "" {
			o, err := strconv.Atoi(v)
			if err != nil {
				http.Error(w, "invalid resolution", http.StatusBadRequest)
				return
			}
			override = &o
		}

		result, err := svc.ViewportForecast(r.Context(), cam, years, override)
		if err != nil {
			if errors.Is(err, forecast.ErrSuperseded) {
				// A newer viewport request replaced this one; the client
				// already has a fresher fetch in flight.
				http.Error(w, "superseded by a newer request", http.StatusConflict)
				return
			}
			http.Error(w, "failed to fetch forecast: "+err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, result)
	}
}

// resolutionHandler exposes the zoom-to-resolution mapping for clients.
func resolutionHandler(w http.ResponseWriter, r *http.Request) {
	zoom, err := parseFloat(r.URL.Query().Get("zoom"))
	if err != nil {
		http.Error(w, "invalid zoom", http.StatusBadRequest)
		return
	}

	var override *int
	if v := r.URL.Query().Get("override"); v != "" {
		o, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid override", http.StatusBadRequest)
			return
		}
		override = &o
	}

	writeJSON(w, map[string]interface{}{
		"zoom":       zoom,
		"resolution": grid.ResolutionForZoom(zoom, override),
	})
}

// cellDetailHandler serves single-cell detail, memoized as serialized
// payloads. The detail path is independent of the viewport pipeline's cache.
func cellDetailHandler(resolver *forecast.DetailResolver, cm *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cellID := chi.URLParam(r, "cell_id")
		year := parseIntDefault(r.URL.Query().Get("year"), 0)
		if year == 0 {
			http.Error(w, "missing required query param: year", http.StatusBadRequest)
			return
		}

		key := cache.DetailKey(cellID, year)
		if data, ok := cm.GetDetail(key); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write(data)
			return
		}

		detail, err := resolver.Resolve(r.Context(), cellID, year)
		if err != nil {
			if errors.Is(err, forecast.ErrDetailNotFound) {
				http.Error(w, "cell detail not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to fetch detail: "+err.Error(), http.StatusInternalServerError)
			return
		}

		data, err := json.Marshal(detail)
		if err != nil {
			http.Error(w, "failed to encode detail", http.StatusInternalServerError)
			return
		}
		cm.SetDetail(key, data)

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

// cellNeighborsHandler returns cells within a ring of the given cell.
func cellNeighborsHandler(w http.ResponseWriter, r *http.Request) {
	cellID := chi.URLParam(r, "cell_id")
	ring := parseIntDefault(r.URL.Query().Get("ring"), 1)
	if ring < 1 || ring > 10 {
		http.Error(w, "ring must be between 1 and 10", http.StatusBadRequest)
		return
	}

	neighbors := grid.NeighborCells(cellID, ring)
	if neighbors == nil {
		http.Error(w, "invalid cell id", http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]interface{}{
		"cell_id":   cellID,
		"ring":      ring,
		"neighbors": neighbors,
	})
}

// geocodeHandler proxies address lookups through the rate-limited client.
func geocodeHandler(client *geocode.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			http.Error(w, "missing required query param: q", http.StatusBadRequest)
			return
		}

		results, err := client.Lookup(r.Context(), query)
		if err != nil {
			http.Error(w, "geocode lookup failed: "+err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, results)
	}
}

// statsHandler returns cache statistics.
func statsHandler(cm *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, cm.Stats())
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func parseFloat(v string) (float64, error) {
	if v == "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(v, 64)
}

func parseIntDefault(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func parseYears(v string) ([]int, error) {
	if v == "" {
		return nil, strconv.ErrSyntax
	}
	parts := strings.Split(v, ",")
	years := make([]int, 0, len(parts))
	for _, p := range parts {
		y, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, nil
}

package main

import (
	"encoding/json"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"time"

	"github.com/kwv/gridloc/mcl"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(tracker *mcl.Tracker, costmap *mcl.Costmap) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status     string    `json:"status"`
			Timestamp  time.Time `json:"timestamp"`
			Hypotheses int       `json:"hypotheses"`
		}{
			Status:     "ok",
			Timestamp:  time.Now(),
			Hypotheses: tracker.Len(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// Best hypothesis endpoint
	mux.HandleFunc("/estimate", func(w http.ResponseWriter, r *http.Request) {
		best, ok := tracker.Best()
		if !ok {
			http.Error(w, "No hypotheses available", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		estimate := struct {
			HypothesisID int       `json:"hypothesisId"`
			X            float64   `json:"x"`
			Y            float64   `json:"y"`
			Yaw          float64   `json:"yaw"`
			SpreadXY     float64   `json:"spreadXY"`
			SpreadYaw    float64   `json:"spreadYaw"`
			Quality      float64   `json:"quality"`
			Diverged     bool      `json:"diverged"`
			UpdatedAt    time.Time `json:"updatedAt"`
		}{
			HypothesisID: best.ID,
			X:            best.Estimate.Pose.Translation.X,
			Y:            best.Estimate.Pose.Translation.Y,
			Yaw:          best.Estimate.Pose.Yaw(),
			SpreadXY:     best.Estimate.SpreadXY,
			SpreadYaw:    best.Estimate.SpreadYaw,
			Quality:      best.Quality,
			Diverged:     best.Diverged,
			UpdatedAt:    best.UpdatedAt,
		}
		if err := json.NewEncoder(w).Encode(estimate); err != nil {
			log.Printf("Error encoding estimate: %v", err)
		}
	})

	// Hypothesis list and creation endpoint
	mux.HandleFunc("/hypotheses", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Cache-Control", "no-cache")
			if err := json.NewEncoder(w).Encode(tracker.Statuses()); err != nil {
				log.Printf("Error encoding hypotheses: %v", err)
			}

		case http.MethodPost:
			var req struct {
				X   float64 `json:"x"`
				Y   float64 `json:"y"`
				Yaw float64 `json:"yaw"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
				return
			}

			id, err := tracker.AddHypothesis(mcl.FromXYYaw(req.X, req.Y, req.Yaw))
			if err != nil {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			log.Printf("[HTTP] Added hypothesis %d at (%.2f, %.2f, %.2f)", id, req.X, req.Y, req.Yaw)

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			if err := json.NewEncoder(w).Encode(map[string]int{"id": id}); err != nil {
				log.Printf("Error encoding hypothesis id: %v", err)
			}

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Raster particle cloud endpoint
	mux.HandleFunc("/particles.png", func(w http.ResponseWriter, r *http.Request) {
		best, ok := tracker.Best()
		if !ok {
			http.Error(w, "No hypotheses available", http.StatusServiceUnavailable)
			return
		}

		renderer := mcl.NewCloudRenderer(costmap)
		img := renderer.Render(tracker.BestParticles(), best.Estimate, mcl.HypothesisColor(best.ID))

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := png.Encode(w, img); err != nil {
			log.Printf("Error encoding particles PNG: %v", err)
		}
	})

	// Vector particle cloud endpoint
	mux.HandleFunc("/particles.svg", func(w http.ResponseWriter, r *http.Request) {
		best, ok := tracker.Best()
		if !ok {
			http.Error(w, "No hypotheses available", http.StatusServiceUnavailable)
			return
		}

		vectorRenderer := mcl.NewVectorCloudRenderer(costmap)

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := vectorRenderer.RenderToSVG(w, tracker.BestParticles(), best.Estimate, mcl.HypothesisColor(best.ID)); err != nil {
			log.Printf("Error encoding particles SVG: %v", err)
		}
	})

	// GeoJSON particle cloud endpoint
	mux.HandleFunc("/particles.geojson", func(w http.ResponseWriter, r *http.Request) {
		best, ok := tracker.Best()
		if !ok {
			http.Error(w, "No hypotheses available", http.StatusServiceUnavailable)
			return
		}

		data, err := mcl.ExportGeoJSON(tracker.BestParticles(), best, costmap)
		if err != nil {
			log.Printf("Error exporting particles GeoJSON: %v", err)
			http.Error(w, "Export failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(data); err != nil {
			log.Printf("Error writing particles GeoJSON: %v", err)
		}
	})

	// Default route serves HTML page embedding the SVG cloud
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>gridloc</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
html,body{width:100%;height:100%;overflow:hidden;background:#1a1a1a}
img{display:block;width:100vw;height:100vh;object-fit:contain}
</style>
</head>
<body>
<img src="/particles.svg" alt="Particle Cloud">
</body>
</html>`)
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

package grid

import (
	"math"

	"github.com/properlytic/engine/internal/store"
)

// Web Mercator latitude limit; beyond it the projection diverges.
const maxMercatorLat = 85.05112878

// baseTileSize is the world size in pixels at zoom 0.
const baseTileSize = 256.0

// Camera describes the renderer's view of the map: canvas size in pixels,
// geographic center, continuous zoom, and the projection transform (pan
// offset in pixels plus an extra scale factor).
type Camera struct {
	CenterLat float64
	CenterLng float64
	Zoom      float64
	Width     int
	Height    int
	OffsetX   float64
	OffsetY   float64
	Scale     float64
}

func (c Camera) worldSize() float64 {
	scale := c.Scale
	if scale <= 0 {
		scale = 1
	}
	return baseTileSize * math.Exp2(c.Zoom) * scale
}

// projectWorld maps a geographic point to world pixel coordinates.
func projectWorld(lat, lng, size float64) (x, y float64) {
	siny := math.Sin(lat * math.Pi / 180)
	// Clamp to keep y finite near the poles.
	siny = math.Min(math.Max(siny, -0.9999), 0.9999)
	x = (lng + 180) / 360 * size
	y = (0.5 - math.Log((1+siny)/(1-siny))/(4*math.Pi)) * size
	return x, y
}

// unprojectWorld maps world pixel coordinates back to a geographic point.
func unprojectWorld(x, y, size float64) (lat, lng float64) {
	lng = x/size*360 - 180
	n := math.Pi - 2*math.Pi*y/size
	lat = 180 / math.Pi * math.Atan(math.Sinh(n))
	return lat, lng
}

// ScreenToGeo converts a canvas pixel position to a geographic point using
// the camera's projection transform. The renderer must use the same math in
// reverse; any drift here shows up as missing-tile gaps at viewport edges.
func ScreenToGeo(cam Camera, px, py float64) (lat, lng float64) {
	size := cam.worldSize()
	cx, cy := projectWorld(cam.CenterLat, cam.CenterLng, size)
	wx := cx + px - float64(cam.Width)/2 - cam.OffsetX
	wy := cy + py - float64(cam.Height)/2 - cam.OffsetY
	return unprojectWorld(wx, wy, size)
}

// GeoToScreen converts a geographic point to a canvas pixel position.
func GeoToScreen(cam Camera, lat, lng float64) (px, py float64) {
	size := cam.worldSize()
	cx, cy := projectWorld(cam.CenterLat, cam.CenterLng, size)
	wx, wy := projectWorld(lat, lng, size)
	px = wx - cx + float64(cam.Width)/2 + cam.OffsetX
	py = wy - cy + float64(cam.Height)/2 + cam.OffsetY
	return px, py
}

// BoundsForCamera computes the geographic bounding box covering the visible
// canvas plus a padding margin on all sides. Padding trades a larger fetch
// for fewer fetch events while panning.
func BoundsForCamera(cam Camera, padding float64) store.Bounds {
	topLat, leftLng := ScreenToGeo(cam, 0, 0)
	bottomLat, rightLng := ScreenToGeo(cam, float64(cam.Width), float64(cam.Height))

	minLat, maxLat := bottomLat, topLat
	if minLat > maxLat {
		minLat, maxLat = maxLat, minLat
	}
	minLng, maxLng := leftLng, rightLng
	if minLng > maxLng {
		minLng, maxLng = maxLng, minLng
	}

	latPad := (maxLat - minLat) * padding
	lngPad := (maxLng - minLng) * padding

	return store.Bounds{
		MinLat: clamp(minLat-latPad, -maxMercatorLat, maxMercatorLat),
		MaxLat: clamp(maxLat+latPad, -maxMercatorLat, maxMercatorLat),
		MinLng: clamp(minLng-lngPad, -180, 180),
		MaxLng: clamp(maxLng+lngPad, -180, 180),
	}
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

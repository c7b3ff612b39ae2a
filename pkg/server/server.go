// Package server provides the Echo web server for the remix visualizer.
package server

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/beatgraph/remixatron/pkg/engine"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// remixSidecarExt is the suffix used for a track's cached engine.Output,
// shared by listMusic, serveMusic and serveRemix so the library listing and
// the remix endpoint agree on one cache convention.
const remixSidecarExt = ".remix.json"

// Track describes one playable file under the music directory and whether
// a remix has already been computed and cached for it.
type Track struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	HasRemix  bool   `json:"has_remix"`
	RemixPath string `json:"remix_path,omitempty"`
}

// Run starts the web server on :8080.
func Run() error {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Routes
	e.GET("/", serveIndex)
	e.Static("/src", "src")
	e.GET("/api/music", listMusic)
	e.GET("/api/music/*", serveMusic)
	e.GET("/api/remix/*", serveRemix)

	return e.Start(":8080")
}

// serveIndex serves the main player page.
func serveIndex(c echo.Context) error {
	return c.File("src/index.html")
}

// listMusic walks the music directory and reports each playable track along
// with whether its .remix.json sidecar has already been computed.
func listMusic(c echo.Context) error {
	var tracks []Track

	err := filepath.WalkDir("music", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !isAudioFile(ext) {
			return nil
		}

		relPath := strings.TrimPrefix(path, "music/")
		remixPath := strings.TrimSuffix(path, ext) + remixSidecarExt

		track := Track{
			Name: strings.TrimSuffix(filepath.Base(path), ext),
			Path: relPath,
		}

		if _, err := os.Stat(remixPath); err == nil {
			track.HasRemix = true
			track.RemixPath = strings.TrimPrefix(remixPath, "music/")
		}

		tracks = append(tracks, track)
		return nil
	})

	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, tracks)
}

// serveMusic serves raw audio files and cached .remix.json sidecars from
// the music directory.
func serveMusic(c echo.Context) error {
	path := c.Param("*")
	decodedPath, err := url.PathUnescape(path)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid path encoding")
	}
	if strings.Contains(decodedPath, "..") {
		return echo.NewHTTPError(http.StatusForbidden, "invalid path")
	}
	fullPath := filepath.Join("music", decodedPath)

	info, err := os.Stat(fullPath)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	}
	if info.IsDir() {
		return echo.NewHTTPError(http.StatusForbidden, "cannot serve directory")
	}

	if strings.HasSuffix(decodedPath, remixSidecarExt) {
		data, err := os.ReadFile(fullPath)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		var out engine.Output
		if err := json.Unmarshal(data, &out); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "invalid remix sidecar")
		}
		return c.JSONBlob(http.StatusOK, data)
	}

	ext := strings.ToLower(filepath.Ext(decodedPath))
	if isAudioFile(ext) {
		return c.File(fullPath)
	}
	return echo.NewHTTPError(http.StatusForbidden, "file type not allowed")
}

// serveRemix runs the remix engine against a track under music/ and
// returns its Output as JSON, caching the result in a sidecar file named
// like the track with a ".remix.json" suffix.
func serveRemix(c echo.Context) error {
	path := c.Param("*")
	decodedPath, err := url.PathUnescape(path)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid path encoding")
	}
	if strings.Contains(decodedPath, "..") {
		return echo.NewHTTPError(http.StatusForbidden, "invalid path")
	}

	fullPath := filepath.Join("music", decodedPath)
	ext := strings.ToLower(filepath.Ext(fullPath))
	if !isAudioFile(ext) {
		return echo.NewHTTPError(http.StatusForbidden, "file type not allowed")
	}

	sidecar := strings.TrimSuffix(fullPath, ext) + ".remix.json"
	if data, err := os.ReadFile(sidecar); err == nil {
		return c.JSONBlob(http.StatusOK, data)
	}

	e := engine.New(engine.Config{})
	out, err := e.Run(fullPath)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	data, err := json.Marshal(out)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	_ = os.WriteFile(sidecar, data, 0o644)

	return c.JSONBlob(http.StatusOK, data)
}

// isAudioFile reports whether ext is a format engine.LoadFile can decode.
func isAudioFile(ext string) bool {
	switch ext {
	case ".mp3", ".wav", ".flac":
		return true
	default:
		return false
	}
}

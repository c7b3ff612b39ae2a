package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAudioFile(t *testing.T) {
	cases := map[string]bool{
		".mp3":  true,
		".wav":  true,
		".flac": true,
		".ogg":  false,
		".txt":  false,
		"":      false,
	}
	for ext, want := range cases {
		assert.Equal(t, want, isAudioFile(ext), "ext %q", ext)
	}
}

func TestListMusicNoDirectory(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/music", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := listMusic(c)
	require.Error(t, err, "music/ is not present in the test working directory")
}

func TestServeRemixRejectsTraversal(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/remix/../../etc/passwd", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("*")
	c.SetParamValues("../../etc/passwd")

	err := serveRemix(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)
}

func TestServeRemixRejectsUnsupportedExtension(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/remix/notes.txt", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("*")
	c.SetParamValues("notes.txt")

	err := serveRemix(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)
}

package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchHTTP(t *testing.T) {
	var gotUA, gotQuery, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.RawQuery
		gotPath = r.URL.Path
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("image bytes"))
	}))
	defer srv.Close()

	f := New("uncanny-test/1.0", 5*time.Second, nil)

	data, err := f.Fetch(context.Background(), srv.URL+"/photos/face.png?width=320#top")
	require.NoError(t, err)
	assert.Equal(t, "image bytes", string(data))
	assert.Equal(t, "uncanny-test/1.0", gotUA)
	assert.Equal(t, "/photos/face.png", gotPath)
	assert.Empty(t, gotQuery)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchRejectsSVG(t *testing.T) {
	f := New("ua", time.Second, nil)

	_, err := f.Fetch(context.Background(), "https://example.com/logo.SVG?v=2")
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = f.Fetch(context.Background(), DataURI("image/svg+xml", []byte("<svg/>")))
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = f.Fetch(context.Background(), "ftp://example.com/a.png")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestFetchDataURI(t *testing.T) {
	f := New("ua", time.Second, nil)
	data, err := f.Fetch(context.Background(), DataURI("image/png", []byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestParseDataURI(t *testing.T) {
	mediaType, data, err := ParseDataURI("data:image/JPEG;base64,aGk=")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mediaType)
	assert.Equal(t, "hi", string(data))

	_, _, err = ParseDataURI("data:image/png;base64")
	assert.Error(t, err)

	_, _, err = ParseDataURI("data:text/plain,hello")
	assert.ErrorIs(t, err, ErrUnsupported)

	_, _, err = ParseDataURI("data:image/png;base64,!!!")
	assert.Error(t, err)
}

func TestClean(t *testing.T) {
	got, err := Clean("https://upload.example.org/a/b.jpg?x=1&y=2")
	require.NoError(t, err)
	assert.Equal(t, "https://upload.example.org/a/b.jpg", got)
}

package artifacts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conveyor/internal/common/errors"
)

func TestFSStore_UploadDownload(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	err = store.Upload(ctx, "npm-releases", "1.2.0", "cart.tgz", []byte("bundle-v1"), false)
	require.NoError(t, err)

	data, err := store.Download(ctx, "npm-releases", "1.2.0", "cart.tgz")
	require.NoError(t, err)
	assert.Equal(t, []byte("bundle-v1"), data)
}

func TestFSStore_UploadConflict(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "repo", "1.0.0", "app.zip", []byte("first"), false))

	// Second upload without overwrite conflicts and leaves the original intact.
	err = store.Upload(ctx, "repo", "1.0.0", "app.zip", []byte("second"), false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConflict))

	data, err := store.Download(ctx, "repo", "1.0.0", "app.zip")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)
}

func TestFSStore_Overwrite(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "repo", "1.0.0", "app.zip", []byte("first"), false))
	require.NoError(t, store.Upload(ctx, "repo", "1.0.0", "app.zip", []byte("second"), true))

	data, err := store.Download(ctx, "repo", "1.0.0", "app.zip")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}

func TestFSStore_DownloadMissing(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "repo", "9.9.9", "nope.zip")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestFSStore_RejectsTraversal(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	err = store.Upload(context.Background(), "..", "1.0.0", "x", []byte("x"), false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func TestHTTPStore_RoundTrip(t *testing.T) {
	uploads := map[string][]byte{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			if _, exists := uploads[r.URL.Path]; exists && r.Header.Get("X-Overwrite") != "true" {
				w.WriteHeader(http.StatusConflict)
				return
			}
			body := make([]byte, r.ContentLength)
			r.Body.Read(body)
			uploads[r.URL.Path] = body
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			data, ok := uploads[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(data)
		}
	}))
	defer srv.Close()

	store, err := NewHTTPStore(srv.URL)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "repo", "2.0.0", "cart.tgz", []byte("payload"), false))

	err = store.Upload(ctx, "repo", "2.0.0", "cart.tgz", []byte("other"), false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConflict))

	data, err := store.Download(ctx, "repo", "2.0.0", "cart.tgz")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	_, err = store.Download(ctx, "repo", "3.0.0", "cart.tgz")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestHTTPStore_SendsToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	store, err := NewHTTPStore(srv.URL, WithBearerToken("secret-token"))
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "repo", "1.0.0", "app.zip")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

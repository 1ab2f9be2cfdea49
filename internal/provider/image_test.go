package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImage_Success(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Key fal-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"images":[{"url":"https://cdn.example/cat.png","width":1024}],"seed":7}`))
	}))
	defer srv.Close()

	img := NewImage(ImageConfig{APIKey: "fal-test", Endpoint: srv.URL, Logger: testLogger()})
	url, err := img.Generate(context.Background(), "нарисуй кота")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/cat.png", url)
	assert.Equal(t, map[string]string{"prompt": "нарисуй кота", "image_size": "square_hd"}, got)
}

func TestImage_Failures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   FailureKind
	}{
		{"missing images", http.StatusOK, `{"detail":"ok"}`, FailureSchema},
		{"empty images", http.StatusOK, `{"images":[]}`, FailureSchema},
		{"empty url", http.StatusOK, `{"images":[{"url":""}]}`, FailureSchema},
		{"malformed", http.StatusOK, `{"images":`, FailureSchema},
		{"forbidden", http.StatusForbidden, `{"detail":"invalid key"}`, FailureStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			img := NewImage(ImageConfig{APIKey: "fal-test", Endpoint: srv.URL, Logger: testLogger()})
			url, err := img.Generate(context.Background(), "art")
			require.Error(t, err)
			assert.Empty(t, url)
			assert.Equal(t, tc.kind, KindOf(err))
		})
	}
}

func TestImage_MissingKey(t *testing.T) {
	img := NewImage(ImageConfig{Endpoint: "http://127.0.0.1:1", Logger: testLogger()})
	_, err := img.Generate(context.Background(), "art")
	assert.Equal(t, FailureConfig, KindOf(err))
}

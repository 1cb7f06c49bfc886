package fetch

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"panoview/internal/decode"
)

func TestFetchAndDecode(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := New(decode.NewStd(), zaptest.NewLogger(t))
	bm, err := c.FetchAndDecode(context.Background(), srv.URL+"/1/0/0.png")
	require.NoError(t, err)
	assert.Equal(t, 16, bm.Rect.Dx())
}

func TestFetchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(decode.NewStd(), zaptest.NewLogger(t))
	_, err := c.FetchAndDecode(context.Background(), srv.URL+"/1/0/0.png")
	assert.ErrorContains(t, err, "status 404")
}

func TestFetchCancelled(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(decode.NewStd(), zaptest.NewLogger(t))
	_, err := c.FetchAndDecode(ctx, srv.URL+"/1/0/0.png")
	assert.ErrorIs(t, err, context.Canceled)
}

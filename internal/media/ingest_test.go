package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush/scrollable/internal/apperr"
	"github.com/ayush/scrollable/internal/auth"
	"github.com/ayush/scrollable/internal/models"
	"github.com/ayush/scrollable/internal/store"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type failingStore struct{ calls int }

func (f *failingStore) Upload(context.Context, string, io.Reader, int64, string, map[string]string) error {
	f.calls++
	return errors.New("bucket unreachable")
}

func (f *failingStore) Metadata(context.Context, string) (map[string]string, error) {
	return nil, store.ErrNotFound
}

func (f *failingStore) Remove(context.Context, string) error { return nil }

func metadata(t *testing.T, files *store.MemoryFileStore, key string) map[string]string {
	t.Helper()
	meta, err := files.Metadata(context.Background(), key)
	require.NoError(t, err)
	return meta
}

func quiet() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		declared string
		wantMime string
		wantType models.MediaType
		wantErr  bool
	}{
		{"declared image", nil, "image/jpeg", "image/jpeg", models.MediaImage, false},
		{"declared video with params", nil, "Video/MP4; codecs=avc1", "video/mp4", models.MediaVideo, false},
		{"sniffed when generic", pngHeader, "application/octet-stream", "image/png", models.MediaImage, false},
		{"sniffed when missing", pngHeader, "", "image/png", models.MediaImage, false},
		{"rejects pdf", nil, "application/pdf", "application/pdf", "", true},
		{"rejects text", []byte("hello"), "", "text/plain", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, kind, err := Classify(tt.data, tt.declared)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
				assert.Equal(t, "Only image and video files are allowed!", err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMime, mime)
			assert.Equal(t, tt.wantType, kind)
		})
	}
}

func TestIngestorUpload(t *testing.T) {
	files := store.NewMemoryFileStore()
	in := NewIngestor(files, Options{PublicURL: "https://cdn.example.com/", Bucket: "media"}, quiet())

	up, err := in.Upload(context.Background(), "u1", []byte("fake video"), "clip.MP4", "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, models.MediaVideo, up.Type)
	assert.True(t, strings.HasPrefix(up.PublicID, "scrollable/"))
	assert.True(t, strings.HasSuffix(up.PublicID, ".mp4"))
	assert.Equal(t, "https://cdn.example.com/media/"+up.PublicID, up.URL)

	data, ct, err := files.Download(context.Background(), up.PublicID)
	require.NoError(t, err)
	assert.Equal(t, "fake video", string(data))
	assert.Equal(t, "video/mp4", ct)
	assert.Equal(t, VideoTransform, metadata(t, files, up.PublicID)[MetaTransformation])
	assert.Equal(t, "u1", metadata(t, files, up.PublicID)[MetaOwner])

	img, err := in.Upload(context.Background(), "u1", pngHeader, "", "")
	require.NoError(t, err)
	assert.Equal(t, models.MediaImage, img.Type)
	assert.True(t, strings.HasSuffix(img.PublicID, ".png"))
	assert.Equal(t, ImageTransform, metadata(t, files, img.PublicID)[MetaTransformation])
}

func TestIngestorRelease(t *testing.T) {
	ctx := context.Background()
	files := store.NewMemoryFileStore()
	in := NewIngestor(files, Options{PublicURL: "https://cdn.example.com", Bucket: "media"}, quiet())

	up, err := in.Upload(ctx, "alice", pngHeader, "a.png", "image/png")
	require.NoError(t, err)

	require.NoError(t, in.Release(ctx, "https://elsewhere.example.com/a.png", "alice"))
	_, _, err = files.Download(ctx, up.PublicID)
	require.NoError(t, err)

	require.NoError(t, in.Release(ctx, up.URL, "bob"))
	_, _, err = files.Download(ctx, up.PublicID)
	require.NoError(t, err, "only the uploader frees the object")

	require.NoError(t, in.Release(ctx, up.URL, ""))
	_, _, err = files.Download(ctx, up.PublicID)
	require.NoError(t, err)

	require.NoError(t, in.Release(ctx, up.URL, "alice"))
	_, _, err = files.Download(ctx, up.PublicID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, in.Release(ctx, up.URL, "alice"), "already gone")
}

func TestMetaValueIgnoresCase(t *testing.T) {
	assert.Equal(t, "alice", metaValue(map[string]string{"Owner": "alice"}, MetaOwner))
	assert.Empty(t, metaValue(map[string]string{"Transformation": "q_auto"}, MetaOwner))
}

func TestIngestorRejectsBeforeStoring(t *testing.T) {
	files := &failingStore{}
	in := NewIngestor(files, Options{}, quiet())

	_, err := in.Upload(context.Background(), "u1", []byte("%PDF-1.4"), "doc.pdf", "application/pdf")
	require.Error(t, err)
	assert.Equal(t, 0, files.calls)
}

func TestIngestorStoreFailure(t *testing.T) {
	files := &failingStore{}
	in := NewIngestor(files, Options{}, quiet())

	_, err := in.Upload(context.Background(), "u1", pngHeader, "a.png", "image/png")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUploadFailed, apperr.KindOf(err))
	assert.Equal(t, 1, files.calls)
}

func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		if contentType != "" {
			hdr.Set("Content-Type", contentType)
		}
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("caption", "no file here"))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

type envelope struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Data    models.Upload `json:"data"`
}

func serve(t *testing.T, h *Handler, body io.Reader, contentType string) (int, envelope) {
	t.Helper()
	return serveAs(t, h, nil, body, contentType)
}

func serveAs(t *testing.T, h *Handler, user *models.User, body io.Reader, contentType string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	if user != nil {
		req = req.WithContext(auth.WithUser(req.Context(), user, nil))
	}
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestHandlerUpload(t *testing.T) {
	files := store.NewMemoryFileStore()
	h := NewHandler(NewIngestor(files, Options{PublicURL: "http://cdn"}, quiet()), 1<<20, quiet())

	body, ct := multipartBody(t, "media", "a.png", "image/png", pngHeader)
	code, env := serve(t, h, body, ct)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", env.Status)
	assert.Equal(t, models.MediaImage, env.Data.Type)
	assert.Equal(t, "http://cdn/"+env.Data.PublicID, env.Data.URL)

	body, ct = multipartBody(t, "file", "b.mp4", "video/mp4", []byte("video"))
	code, env = serve(t, h, body, ct)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.MediaVideo, env.Data.Type)
}

func TestHandlerRecordsUploader(t *testing.T) {
	files := store.NewMemoryFileStore()
	h := NewHandler(NewIngestor(files, Options{PublicURL: "http://cdn"}, quiet()), 1<<20, quiet())

	body, ct := multipartBody(t, "media", "a.png", "image/png", pngHeader)
	code, env := serveAs(t, h, &models.User{ID: "alice"}, body, ct)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", metadata(t, files, env.Data.PublicID)[MetaOwner])
}

func TestHandlerUploadErrors(t *testing.T) {
	files := &failingStore{}
	h := NewHandler(NewIngestor(files, Options{}, quiet()), 1<<20, quiet())

	body, ct := multipartBody(t, "", "", "", nil)
	code, env := serve(t, h, body, ct)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No file uploaded", env.Message)

	code, env = serve(t, h, strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No file uploaded", env.Message)

	body, ct = multipartBody(t, "media", "a.pdf", "application/pdf", []byte("%PDF"))
	code, env = serve(t, h, body, ct)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Only image and video files are allowed!", env.Message)

	big := bytes.Repeat([]byte{0}, (1<<20)+(1<<19))
	body, ct = multipartBody(t, "media", "big.png", "image/png", big)
	code, env = serve(t, h, body, ct)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "File too large, Maximum size 1 MB", env.Message)

	huge := bytes.Repeat([]byte{0}, 3<<20)
	body, ct = multipartBody(t, "media", "huge.png", "image/png", huge)
	code, _ = serve(t, h, body, ct)
	assert.Equal(t, http.StatusBadRequest, code)

	assert.Equal(t, 0, files.calls)

	body, ct = multipartBody(t, "media", "a.png", "image/png", pngHeader)
	code, env = serve(t, h, body, ct)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to upload file", env.Message)
}

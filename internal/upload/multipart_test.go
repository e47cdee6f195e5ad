package upload

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/require"
)

type decodedPart struct {
	name        string
	filename    string
	contentType string
	data        string
}

// decode reads every part back in order, keeping the raw filename.
func decode(t *testing.T, body []byte, contentType string) []decodedPart {
	t.Helper()
	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data", mediaType)

	r := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	var parts []decodedPart
	for {
		p, err := r.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		_, dp, err := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
		require.NoError(t, err)
		data, err := io.ReadAll(p)
		require.NoError(t, err)
		parts = append(parts, decodedPart{
			name:        dp["name"],
			filename:    dp["filename"],
			contentType: p.Header.Get("Content-Type"),
			data:        string(data),
		})
	}
	return parts
}

func TestContentTypeFor(t *testing.T) {
	require.Equal(t, "application/json", ContentTypeFor("dist/app.js.map"))
	require.Equal(t, "application/json", ContentTypeFor("meta.JSON"))
	require.Equal(t, "application/javascript", ContentTypeFor("dist/app.js"))
	require.Equal(t, "application/octet-stream", ContentTypeFor("main.jsbundle"))
	require.Equal(t, "application/octet-stream", ContentTypeFor("noext"))
}

func TestEncode_OrderAndRendering(t *testing.T) {
	req := Request{
		{Name: "apiKey", Value: Text("123")},
		{Name: "appVersion", Value: nil},
		{Name: "minifiedUrl", Value: Text("http://example.url")},
		{Name: "overwrite", Value: Bool(true)},
		{Name: "sourceMap", Value: File{Filepath: "dist/app.js.map", Data: []byte("{}")}},
		{Name: "minifiedFile", Value: File{Filepath: "dist/app.js", Data: []byte(`console.log("hello")`)}},
	}

	body, ct, err := Encode(req)
	require.NoError(t, err)

	parts := decode(t, body, ct)
	require.Len(t, parts, 5)

	require.Equal(t, decodedPart{name: "apiKey", data: "123"}, parts[0])
	require.Equal(t, decodedPart{name: "minifiedUrl", data: "http://example.url"}, parts[1])
	require.Equal(t, decodedPart{name: "overwrite", data: "true"}, parts[2])
	require.Equal(t, decodedPart{name: "sourceMap", filename: "dist/app.js.map", contentType: "application/json", data: "{}"}, parts[3])
	require.Equal(t, decodedPart{name: "minifiedFile", filename: "dist/app.js", contentType: "application/javascript", data: `console.log("hello")`}, parts[4])
}

func TestEncode_FalseBool(t *testing.T) {
	body, ct, err := Encode(Request{{Name: "overwrite", Value: Bool(false)}})
	require.NoError(t, err)

	parts := decode(t, body, ct)
	require.Len(t, parts, 1)
	require.Equal(t, "false", parts[0].data)
}

func TestEncode_QuotedFilename(t *testing.T) {
	body, ct, err := Encode(Request{{Name: "sourceMap", Value: File{Filepath: `odd "name".map`, Data: []byte("{}")}}})
	require.NoError(t, err)

	parts := decode(t, body, ct)
	require.Equal(t, `odd "name".map`, parts[0].filename)
}

func TestRequest_WithAndGet(t *testing.T) {
	base := Request{{Name: "apiKey", Value: Text("123")}}
	extended := base.With("appVersion", Text("1.2.3"))

	require.Len(t, base, 1)
	require.Len(t, extended, 2)

	v, ok := extended.Get("appVersion")
	require.True(t, ok)
	require.Equal(t, Text("1.2.3"), v)

	_, ok = extended.Get("overwrite")
	require.False(t, ok)
}

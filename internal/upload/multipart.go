package upload

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"strconv"
	"strings"
)

// Value is the payload of a form field: Text, Bool or File.
type Value interface {
	isValue()
}

type Text string

type Bool bool

// File is a file part. Filepath is the name shown to the server only; the
// content is already in Data.
type File struct {
	Filepath string
	Data     []byte
}

func (Text) isValue() {}
func (Bool) isValue() {}
func (File) isValue() {}

// Field is a named form value. A nil Value means the field is absent and is
// not sent at all.
type Field struct {
	Name  string
	Value Value
}

// Request is an ordered list of form fields. Parts are encoded in this order.
type Request []Field

// With returns a copy of r with the field appended.
func (r Request) With(name string, v Value) Request {
	out := make(Request, len(r), len(r)+1)
	copy(out, r)
	return append(out, Field{Name: name, Value: v})
}

// Get returns the value of the first field named name.
func (r Request) Get(name string) (Value, bool) {
	for _, f := range r {
		if f.Name == name && f.Value != nil {
			return f.Value, true
		}
	}
	return nil, false
}

var contentTypes = map[string]string{
	".map":  "application/json",
	".json": "application/json",
	".js":   "application/javascript",
}

const defaultContentType = "application/octet-stream"

// ContentTypeFor infers a part content type from the filename extension.
func ContentTypeFor(filename string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return defaultContentType
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Encode renders r as multipart/form-data and returns the body together with
// the Content-Type header value (boundary included).
func Encode(r Request) ([]byte, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	for _, f := range r {
		var err error
		switch v := f.Value.(type) {
		case nil:
			continue
		case Text:
			err = w.WriteField(f.Name, string(v))
		case Bool:
			err = w.WriteField(f.Name, strconv.FormatBool(bool(v)))
		case File:
			err = writeFile(w, f.Name, v)
		default:
			err = fmt.Errorf("unsupported value type %T", v)
		}
		if err != nil {
			return nil, "", fmt.Errorf("encode field %q: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body.Bytes(), w.FormDataContentType(), nil
}

func writeFile(w *multipart.Writer, name string, f File) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(name), quoteEscaper.Replace(f.Filepath)))
	h.Set("Content-Type", ContentTypeFor(f.Filepath))
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(f.Data)
	return err
}

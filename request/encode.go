// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	urlpkg "net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/net/http/httpguts"
)

const (
	contentTypeForm = "application/x-www-form-urlencoded"
	contentTypeJSON = "application/json"
)

// An Encoder turns Descriptors into Plans.
//
// The zero value is ready to use.
type Encoder struct {
	// Boundary returns the boundary token for a multipart body. If
	// nil, each multipart body gets "Boundary-" followed by a random
	// UUID.
	Boundary func() string
}

// DefaultEncoder is the Encoder used by Encode.
var DefaultEncoder = &Encoder{}

// Encode encodes a Descriptor using DefaultEncoder.
func Encode(d *Descriptor, base *urlpkg.URL) (*Plan, error) {
	return DefaultEncoder.Encode(d, base)
}

// Encode builds the wire request for d.
//
// The request URL is the descriptor's BaseURL, or base if the
// descriptor has none, with the descriptor's Path appended as a path
// component. The task determines the query string, the body and the
// Content-Type header. The descriptor's Header entries are applied
// last and may override the Content-Type.
//
// Every failure is reported as an *EncodingError.
func (enc *Encoder) Encode(d *Descriptor, base *urlpkg.URL) (*Plan, error) {
	if d.BaseURL != nil {
		base = d.BaseURL
	}
	if base == nil {
		return nil, &EncodingError{Op: "url", Err: errors.New("no base URL")}
	}

	method := string(d.Method)
	if method == "" {
		method = string(Get)
	}
	if !validMethod(method) {
		return nil, &EncodingError{Op: "method", Err: errors.Errorf("invalid method %q", method)}
	}

	p := &Plan{
		Method:  method,
		URL:     appendPath(base, d.Path),
		Header:  make(http.Header),
		Timeout: d.EffectiveTimeout(),
	}

	var err error
	switch t := d.Task.(type) {
	case nil, Plain:
	case Params:
		err = enc.params(p, &t)
	case Encodable:
		err = enc.encodable(p, &t)
	case Multipart:
		err = enc.multipart(p, &t)
	default:
		err = &EncodingError{Op: "task", Err: errors.Errorf("unsupported task type %T", t)}
	}
	if err != nil {
		return nil, err
	}

	for k, v := range d.Header {
		if !httpguts.ValidHeaderFieldName(k) {
			return nil, &EncodingError{Op: "header", Err: errors.Errorf("invalid header name %q", k)}
		}
		if !httpguts.ValidHeaderFieldValue(v) {
			return nil, &EncodingError{Op: "header", Err: errors.Errorf("invalid value for header %q", k)}
		}
	}
	p.SetHeaders(d.Header)

	return p, nil
}

func (enc *Encoder) params(p *Plan, t *Params) error {
	if err := appendQuery(p.URL, t.Query); err != nil {
		return err
	}
	if len(t.Body) == 0 {
		return nil
	}
	switch t.Encoding {
	case URLEncoded:
		s, err := encodePairs(t.Body)
		if err != nil {
			return &EncodingError{Op: "body", Err: err}
		}
		p.Header.Set("Content-Type", contentTypeForm)
		p.Body = []byte(s)
	case JSON:
		b, err := json.Marshal(t.Body)
		if err != nil {
			return &EncodingError{Op: "body", Err: errors.Wrap(err, "json")}
		}
		p.Header.Set("Content-Type", contentTypeJSON)
		p.Body = b
	default:
		return &EncodingError{Op: "body", Err: errors.Errorf("unknown parameter encoding %d", t.Encoding)}
	}
	return nil
}

func (enc *Encoder) encodable(p *Plan, t *Encodable) error {
	if err := appendQuery(p.URL, t.Query); err != nil {
		return err
	}
	b, err := json.Marshal(t.Body)
	if err != nil {
		return &EncodingError{Op: "body", Err: errors.Wrap(err, "json")}
	}
	p.Header.Set("Content-Type", contentTypeJSON)
	p.Body = b
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (enc *Encoder) multipart(p *Plan, t *Multipart) error {
	if err := appendQuery(p.URL, t.Query); err != nil {
		return err
	}

	boundary := enc.boundary()
	var buf bytes.Buffer
	for _, k := range sortedKeys(t.Params) {
		s, ok := scalar(t.Params[k])
		if !ok {
			continue
		}
		fmt.Fprintf(&buf, "--%s\r\nContent-Disposition: form-data; name=\"%s\"\r\n\r\n%s\r\n",
			boundary, quoteEscaper.Replace(k), s)
	}
	for _, f := range t.Files {
		fmt.Fprintf(&buf, "--%s\r\nContent-Disposition: form-data; name=\"%s\"; filename=\"%s\"\r\nContent-Type: %s\r\n\r\n",
			boundary, quoteEscaper.Replace(f.Name), quoteEscaper.Replace(f.FileName), f.MimeType)
		buf.Write(f.Data)
		buf.WriteString("\r\n")
	}
	buf.WriteString("--" + boundary + "--")

	p.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	p.Body = buf.Bytes()
	return nil
}

func (enc *Encoder) boundary() string {
	if enc.Boundary != nil {
		return enc.Boundary()
	}
	return "Boundary-" + strings.ToUpper(uuid.NewString())
}

func appendPath(base *urlpkg.URL, path string) *urlpkg.URL {
	u := *base
	u.Host = removeEmptyPort(u.Host)
	if path != "" {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
		u.RawPath = ""
	}
	return &u
}

func appendQuery(u *urlpkg.URL, query map[string]interface{}) error {
	q, err := encodePairs(query)
	if err != nil {
		return &EncodingError{Op: "query", Err: err}
	}
	if q == "" {
		return nil
	}
	if u.RawQuery != "" {
		u.RawQuery += "&" + q
	} else {
		u.RawQuery = q
	}
	return nil
}

// encodePairs renders params as key=value pairs joined by "&", in
// sorted key order. Array values are expanded as repeated "key[]"
// pairs in element order. Nil values are skipped.
func encodePairs(params map[string]interface{}) (string, error) {
	var pairs []string
	for _, k := range sortedKeys(params) {
		v := params[k]
		if isNil(v) {
			continue
		}
		values, array, err := flatten(v)
		if err != nil {
			return "", errors.Wrapf(err, "parameter %q", k)
		}
		name := urlpkg.QueryEscape(k)
		if array {
			name += "[]"
		}
		for _, s := range values {
			pairs = append(pairs, name+"="+urlpkg.QueryEscape(s))
		}
	}
	return strings.Join(pairs, "&"), nil
}

func flatten(v interface{}) (values []string, array bool, err error) {
	if s, ok := scalar(v); ok {
		return []string{s}, false, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false, errors.Errorf("unsupported value type %T", v)
	}
	values = make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		e := rv.Index(i).Interface()
		if isNil(e) {
			continue
		}
		s, ok := scalar(e)
		if !ok {
			return nil, false, errors.Errorf("unsupported array element type %T", e)
		}
		values = append(values, s)
	}
	return values, true, nil
}

// isNil reports whether v is nil, or a typed nil of a kind that can
// be nil.
func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// scalar renders a non-array parameter value. Nil values are not
// scalars. Non-nil pointers are followed to the value they point at.
func scalar(v interface{}) (string, bool) {
	if isNil(v) {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	case json.Number:
		return string(x), true
	case fmt.Stringer:
		return x.String(), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		return scalar(rv.Elem().Interface())
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	}
	return "", false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

// A Task describes the body and URL parameters of a request. The set
// of tasks is closed: Plain, Params, Encodable and Multipart.
type Task interface {
	task()
}

// A ParamEncoding selects how Params body parameters are encoded.
type ParamEncoding int

const (
	// URLEncoded encodes body parameters as
	// application/x-www-form-urlencoded.
	URLEncoded ParamEncoding = iota
	// JSON encodes body parameters as an application/json object.
	JSON
)

// Plain is a task with no body and no URL parameters.
type Plain struct{}

// Params is a task whose body is built from a parameter map, combined
// with URL parameters.
//
// Parameter values may be scalars (strings, booleans, numbers, and
// fmt.Stringer values) or slices of scalars. For URL parameters and
// url-encoded bodies, slice values are expanded as repeated "key[]"
// entries. JSON bodies may contain any value encoding/json accepts.
type Params struct {
	Body     map[string]interface{}
	Encoding ParamEncoding
	Query    map[string]interface{}
}

// Encodable is a task whose body is the JSON encoding of an arbitrary
// value, combined with URL parameters.
type Encodable struct {
	Body  interface{}
	Query map[string]interface{}
}

// Multipart is a multipart/form-data upload task combined with URL
// parameters. Every non-nil scalar in Params becomes a form field part
// and every element of Files becomes a file part.
type Multipart struct {
	Params map[string]interface{}
	Files  []MultipartData
	Query  map[string]interface{}
}

// MultipartData is a file part of a Multipart task.
type MultipartData struct {
	Name     string
	FileName string
	MimeType string
	Data     []byte
}

func (Plain) task()     {}
func (Params) task()    {}
func (Encodable) task() {}
func (Multipart) task() {}

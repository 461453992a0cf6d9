// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gogama/netop/auth"
	"github.com/gogama/netop/request"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type doOptions struct {
	headers  []string
	query    []string
	json     []string
	form     []string
	files    []string
	noAuth   bool
	timeout  time.Duration
	progress bool
}

func newDoCmd(a *app) *cobra.Command {
	o := &doOptions{}
	cmd := &cobra.Command{
		Use:   "do METHOD PATH",
		Short: "Execute one request",
		Long: `Execute one request against the configured base URL.

Body parameters given with --json are sent as a JSON object, those
given with --form as a url-encoded form. Any --file turns the request
into a multipart upload carrying the --form parameters as fields.`,
		Example: `  netop do GET /users/me
  netop do POST /users --json email=a@b.c --no-auth
  netop do POST /photos --file photo=cat.jpg --form album=pets --progress`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := o.descriptor(args[0], args[1])
			if err != nil {
				return err
			}
			return a.run(cmd, d, o.progress)
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&o.headers, "header", "H", nil, "request header as name=value")
	f.StringArrayVarP(&o.query, "query", "q", nil, "URL parameter as key=value (repeat a key for an array)")
	f.StringArrayVar(&o.json, "json", nil, "JSON body parameter as key=value")
	f.StringArrayVar(&o.form, "form", nil, "form body parameter as key=value")
	f.StringArrayVar(&o.files, "file", nil, "multipart file as name=path")
	f.BoolVar(&o.noAuth, "no-auth", false, "send without the configured token")
	f.DurationVar(&o.timeout, "timeout", 0, "per-attempt timeout (default from configuration)")
	f.BoolVar(&o.progress, "progress", false, "report upload progress on stderr")
	return cmd
}

func (o *doOptions) descriptor(method, path string) (request.Descriptor, error) {
	d := request.Descriptor{
		ID:      request.NewID(),
		Path:    path,
		Method:  request.Method(strings.ToUpper(method)),
		Timeout: o.timeout,
	}
	if o.noAuth {
		d.Auth = auth.None
	}

	var err error
	if d.Header, err = parseHeaders(o.headers); err != nil {
		return d, err
	}
	query, err := parseParams(o.query)
	if err != nil {
		return d, err
	}
	jsonBody, err := parseParams(o.json)
	if err != nil {
		return d, err
	}
	formBody, err := parseParams(o.form)
	if err != nil {
		return d, err
	}

	switch {
	case len(o.files) > 0:
		if len(jsonBody) > 0 {
			return d, errors.New("--json cannot be combined with --file")
		}
		files, err := readFiles(o.files)
		if err != nil {
			return d, err
		}
		d.Task = request.Multipart{Params: formBody, Files: files, Query: query}
	case len(jsonBody) > 0 && len(formBody) > 0:
		return d, errors.New("--json cannot be combined with --form")
	case len(jsonBody) > 0:
		d.Task = request.Params{Body: jsonBody, Encoding: request.JSON, Query: query}
	case len(formBody) > 0:
		d.Task = request.Params{Body: formBody, Encoding: request.URLEncoded, Query: query}
	case len(query) > 0:
		d.Task = request.Params{Query: query}
	default:
		d.Task = request.Plain{}
	}
	return d, nil
}

func splitPair(s string) (string, string, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return "", "", errors.Errorf("expected key=value, got %q", s)
	}
	return k, v, nil
}

func parseHeaders(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(pairs))
	for _, s := range pairs {
		k, v, err := splitPair(s)
		if err != nil {
			return nil, errors.Wrap(err, "bad header")
		}
		m[k] = v
	}
	return m, nil
}

// parseParams turns key=value pairs into a parameter map. A key given
// more than once becomes an array parameter.
func parseParams(pairs []string) (map[string]interface{}, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]interface{}, len(pairs))
	for _, s := range pairs {
		k, v, err := splitPair(s)
		if err != nil {
			return nil, errors.Wrap(err, "bad parameter")
		}
		switch prev := m[k].(type) {
		case nil:
			m[k] = v
		case string:
			m[k] = []string{prev, v}
		case []string:
			m[k] = append(prev, v)
		}
	}
	return m, nil
}

func readFiles(pairs []string) ([]request.MultipartData, error) {
	files := make([]request.MultipartData, 0, len(pairs))
	for _, s := range pairs {
		name, path, err := splitPair(s)
		if err != nil {
			return nil, errors.Wrap(err, "bad file")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read file for %q", name)
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		files = append(files, request.MultipartData{
			Name:     name,
			FileName: filepath.Base(path),
			MimeType: mimeType,
			Data:     data,
		})
	}
	return files, nil
}

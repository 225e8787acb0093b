package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/turtacn/aegis/pkg/errors"
)

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 4 << 20

// RequestBuilder creates a fresh request for every attempt.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// HTTPOperation adapts an HTTP round trip to an Operation.
func HTTPOperation(client *http.Client, name string, build RequestBuilder) Operation {
	if client == nil {
		client = http.DefaultClient
	}
	return Operation{
		Name: name,
		Do: func(ctx context.Context) (*Result, error) {
			req, err := build(ctx)
			if err != nil {
				return nil, errors.ErrValidation(name+": cannot build request", map[string]interface{}{"cause": err.Error()})
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			if err != nil {
				return nil, err
			}
			return &Result{StatusCode: resp.StatusCode, Body: body, Header: resp.Header}, nil
		},
	}
}

// JSONRequest returns a RequestBuilder for method and url with payload encoded as the body.
// payload may be nil.
func JSONRequest(method, url string, payload interface{}, header http.Header) RequestBuilder {
	return func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			raw, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}
			body = bytes.NewReader(raw)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, err
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}
}

// InvokeJSON invokes op and decodes the body into out. A body that does not
// decode is a malformed response and is not retried.
func (g *Gateway) InvokeJSON(ctx context.Context, op Operation, out interface{}) error {
	res, err := g.Invoke(ctx, op)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(res.Body)) == 0 {
		return errors.ErrMalformedResponse(op.Name, io.ErrUnexpectedEOF)
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return errors.ErrMalformedResponse(op.Name, err)
	}
	return nil
}

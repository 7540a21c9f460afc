package http

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/http.go -package=mocks . IClient
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam describes one outgoing request.
//
// Body may be nil, an io.Reader, a []byte, a string or any value that is
// encoded as JSON. Response may be nil, a *[]byte receiving the raw body,
// or a pointer the JSON body is decoded into.
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       interface{}
	Response   interface{}

	Timeout time.Duration
}

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// maxRequestBodySize bounds the request body, which may carry a base64 encoded image.
const maxRequestBodySize = 20 << 20

// RouterHandlerFn is the function signature for adding handlers to the HTTProuter.
type RouterHandlerFn = func(r *Request) (interface{}, error)

// Request represents an HTTP request to the API.
// It contains the request Body data, the URL path and the HTTP context.
// The context can be used for obtaining URL parameters and sending responses.
type Request struct {
	Data      []byte
	Path      []string
	Context   *HTTPContext
	UserID    string
	SessionID string
}

// HTTPContext is the Context for an HTTP request.
type HTTPContext struct {
	Writer  http.ResponseWriter
	Request *http.Request
}

// URLParam gets a URL parameter. For path parameters (specified in the path pattern as {key}),
// it uses chi.URLParam. For query parameters (?key=value and ?key[]=value), it uses URL.Query().
// If the key is not found, it returns nil. Else it returns a slice of values with at least one element.
// If the key is repeated in the query string, it will return all values.
func (h *HTTPContext) URLParam(key string) []string {
	if param := chi.URLParam(h.Request, key); param != "" {
		return []string{param}
	}
	keys := h.Request.URL.Query()
	if k, ok := keys[key]; ok {
		return k
	}
	if k, ok := keys[key+"[]"]; ok {
		return k
	}
	return nil
}

// Param returns the first value of a URL parameter, or an empty string.
func (h *HTTPContext) Param(key string) string {
	if v := h.URLParam(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

// routerHandler is a wrapper around the HTTP handler function to handle the request and response.
// It reads the request body, calls the handler function and sends the response.
// The errors are automatically logged and returned to the client.
func (a *API) routerHandler(handlerFunc RouterHandlerFn) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		hc := &HTTPContext{Request: req, Writer: w}
		var body []byte
		if req.Body != nil {
			var err error
			body, err = io.ReadAll(http.MaxBytesReader(w, req.Body, maxRequestBodySize))
			if err != nil {
				log.Warn().Err(err).Msg("failed to read request body")
				writeError(w, ErrInvalidRequestBodyData.WithErr(err))
				return
			}
			if err := req.Body.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close request body")
				writeError(w, ErrInternalServerError.WithErr(err))
				return
			}
			if len(body) > 0 {
				log.Debug().Msgf("request: %s", func() string {
					if len(body) > 1024 {
						return fmt.Sprintf("%s...", body[:1024])
					}
					return string(body)
				}())
			}
		}
		request := &Request{
			Data:      body,
			Context:   hc,
			Path:      strings.Split(req.URL.Path, "/")[1:],
			UserID:    req.Header.Get(userIDHeader),
			SessionID: req.Header.Get(sessionIDHeader),
		}

		handlerResp, err := handlerFunc(request)
		if err != nil {
			httpErr := toHTTPError(err)
			log.Warn().Err(err).Int("code", httpErr.Code).Str("path", req.URL.Path).Msg("failed request")
			writeError(w, httpErr)
			return
		}
		if binaryResp, ok := handlerResp.(*BinaryResponse); ok {
			w.Header().Set("Content-Type", binaryResp.ContentType)
			if binaryResp.CacheControl != "" {
				w.Header().Set("Cache-Control", binaryResp.CacheControl)
			}
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write(binaryResp.Data); err != nil {
				log.Error().Err(err).Msg("failed to write binary response")
			}
			return
		}
		writeJSON(w, http.StatusOK, &Response{
			Header: ResponseHeader{Success: true},
			Data:   handlerResp,
		})
	}
}

// writeError sends the error envelope.
func writeError(w http.ResponseWriter, httpErr *HTTPError) {
	writeJSON(w, httpErr.Code, &Response{
		Header: ResponseHeader{
			Success:   false,
			Message:   httpErr.Error(),
			ErrorCode: httpErr.Code,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal response")
		code = http.StatusInternalServerError
		data = []byte(`{"header":{"success":false,"message":"internal server error","errorCode":500}}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

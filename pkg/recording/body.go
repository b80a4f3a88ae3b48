package recording

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"
)

type requestJSON struct {
	Method       string       `json:"method"`
	URI          string       `json:"uri"`
	Headers      http.Header  `json:"headers"`
	Body         *string      `json:"body"`
	BodyEncoding DataEncoding `json:"bodyEncoding,omitempty"`
}

type responseJSON struct {
	StatusCode   int          `json:"statusCode"`
	Headers      http.Header  `json:"headers"`
	Body         *string      `json:"body"`
	BodyEncoding DataEncoding `json:"bodyEncoding,omitempty"`
}

// MarshalJSON writes textual bodies as strings and everything else as base64.
func (r Request) MarshalJSON() ([]byte, error) {
	body, enc := encodeBody(r.Body, r.Headers)
	return json.Marshal(requestJSON{
		Method:       r.Method,
		URI:          r.URI,
		Headers:      nonNilHeader(r.Headers),
		Body:         body,
		BodyEncoding: enc,
	})
}

// UnmarshalJSON reverses MarshalJSON.
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw requestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	body, err := decodeBody(raw.Body, raw.BodyEncoding)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", raw.Method, raw.URI, err)
	}
	*r = Request{
		Method:  raw.Method,
		URI:     raw.URI,
		Headers: nonNilHeader(raw.Headers),
		Body:    body,
	}
	return nil
}

// MarshalJSON writes textual bodies as strings and everything else as base64.
func (r Response) MarshalJSON() ([]byte, error) {
	body, enc := encodeBody(r.Body, r.Headers)
	return json.Marshal(responseJSON{
		StatusCode:   r.StatusCode,
		Headers:      nonNilHeader(r.Headers),
		Body:         body,
		BodyEncoding: enc,
	})
}

// UnmarshalJSON reverses MarshalJSON.
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw responseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	body, err := decodeBody(raw.Body, raw.BodyEncoding)
	if err != nil {
		return fmt.Errorf("response %d: %w", raw.StatusCode, err)
	}
	*r = Response{
		StatusCode: raw.StatusCode,
		Headers:    nonNilHeader(raw.Headers),
		Body:       body,
	}
	return nil
}

func encodeBody(body []byte, headers http.Header) (*string, DataEncoding) {
	if body == nil {
		return nil, ""
	}
	if IsTextContent(headers.Get("Content-Type")) && utf8.Valid(body) {
		s := string(body)
		return &s, DataEncodingUTF8
	}
	s := base64.StdEncoding.EncodeToString(body)
	return &s, DataEncodingBase64
}

func decodeBody(body *string, enc DataEncoding) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	switch enc {
	case DataEncodingUTF8, "":
		return append([]byte{}, *body...), nil
	case DataEncodingBase64:
		b, err := base64.StdEncoding.DecodeString(*body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidEncoding, enc)
	}
}

// IsTextContent reports whether a body with the given Content-Type can be
// stored as text. A missing content type is treated as text; the UTF-8
// check in the encoder falls back to base64 for binary payloads.
func IsTextContent(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case strings.HasSuffix(mediaType, "+json"), strings.HasSuffix(mediaType, "+xml"):
		return true
	}
	switch mediaType {
	case "application/json", "application/xml", "application/x-www-form-urlencoded",
		"application/javascript", "application/graphql":
		return true
	}
	return false
}

// IsJSONContent reports whether the content type describes a JSON document.
func IsJSONContent(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// IsXMLContent reports whether the content type describes an XML document.
func IsXMLContent(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/xml" || mediaType == "text/xml" || strings.HasSuffix(mediaType, "+xml")
}

func nonNilHeader(h http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h
}

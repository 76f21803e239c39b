package model

import (
	"fmt"
	"strings"
)

// ShortLink binds a short code to its target URL
type ShortLink struct {
	Code      string `json:"code"`       // base62 short code, primary key
	TargetURL string `json:"target_url"` // destination, validated before creation
	CreatedAt int64  `json:"created_at"` // seconds since epoch
}

// Tick is one issuance of the allocation counter
type Tick struct {
	Bucket   int64 // seconds-resolution time bucket
	Sequence int64 // issuance count within Bucket, starting at 0
}

// CreateShortLinkRequest is the API request body
type CreateShortLinkRequest struct {
	URL string `json:"url"` // original long URL
}

// CreateShortLinkResponse is the API response
type CreateShortLinkResponse struct {
	URLID    string `json:"urlid"`     // short code
	ShortURL string `json:"short_url"` // full resolvable URL
	URL      string `json:"url"`       // original long URL
}

// ResolveShortLinkResponse carries the target of a resolved code
type ResolveShortLinkResponse struct {
	TargetURL string `json:"target_url"`
}

// Format selects how a response body is rendered
type Format int

const (
	FormatJSON Format = iota
	FormatCSV
)

// ParseFormat maps the "format" request parameter to a Format.
// An empty value selects JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	}
	return FormatJSON, fmt.Errorf("unknown format %q", s)
}

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	default:
		return "json"
	}
}

// ContentType returns the MIME type for the format
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

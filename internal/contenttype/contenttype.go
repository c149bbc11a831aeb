// Package contenttype parses and filters MIME content types for the
// response dispatch decision (HTML/CSS rewrite vs. opaque pass-through).
package contenttype

import (
	"mime"
	"strings"
)

// ContentType is a parsed MIME type: type/subtype+suffix; params.
type ContentType struct {
	TopLevelType string
	SubType      string
	Suffix       string
	Parameters   map[string]string
}

func (contentType ContentType) String() string {
	var mimetype string
	if contentType.Suffix == "" {
		if contentType.SubType == "" {
			mimetype = contentType.TopLevelType
		} else {
			mimetype = contentType.TopLevelType + "/" + contentType.SubType
		}
	} else {
		mimetype = contentType.TopLevelType + "/" + contentType.SubType + "+" + contentType.Suffix
	}
	return mime.FormatMediaType(mimetype, contentType.Parameters)
}

// FilterParameters drops every parameter key not present (true) in keep.
func (contentType *ContentType) FilterParameters(keep map[string]bool) {
	for k := range contentType.Parameters {
		if !keep[k] {
			delete(contentType.Parameters, k)
		}
	}
}

// ParseContentType parses a raw Content-Type header value.
func ParseContentType(header string) (ContentType, error) {
	mimetype, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ContentType{Parameters: params}, err
	}

	split := strings.SplitN(strings.ToLower(mimetype), "/", 2)
	if len(split) <= 1 {
		return ContentType{TopLevelType: split[0], Parameters: params}, nil
	}

	subSplit := strings.SplitN(split[1], "+", 2)
	if len(subSplit) == 1 {
		return ContentType{TopLevelType: split[0], SubType: subSplit[0], Parameters: params}, nil
	}

	return ContentType{TopLevelType: split[0], SubType: subSplit[0], Suffix: subSplit[1], Parameters: params}, nil
}

// Filter reports whether a ContentType matches some predicate.
type Filter func(contentType ContentType) bool

// NewFilterEquals matches an exact (or "*"-wildcarded) type/subtype/suffix triple.
func NewFilterEquals(topLevelType, subType, suffix string) Filter {
	return func(contentType ContentType) bool {
		return (topLevelType == "*" || topLevelType == contentType.TopLevelType) &&
			(subType == "*" || subType == contentType.SubType) &&
			(suffix == "*" || suffix == contentType.Suffix)
	}
}

// NewFilterOr matches if any of filters matches.
func NewFilterOr(filters []Filter) Filter {
	return func(contentType ContentType) bool {
		for _, f := range filters {
			if f(contentType) {
				return true
			}
		}
		return false
	}
}

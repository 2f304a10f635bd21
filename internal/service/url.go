package service

import "strings"

// BuildTargetURL joins an upstream base URL, the path segments captured by a
// catch-all route and the inbound query string. Empty segments append no
// path; otherwise the segments are joined with "/" behind a single "/".
// query is appended verbatim and is either empty or starts with '?'.
func BuildTargetURL(base string, segments []string, query string) string {
	return base + pathSuffix(segments) + query
}

// QueryString turns a URL's RawQuery into the form BuildTargetURL expects.
func QueryString(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	return "?" + rawQuery
}

// SplitSegments splits a catch-all route parameter into path segments,
// dropping empty segments produced by leading, trailing or doubled slashes.
func SplitSegments(param string) []string {
	if param == "" {
		return nil
	}
	parts := strings.Split(param, "/")
	segments := parts[:0]
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

func pathSuffix(segments []string) string {
	if len(segments) == 0 {
		return ""
	}
	return "/" + strings.Join(segments, "/")
}

package sonar

import "github.com/tidwall/gjson"

// normalize.go confines the remote API's duck-typed response shapes to this
// package.  Depending on the endpoint (and sometimes the tenant), a listing
// response is a bare JSON array, or an object wrapping the array under one of
// several keys, with or without pagination metadata.  Everything outside this
// package sees a flat []gjson.Result.

// listKeys are the wrapper keys under which listing endpoints have been
// observed to nest their record arrays.
var listKeys = []string{"assets", "members", "users", "licenses", "software_licenses", "data"}

// totalPageKeys are the keys under which a response may report its total page
// count.  They are treated as equivalent; the first one present wins.
var totalPageKeys = []string{"total_pages", "pages", "total_pages_count"}

// Records extracts the record array from a listing response body, whatever
// its shape.  Returns nil when no array can be found.
func Records(body gjson.Result) []gjson.Result {
	if body.IsArray() {
		return body.Array()
	}
	for _, key := range listKeys {
		if v := body.Get(key); v.IsArray() {
			return v.Array()
		}
	}
	return nil
}

// TotalPages returns the total page count reported by the response, or 0 when
// the response carries no recognisable pagination metadata.
func TotalPages(body gjson.Result) int {
	for _, key := range totalPageKeys {
		if v := body.Get(key); v.Exists() {
			return int(v.Int())
		}
	}
	return 0
}

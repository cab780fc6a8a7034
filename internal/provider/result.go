package provider

// RawResponse is the decoded body returned by the lookup service for one
// token query. Payload is an untyped tree of map[string]any, []any and
// scalars whose shape is not fixed; it is consumed once by a normalizer.
type RawResponse struct {
	Token      string
	StatusCode int
	Payload    any
}

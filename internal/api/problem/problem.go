package problem

import (
	"encoding/json"
	"maps"
	"net/http"
)

const contentType = "application/problem+json"
const baseTypeURL = "https://errors.trade-escrow.dev/"

// Details represents RFC 7807 Problem Details.
type Details struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Instance  string `json:"instance"`
	RequestID string `json:"request_id"`

	// Extensions are extra members serialized next to the standard ones.
	Extensions map[string]any `json:"-"`
}

// MarshalJSON flattens Extensions into the top-level object. Standard members win on collision.
func (d Details) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 6+len(d.Extensions))
	maps.Copy(out, d.Extensions)
	out["type"] = d.Type
	out["title"] = d.Title
	out["status"] = d.Status
	out["detail"] = d.Detail
	out["instance"] = d.Instance
	out["request_id"] = d.RequestID
	return json.Marshal(out)
}

func Type(slug string) string {
	return baseTypeURL + slug
}

// Write sends RFC 7807-compliant errors.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	WriteExtended(w, r, status, problemType, title, detail, nil)
}

// WriteExtended is Write with extension members.
func WriteExtended(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string, ext map[string]any) {
	if title == "" {
		title = http.StatusText(status)
	}
	if problemType == "" {
		problemType = "about:blank"
	}
	instance := ""
	requestID := ""
	if r != nil {
		instance = r.URL.Path
		requestID = r.Header.Get("X-Trace-ID")
	}
	if requestID == "" {
		requestID = w.Header().Get("X-Trace-ID")
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Details{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		RequestID:  requestID,
		Extensions: ext,
	})
}

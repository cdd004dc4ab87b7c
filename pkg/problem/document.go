package problem

import (
	"encoding/json"
	"net/http"
)

const ContentType = "application/problem+json"

// Document is an RFC 7807 problem-details body.
type Document struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Detail   string                 `json:"detail"`
	Status   int                    `json:"status"`
	Instance string                 `json:"instance"`
	Extra    map[string]interface{} `json:"extra_info,omitempty"`
}

func FromError(err error, instance string) Document {
	pe, ok := As(err)
	if !ok {
		pe = Wrap(KindInternal, err, "")
	}
	doc := Document{
		Type:     "about:blank",
		Title:    pe.Title(),
		Detail:   pe.Detail,
		Status:   pe.Status(),
		Instance: instance,
	}
	if doc.Detail == "" && pe.cause != nil {
		doc.Detail = pe.cause.Error()
	}
	if pe.ResourceType != "" {
		doc.Extra = map[string]interface{}{
			"resource_type":       pe.ResourceType,
			"resource_identifier": pe.ResourceID,
		}
	}
	return doc
}

func Write(w http.ResponseWriter, err error, instance string) {
	doc := FromError(err, instance)
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(doc.Status)
	_ = json.NewEncoder(w).Encode(doc)
}

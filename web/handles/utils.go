package handles

import (
	"encoding/json"
	"net/http"
)

// ReasonHeader carries the reason of a 204 answer, which has no body.
const ReasonHeader = "X-Lifemonitor-Reason"

type Res struct {
	Code int    `json:"code"`
	Msg  string `json:"message"`
}

func writeRes(w http.ResponseWriter, code int, msg string) {
	if code == http.StatusNoContent {
		w.Header().Set(ReasonHeader, msg)
		w.WriteHeader(code)
		return
	}
	writeJSON(w, code, &Res{Code: code, Msg: msg})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, code int, contentType string, body []byte) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(code)
	if code != http.StatusNoContent && len(body) > 0 {
		_, _ = w.Write(body)
	}
}

package httpx

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
)

// artifactHandler serves report-<id>.json files from dir. Any other name is a 404.
func artifactHandler(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("file")
		if !validArtifactName(name) {
			WriteError(w, ErrorParams{
				Code:    http.StatusNotFound,
				ErrCode: "not_found",
				Err:     errors.New("artifact not found"),
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, filepath.Join(dir, name))
	}
}

func validArtifactName(name string) bool {
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return false
	}
	return strings.HasPrefix(name, "report-") && strings.HasSuffix(name, ".json") && len(name) > len("report-.json")
}

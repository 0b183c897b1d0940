package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"conveyor/internal/common/errors"
	"conveyor/internal/common/logging"
)

// UploadArtifact stores a file under repository/version/filename. Uploads
// to an existing coordinate are rejected with a conflict unless the
// overwrite query parameter is set.
func (h *Handlers) UploadArtifact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	data, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, errors.ValidationError("failed to read request body"))
		return
	}

	overwrite, _ := strconv.ParseBool(r.URL.Query().Get("overwrite"))
	if r.Header.Get("X-Overwrite") == "true" {
		overwrite = true
	}

	err = h.artifacts.Upload(r.Context(), vars["repository"], vars["version"], vars["filename"], data, overwrite)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info("artifact stored",
		logging.String("repository", vars["repository"]),
		logging.String("version", vars["version"]),
		logging.String("filename", vars["filename"]),
		logging.Int("bytes", len(data)))
	w.WriteHeader(http.StatusCreated)
}

// DownloadArtifact streams a stored artifact back to the caller.
func (h *Handlers) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	data, err := h.artifacts.Download(r.Context(), vars["repository"], vars["version"], vars["filename"])
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

package httpapi

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hasangilak/vision-pdf-to-epub/internal/job"
	"github.com/hasangilak/vision-pdf-to-epub/internal/render"
)

// uploadMaxMemory bounds the in-memory portion of the multipart parse; parts
// beyond this limit are spilled to temporary files on disk.
const uploadMaxMemory = 500 << 20 // 500MB

// UploadResponse is returned by POST /api/jobs.
type UploadResponse struct {
	JobID      string `json:"job_id"`
	TotalPages int    `json:"total_pages"`
}

// handleUpload implements POST /api/jobs: multipart `file` (PDF),
// `language` ∈ {fa,ar,en}, optional `ocr_prompt`.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(uploadMaxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	fh, err := pickFormFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "uploaded file must be a PDF")
		return
	}

	language := r.FormValue("language")
	if !s.allowedLanguages[language] {
		writeError(w, http.StatusBadRequest, "language must be one of fa, ar, en")
		return
	}
	ocrPrompt := r.FormValue("ocr_prompt")

	src, err := fh.Open()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("open uploaded file: %v", err))
		return
	}
	defer src.Close()

	id, err := job.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("generate job id: %v", err))
		return
	}

	// total_pages is validated before the job is created so a malformed
	// PDF never lands in the registry.
	tmp, err := os.CreateTemp("", "vppe-upload-*.pdf")
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("stage upload: %v", err))
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("stage upload: %v", err))
		return
	}
	tmp.Close()

	totalPages, err := render.PageCount(tmpPath)
	if err != nil || totalPages <= 0 {
		writeError(w, http.StatusBadRequest, "uploaded file is not a readable PDF")
		return
	}

	j := job.New(id, fh.Filename, language, ocrPrompt, totalPages)
	if err := s.registry.Create(j); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("create job: %v", err))
		return
	}

	destPath := filepath.Join(s.registry.DataDir(id), "input.pdf")
	if err := copyFile(tmpPath, destPath); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("persist upload: %v", err))
		return
	}

	bus := s.newBus(id)
	go s.orchestrator.Run(context.Background(), id, bus, nil)

	writeJSON(w, http.StatusAccepted, UploadResponse{JobID: id, TotalPages: totalPages})
}

func pickFormFile(r *http.Request) (*multipart.FileHeader, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File["file"]) == 0 {
		return nil, fmt.Errorf("file is required")
	}
	return r.MultipartForm.File["file"][0], nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

package http

import (
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"

	"r2r/internal/core"
	"r2r/internal/gateway"
	"r2r/internal/services"
)

const (
	maxImages       = 10
	maxImageBytes   = 10 << 20
	maxUploadMemory = 32 << 20
)

type ingestImage struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64, optionally as a data: URL
}

type ingestRequest struct {
	SourceType string        `json:"sourceType"`
	RawText    string        `json:"rawText"`
	Images     []ingestImage `json:"images"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req services.IngestRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		req, err = parseMultipartIngest(w, r)
	} else {
		req, err = parseJSONIngest(w, r)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.UserID = userID

	res, err := s.deps.Ingest.Submit(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Job != nil {
		atomic.AddInt64(&s.metrics.jobsQueued, 1)
		writeJSON(w, http.StatusAccepted, res)
		return
	}
	atomic.AddInt64(&s.metrics.transactionsIngested, int64(len(res.Transactions)))
	if res.Transactions == nil {
		res.Transactions = []core.Transaction{}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transactions": res.Transactions})
}

func parseJSONIngest(w http.ResponseWriter, r *http.Request) (services.IngestRequest, error) {
	var body ingestRequest
	if err := decodeJSONLimit(w, r, &body, maxUploadMemory); err != nil {
		return services.IngestRequest{}, err
	}
	st, err := core.ParseSourceType(body.SourceType)
	if err != nil {
		return services.IngestRequest{}, err
	}
	if len(body.Images) > maxImages {
		return services.IngestRequest{}, badRequest("at most %d images per request", maxImages)
	}

	req := services.IngestRequest{SourceType: st, RawText: body.RawText}
	for i, img := range body.Images {
		decoded, err := decodeImage(img)
		if err != nil {
			return services.IngestRequest{}, badRequest("image %d: %v", i, err)
		}
		req.Images = append(req.Images, decoded)
	}
	return req, nil
}

func decodeImage(img ingestImage) (gateway.Image, error) {
	mimeType, data := img.MIMEType, img.Data
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return gateway.Image{}, errors.New("unsupported data URL")
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(header, ";base64")
		}
		data = payload
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return gateway.Image{}, errors.New("data is not valid base64")
	}
	return newImage(mimeType, raw)
}

func newImage(mimeType string, raw []byte) (gateway.Image, error) {
	if len(raw) == 0 {
		return gateway.Image{}, errors.New("image is empty")
	}
	if len(raw) > maxImageBytes {
		return gateway.Image{}, errors.New("image too large")
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(raw)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return gateway.Image{}, errors.New("only image uploads are accepted")
	}
	return gateway.Image{MIMEType: mimeType, Data: raw}, nil
}

// parseMultipartIngest reads fields sourceType and rawText plus any number
// of files under "images".
func parseMultipartIngest(w http.ResponseWriter, r *http.Request) (services.IngestRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadMemory)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return services.IngestRequest{}, badRequest("invalid multipart form: %v", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	st, err := core.ParseSourceType(r.FormValue("sourceType"))
	if err != nil {
		return services.IngestRequest{}, err
	}
	req := services.IngestRequest{SourceType: st, RawText: r.FormValue("rawText")}

	files := r.MultipartForm.File["images"]
	if len(files) > maxImages {
		return services.IngestRequest{}, badRequest("at most %d images per request", maxImages)
	}
	for _, fh := range files {
		img, err := readUpload(fh)
		if err != nil {
			return services.IngestRequest{}, badRequest("%s: %v", fh.Filename, err)
		}
		req.Images = append(req.Images, img)
	}
	return req, nil
}

func readUpload(fh *multipart.FileHeader) (gateway.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return gateway.Image{}, err
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return gateway.Image{}, err
	}
	return newImage(fh.Header.Get("Content-Type"), raw)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	job, err := s.deps.Ingest.Job(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

package api

import (
	"crypto/sha256"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MetaHackathon/DataEngineX/internal/models"
	"github.com/MetaHackathon/DataEngineX/internal/util"
)

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	papers, err := s.paperRepo.ListByUser(r.Context(), s.user(r).ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"papers": papers, "total": len(papers)})
}

func (s *Server) handleLibraryScoped(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/library/")
	if len(parts) == 0 {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}

	switch {
	case len(parts) == 1 && parts[0] == "upload":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleUpload(w, r)
	case len(parts) == 2 && parts[0] == "files":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleServeFile(w, r, parts[1])
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleDeletePaper(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "download-pdf":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleDownloadPDF(w, r, parts[0])
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

// handleUpload stores one PDF under the user's library directory keyed by
// content hash, records the paper, and starts ingestion.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	u := s.user(r)
	if err := r.ParseMultipartForm(128 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	fh := firstUploadedFile(r.MultipartForm)
	if fh == nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
		return
	}
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("only pdf files are supported"))
		return
	}

	dir := filepath.Join(s.cfg.LibraryRoot, u.ID.String())
	if err := util.EnsureDir(dir); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	paperID, path, err := saveUploadedPDF(dir, fh)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(fh.Filename), filepath.Ext(fh.Filename))
	}
	year, _ := strconv.Atoi(r.FormValue("year"))
	if year <= 0 {
		year = time.Now().Year()
	}
	paper := models.Paper{
		ID:       paperID,
		Title:    title,
		Authors:  splitCommaList(r.FormValue("authors")),
		Abstract: strings.TrimSpace(r.FormValue("abstract")),
		Year:     year,
		Topics:   splitCommaList(r.FormValue("topics")),
		Impact:   "medium",
		Source:   "upload",
		Status:   "pending",
		PDFPath:  path,
	}
	if err := s.paperRepo.Upsert(r.Context(), u.ID, paper); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if _, err := s.startIngest(r.Context(), u, paperID); err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	_, _ = s.activityRepo.Log(r.Context(), u.ID, "paper_uploaded", map[string]any{
		"paper_id": paperID,
		"title":    title,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"paper_id": paperID,
		"status":   "pending",
		"message":  "Paper uploaded, processing started",
	})
}

func (s *Server) handleDeletePaper(w http.ResponseWriter, r *http.Request, paperID string) {
	u := s.user(r)
	p, err := s.paperRepo.GetByID(r.Context(), u.ID, paperID)
	if err == nil && p.PDFPath != "" {
		_ = os.Remove(p.PDFPath)
	}
	deleted, err := s.paperRepo.Delete(r.Context(), u.ID, paperID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if !deleted {
		writeErr(w, http.StatusNotFound, fmt.Errorf("paper %s not found", paperID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Paper %s removed from library", paperID),
	})
}

// handleDownloadPDF proxies the paper's source URL so browsers get a
// same-origin download.
func (s *Server) handleDownloadPDF(w http.ResponseWriter, r *http.Request, paperID string) {
	u := s.user(r)
	p, err := s.paperRepo.GetByID(r.Context(), u.ID, paperID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	if p.URL == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("paper has no source url"))
		return
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, p.URL, nil)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		writeErr(w, http.StatusBadGateway, fmt.Errorf("source returned status %d", resp.StatusCode))
		return
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(strings.ToLower(ct), "pdf") {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("source did not return a pdf (content type %s)", ct))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=paper.pdf")
	_, _ = io.Copy(w, resp.Body)
}

func (s *Server) handleServeFile(w http.ResponseWriter, r *http.Request, paperID string) {
	u := s.user(r)
	p, err := s.paperRepo.GetByID(r.Context(), u.ID, paperID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	if p.PDFPath == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("paper %s has no stored file", paperID))
		return
	}
	http.ServeFile(w, r, p.PDFPath)
}

func saveUploadedPDF(dstDir string, fh *multipart.FileHeader) (paperID, path string, err error) {
	src, err := fh.Open()
	if err != nil {
		return "", "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dstDir, "upload-*.pdf")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	h := sha256.New()
	if _, err = io.Copy(io.MultiWriter(tmp, h), src); err != nil {
		return "", "", fmt.Errorf("write upload: %w", err)
	}

	paperID = fmt.Sprintf("%x", h.Sum(nil))
	finalPath := filepath.Join(dstDir, paperID+".pdf")
	if err = tmp.Close(); err != nil {
		return "", "", err
	}
	if err = os.Rename(tmp.Name(), finalPath); err != nil {
		return "", "", fmt.Errorf("atomic move upload: %w", err)
	}
	return paperID, finalPath, nil
}

func firstUploadedFile(form *multipart.Form) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	if files := form.File["file"]; len(files) > 0 {
		return files[0]
	}
	for _, v := range form.File {
		if len(v) > 0 {
			return v[0]
		}
	}
	return nil
}

func splitCommaList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

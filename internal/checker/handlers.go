package checker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
)

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePhoto checks an uploaded photo
func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "Conversation ID required", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, fmt.Sprintf("File is too large. Maximum size is %s.", units.HumanSize(float64(s.maxUploadSize))), http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, "No file was provided. Please attach a photo.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := detectContentType(header.Header.Get("Content-Type"), header.Filename, data)
	reply := s.service.Dispatch(r.Context(), PhotoEvent{
		ConversationID: id,
		Data:           data,
		ContentType:    contentType,
	})
	writeJSON(w, http.StatusOK, reply)
}

// handleMessage dispatches a text command
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "Conversation ID required", http.StatusBadRequest)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	reply := s.service.Dispatch(r.Context(), CommandEvent{
		ConversationID: id,
		Command:        ParseCommand(req.Text),
	})
	writeJSON(w, http.StatusOK, reply)
}

// handleSubscribe subscribes the conversation to reminders
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	reply := s.service.HandleSubscribe(r.Context(), r.PathValue("id"))
	if reply.Subscription == nil {
		writeJSON(w, http.StatusInternalServerError, reply)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleUnsubscribe removes the conversation's subscription
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	reply := s.service.HandleUnsubscribe(r.Context(), r.PathValue("id"))
	writeJSON(w, http.StatusOK, reply)
}

// handleStatus returns the conversation's subscription
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.service.HandleStatusQuery(r.PathValue("id"))
	if !ok {
		writeError(w, "Not subscribed", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// detectContentType prefers the part header, then the file extension, then sniffing
func detectContentType(header, filename string, data []byte) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	}
	return http.DetectContentType(data)
}

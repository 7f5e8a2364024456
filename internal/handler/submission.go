package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/mathtutor/internal/grading"
	"github.com/pavelanni/mathtutor/internal/model"
)

type submitRequest struct {
	UserID      string   `json:"userId"`
	Answer      string   `json:"answer"`
	Steps       []string `json:"steps"`
	FinalAnswer string   `json:"finalAnswer"`
}

var errUploadTooLarge = errors.New("upload too large")

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseSubmission(w, r)
	if errors.Is(err, errUploadTooLarge) {
		writeMessage(w, r, http.StatusRequestEntityTooLarge, "ImageTooLarge",
			map[string]any{"MaxMB": h.config.MaxUploadBytes >> 20})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req.ExerciseID = chi.URLParam(r, "exerciseID")

	if err := authorizeFor(r.Context(), req.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.grading.Submit(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// parseSubmission accepts a JSON body or a multipart form whose optional
// "image" file is sent to OCR when no answer is typed.
func (h *Handler) parseSubmission(w http.ResponseWriter, r *http.Request) (grading.Request, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var body submitRequest
		if err := decodeJSON(r, &body); err != nil {
			return grading.Request{}, err
		}
		return grading.Request{
			UserID:      body.UserID,
			Answer:      body.Answer,
			Steps:       body.Steps,
			FinalAnswer: body.FinalAnswer,
		}, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.config.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			return grading.Request{}, errUploadTooLarge
		}
		return grading.Request{}, fmt.Errorf("parse multipart form: %v: %w", err, model.ErrValidation)
	}
	req := grading.Request{
		UserID:      r.FormValue("userId"),
		Answer:      r.FormValue("answer"),
		FinalAnswer: r.FormValue("finalAnswer"),
	}
	for _, s := range r.MultipartForm.Value["steps"] {
		if s != "" {
			req.Steps = append(req.Steps, s)
		}
	}

	file, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return grading.Request{}, fmt.Errorf("read image: %v: %w", err, model.ErrValidation)
	}
	defer file.Close()
	if req.Image, err = io.ReadAll(file); err != nil {
		return grading.Request{}, err
	}
	return req, nil
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := authorizeFor(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	subs, err := h.grading.ListSubmissions(r.Context(), userID, r.URL.Query().Get("exerciseId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

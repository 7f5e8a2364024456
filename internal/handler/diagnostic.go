package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type startDiagnosticRequest struct {
	StudentID string `json:"studentId"`
}

type submitDiagnosticRequest struct {
	StudentID string   `json:"studentId"`
	Answers   []string `json:"answers"`
}

func (h *Handler) handleStartDiagnostic(w http.ResponseWriter, r *http.Request) {
	var req startDiagnosticRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := authorizeFor(r.Context(), req.StudentID); err != nil {
		h.writeError(w, r, err)
		return
	}
	test, err := h.diagnostic.Start(r.Context(), req.StudentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, test.Public())
}

func (h *Handler) handleSubmitDiagnostic(w http.ResponseWriter, r *http.Request) {
	var req submitDiagnosticRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := authorizeFor(r.Context(), req.StudentID); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.diagnostic.Submit(r.Context(), chi.URLParam(r, "testID"), req.StudentID, req.Answers)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleDiagnosticResult(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	if err := authorizeFor(r.Context(), studentID); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.diagnostic.LatestResult(r.Context(), studentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleGetDiagnosticTest(w http.ResponseWriter, r *http.Request) {
	test, err := h.diagnostic.GetTest(r.Context(), chi.URLParam(r, "testID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := authorizeFor(r.Context(), test.StudentID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, test.Public())
}

func (h *Handler) handleDiagnosticQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.diagnostic.Questions())
}

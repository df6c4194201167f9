package handler

import (
	"circulation-engine/internal/api/handler/dto"
	"circulation-engine/internal/domain/member"
	"circulation-engine/internal/pkg/apperrors"
	"fmt"
	"log/slog"
	"net/http"
)

type MemberHandler struct {
	service member.Service
	logger  *slog.Logger
}

func NewMemberHandler(s member.Service, l *slog.Logger) *MemberHandler {
	return &MemberHandler{
		service: s,
		logger:  l.With("component", "MemberHandler"),
	}
}

// GetMember retrieves one member.
//
// @Summary Retrieve member details
// @Tags Members
// @Produce json
// @Param memberID path int true "Member ID"
// @Success 200 {object} dto.MemberResponse "Member details"
// @Failure 404 {object} dto.ErrorResponse "Member not found"
// @Router /members/{memberID} [get]
// @Security BearerAuth
func (h *MemberHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	memberID, err := idFromURL(r, "memberID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	m, err := h.service.GetMember(r.Context(), memberID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewMemberResponse(m))
}

// Ban blocks a member from future checkouts.
//
// @Summary Ban a member
// @Description Records an administrative ban with its cause. Open loans stay returnable; only new checkouts and renewals are blocked.
// @Tags Members
// @Accept json
// @Produce json
// @Param memberID path int true "Member ID"
// @Param request body dto.BanRequest true "Ban request payload"
// @Success 204 "Member banned"
// @Failure 400 {object} dto.ErrorResponse "Missing ban cause"
// @Failure 404 {object} dto.ErrorResponse "Member not found"
// @Router /members/{memberID}/ban [put]
// @Security BearerAuth
func (h *MemberHandler) Ban(w http.ResponseWriter, r *http.Request) {
	memberID, err := idFromURL(r, "memberID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	var req dto.BanRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	if err := h.service.Ban(r.Context(), memberID, req.Cause, req.OperatorID); err != nil {
		respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unban lifts a member's ban.
//
// @Summary Unban a member
// @Description Lifts the administrative ban. Unbanning a member who is not banned succeeds without effect.
// @Tags Members
// @Accept json
// @Produce json
// @Param memberID path int true "Member ID"
// @Param request body dto.UnbanRequest true "Unban request payload"
// @Success 204 "Member unbanned"
// @Failure 404 {object} dto.ErrorResponse "Member not found"
// @Router /members/{memberID}/ban [delete]
// @Security BearerAuth
func (h *MemberHandler) Unban(w http.ResponseWriter, r *http.Request) {
	memberID, err := idFromURL(r, "memberID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	var req dto.UnbanRequest
	if err := decodeJSON(r, &req); err != nil || req.Validate() != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	if err := h.service.Unban(r.Context(), memberID, req.OperatorID); err != nil {
		respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/open-fpl/data/internal/domain/picks"
	"github.com/open-fpl/data/internal/platform/logging"
	"github.com/open-fpl/data/internal/usecase"
)

// PicksLookup is what the picks endpoint needs from the use case layer.
type PicksLookup interface {
	GetEntryPicks(ctx context.Context, entryID, gameweekID int) (usecase.PicksLookup, error)
}

type Handler struct {
	picksService PicksLookup
	logger       *logging.Logger
}

func NewHandler(picksService PicksLookup, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		picksService: picksService,
		logger:       logger,
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetEntryPicks(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetEntryPicks")
	defer span.End()

	entryID, err := parsePathID(r, "entryID")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	gameweekID, err := parsePathID(r, "gameweekID")
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	lookup, err := h.picksService.GetEntryPicks(ctx, entryID, gameweekID)
	if err != nil {
		h.logger.WarnContext(ctx, "get entry picks failed",
			"entry_id", entryID,
			"gameweek_id", gameweekID,
			"error", err,
		)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, entryPicksDTO{
		EntryID:     lookup.EntryID,
		GameweekID:  lookup.GameweekID,
		Record:      lookup.Record,
		Captain:     lookup.Record.Captain(),
		ViceCaptain: lookup.Record.ViceCaptain(),
		Picks:       lookup.Picks,
	})
}

type entryPicksDTO struct {
	EntryID     int          `json:"entry_id"`
	GameweekID  int          `json:"gameweek_id"`
	Record      []int        `json:"record"`
	Captain     int          `json:"captain"`
	ViceCaptain int          `json:"vice_captain"`
	Picks       []picks.Pick `json:"picks"`
}

func parsePathID(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.PathValue(name))
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", usecase.ErrInvalidInput, name, raw)
	}
	return v, nil
}

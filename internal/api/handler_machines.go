package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"laundryonline/internal/apperr"
	"laundryonline/internal/machinesync"
	"laundryonline/internal/model"
	"laundryonline/internal/status"
)

// machineListResponse is the body of GET /api/machines.
type machineListResponse struct {
	Machines []machinesync.View `json:"machines"`
	Counts   bucketCounts       `json:"counts"`
	Loading  bool               `json:"loading"`
	Stalled  bool               `json:"stalled"`
	Seq      uint64             `json:"seq"`
}

type bucketCounts struct {
	Available  int `json:"available"`
	InUse      int `json:"inUse"`
	Unbucketed int `json:"unbucketed"`
}

// ListMachines handles GET /api/machines. ?bucket=available|in_use limits
// the list to one bucket; counts always cover every machine.
func (h *Handler) ListMachines(c *gin.Context) {
	bucket := status.Bucket(c.Query("bucket"))
	switch bucket {
	case status.BucketNone, status.BucketAvailable, status.BucketInUse:
	default:
		respondError(c, apperr.InvalidInput("api.list_machines", "bucket must be available or in_use"))
		return
	}

	state := h.Sync.State()
	p := h.Sync.Partition()
	c.JSON(http.StatusOK, machineListResponse{
		Machines: h.Sync.Views(bucket),
		Counts: bucketCounts{
			Available:  len(p.Available),
			InUse:      len(p.InUse),
			Unbucketed: len(p.Unbucketed),
		},
		Loading: state.Loading,
		Stalled: state.Stalled,
		Seq:     state.Seq,
	})
}

// GetMachine handles GET /api/machines/:id.
func (h *Handler) GetMachine(c *gin.Context) {
	m, ok := h.Sync.Get(c.Param("id"))
	if !ok {
		respondError(c, apperr.NotFound("api.get_machine", "machine not found"))
		return
	}
	c.JSON(http.StatusOK, machinesync.ViewOf(m, h.Sync.Buckets(), time.Now()))
}

// GetRuns handles GET /api/machines/:id/runs. ?limit caps the number of
// runs; ?since keeps runs that ended after a timestamp, given as epoch
// millis, RFC 3339, or a natural date such as "yesterday".
func (h *Handler) GetRuns(c *gin.Context) {
	id := c.Param("id")
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			respondError(c, apperr.InvalidInput("api.runs", "limit must be between 1 and 200"))
			return
		}
		limit = n
	}
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := model.ParseFlexTime(raw)
		if err != nil {
			respondError(c, apperr.InvalidInput("api.runs", "since is not a recognizable time"))
			return
		}
		since = t
	}

	if _, err := h.Store.Get(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	runs, err := h.Store.Runs(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]model.RunHistory, 0, len(runs))
	for _, r := range runs {
		if !since.IsZero() && !r.EndedAt.After(since) {
			continue
		}
		out = append(out, r)
	}
	c.JSON(http.StatusOK, out)
}

// GetSyncState handles GET /api/sync/state.
func (h *Handler) GetSyncState(c *gin.Context) {
	c.JSON(http.StatusOK, h.Sync.State())
}

package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradesync/internal/repository"
	"tradesync/internal/schema"
)

type RecordsHandler struct {
	Registry *schema.Registry
	Store    repository.Storage
	Logger   *zap.Logger
}

func (h *RecordsHandler) Register(r *gin.Engine) {
	r.GET("/v1/collections", h.collections)
	r.GET("/v1/records/:collection", h.records)
}

func (h *RecordsHandler) collections(c *gin.Context) {
	if h.Registry == nil {
		Error(c, http.StatusInternalServerError, "registry unavailable", nil)
		return
	}
	type entry struct {
		Name   string `json:"name"`
		Public bool   `json:"public"`
	}
	names := h.Registry.Names()
	out := make([]entry, 0, len(names))
	for _, name := range names {
		coll, err := h.Registry.Get(name)
		if err != nil {
			continue
		}
		out = append(out, entry{Name: coll.Name, Public: coll.IsPublic()})
	}
	Ok(c, out, map[string]any{"total": len(out)})
}

// records serves paginated local reads; it never touches the upstream.
func (h *RecordsHandler) records(c *gin.Context) {
	if h.Registry == nil || h.Store == nil {
		Error(c, http.StatusInternalServerError, "storage unavailable", nil)
		return
	}
	coll, err := h.Registry.Get(c.Param("collection"))
	if err != nil {
		Error(c, http.StatusNotFound, err.Error(), nil)
		return
	}

	params := repository.QueryParams{
		AccountID: uint64Query(c, "account_id", 0),
		Symbol:    c.Query("symbol"),
		Start:     int64Query(c, "start", 0),
		End:       int64Query(c, "end", 0),
		Limit:     intQuery(c, "limit", 0),
		Offset:    intQuery(c, "offset", 0),
		Asc:       boolQueryDefault(c, "asc", false),
	}
	rows, total, err := h.Store.QueryRecords(c.Request.Context(), coll, params)
	if err != nil {
		if errors.Is(err, schema.ErrUnknownCollection) {
			Error(c, http.StatusNotFound, err.Error(), nil)
			return
		}
		if h.Logger != nil {
			h.Logger.Warn("records query failed", zap.String("collection", coll.Name), zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, rows, map[string]any{
		"total":  total,
		"limit":  params.Limit,
		"offset": params.Offset,
	})
}

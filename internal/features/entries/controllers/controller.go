package entries_controllers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	entries_core "debuglens/internal/features/entries/core"
	time_parser "debuglens/internal/util/time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/schema"
	"golang.org/x/time/rate"
)

type EntryController struct {
	entryRepository *entries_core.EntryRepository
	storeLimiter    *rate.Limiter
	queryDecoder    *schema.Decoder
	logger          *slog.Logger
}

func NewEntryController(
	entryRepository *entries_core.EntryRepository,
	storeLimiter *rate.Limiter,
	logger *slog.Logger,
) *EntryController {
	queryDecoder := schema.NewDecoder()
	queryDecoder.IgnoreUnknownKeys(true)

	return &EntryController{
		entryRepository: entryRepository,
		storeLimiter:    storeLimiter,
		queryDecoder:    queryDecoder,
		logger:          logger,
	}
}

func (c *EntryController) RegisterRoutes(router *gin.RouterGroup) {
	entryRoutes := router.Group("/entries")

	entryRoutes.GET("", c.ListEntries)
	entryRoutes.GET("/:id", c.FindEntry)
	entryRoutes.POST("", c.StoreEntries)
	entryRoutes.PATCH("", c.UpdateEntries)
	entryRoutes.POST("/prune", c.PruneEntries)
	entryRoutes.DELETE("", c.ClearEntries)

	monitoringRoutes := router.Group("/monitoring")

	monitoringRoutes.GET("", c.GetMonitoring)
	monitoringRoutes.POST("", c.Monitor)
	monitoringRoutes.DELETE("", c.StopMonitoring)
}

// ListEntries
// @Summary List entries
// @Description List entries newest first. Without batch_id, family_hash or tag, superseded exceptions are hidden.
// @Tags entries
// @Produce json
// @Param type query string false "Entry type"
// @Param batch_id query string false "Batch ID"
// @Param family_hash query string false "Exception family hash"
// @Param tag query string false "Raw tag, e.g. env:prod"
// @Param before query int false "Sequence cursor from the previous page"
// @Param take query int false "Page size, defaults to 1000"
// @Success 200 {object} ListEntriesResponseDTO
// @Failure 400 {object} map[string]string
// @Router /entries [get]
func (c *EntryController) ListEntries(ctx *gin.Context) {
	var request ListEntriesRequestDTO
	if err := c.queryDecoder.Decode(&request, ctx.Request.URL.Query()); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	if request.Type != "" && !request.Type.IsValid() {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown entry type %q", request.Type)})
		return
	}

	entries, err := c.entryRepository.Get(ctx.Request.Context(), request.Type, request.ToQueryOptions())
	if err != nil {
		c.handleError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, ListEntriesResponseDTO{Entries: entries})
}

// FindEntry
// @Summary Get entry
// @Description Get a single entry by id, including entries hidden from listings
// @Tags entries
// @Produce json
// @Param id path string true "Entry UUID"
// @Success 200 {object} entries_core.EntryResult
// @Failure 404 {object} map[string]string
// @Router /entries/{id} [get]
func (c *EntryController) FindEntry(ctx *gin.Context) {
	entry, err := c.entryRepository.Find(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		c.handleError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, entry)
}

// StoreEntries
// @Summary Store entries
// @Description Store a batch of entries in one bulk write. Exceptions are grouped by family.
// @Tags entries
// @Accept json
// @Produce json
// @Param request body StoreEntriesRequestDTO true "Entries"
// @Success 200 {object} WriteResponseDTO
// @Failure 400 {object} map[string]string
// @Failure 429 {object} map[string]string
// @Router /entries [post]
func (c *EntryController) StoreEntries(ctx *gin.Context) {
	if !c.storeLimiter.Allow() {
		ctx.JSON(
			http.StatusTooManyRequests,
			gin.H{"error": "Rate limit exceeded. Please try again later."},
		)
		return
	}

	var request StoreEntriesRequestDTO
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	entries := make([]*entries_core.Entry, 0, len(request.Entries))
	for i := range request.Entries {
		if !request.Entries[i].Type.IsValid() {
			ctx.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Unknown entry type %q at position %d", request.Entries[i].Type, i),
			})
			return
		}

		entries = append(entries, request.Entries[i].ToEntry())
	}

	report, err := c.entryRepository.Store(ctx.Request.Context(), entries)
	c.entryRepository.Terminate()

	c.writeReport(ctx, report, err)
}

// UpdateEntries
// @Summary Update entries
// @Description Merge content changes and tag changes into stored entries. Unknown entries are skipped.
// @Tags entries
// @Accept json
// @Produce json
// @Param request body UpdateEntriesRequestDTO true "Updates"
// @Success 200 {object} WriteResponseDTO
// @Failure 400 {object} map[string]string
// @Router /entries [patch]
func (c *EntryController) UpdateEntries(ctx *gin.Context) {
	var request UpdateEntriesRequestDTO
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	for i, update := range request.Updates {
		if update == nil || update.UUID == "" || !update.Type.IsValid() {
			ctx.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Update at position %d needs a uuid and a known type", i),
			})
			return
		}
	}

	report, err := c.entryRepository.Update(ctx.Request.Context(), request.Updates)
	c.writeReport(ctx, report, err)
}

// PruneEntries
// @Summary Prune entries
// @Description Delete entries created before the given time
// @Tags entries
// @Accept json
// @Produce json
// @Param request body PruneEntriesRequestDTO true "Cut-off"
// @Success 200 {object} PruneEntriesResponseDTO
// @Failure 400 {object} map[string]string
// @Router /entries/prune [post]
func (c *EntryController) PruneEntries(ctx *gin.Context) {
	var request PruneEntriesRequestDTO
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	before, err := time_parser.ParseTimestamp(request.Before)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid before: " + err.Error()})
		return
	}

	deleted, err := c.entryRepository.Prune(ctx.Request.Context(), before, request.KeepExceptions)
	if err != nil {
		c.handleError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, PruneEntriesResponseDTO{Deleted: deleted})
}

// ClearEntries
// @Summary Clear entries
// @Description Drop the entries index with all documents
// @Tags entries
// @Success 204
// @Router /entries [delete]
func (c *EntryController) ClearEntries(ctx *gin.Context) {
	if err := c.entryRepository.Clear(ctx.Request.Context()); err != nil {
		c.handleError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

// GetMonitoring
// @Summary Get monitored tags
// @Tags monitoring
// @Produce json
// @Success 200 {object} MonitoringResponseDTO
// @Router /monitoring [get]
func (c *EntryController) GetMonitoring(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, MonitoringResponseDTO{Tags: c.entryRepository.Monitoring(ctx.Request.Context())})
}

// Monitor
// @Summary Monitor tags
// @Tags monitoring
// @Accept json
// @Param request body MonitoringRequestDTO true "Tags"
// @Success 204
// @Router /monitoring [post]
func (c *EntryController) Monitor(ctx *gin.Context) {
	var request MonitoringRequestDTO
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	c.entryRepository.Monitor(ctx.Request.Context(), request.Tags)
	ctx.Status(http.StatusNoContent)
}

// StopMonitoring
// @Summary Stop monitoring tags
// @Tags monitoring
// @Accept json
// @Param request body MonitoringRequestDTO true "Tags"
// @Success 204
// @Router /monitoring [delete]
func (c *EntryController) StopMonitoring(ctx *gin.Context) {
	var request MonitoringRequestDTO
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	c.entryRepository.StopMonitoring(ctx.Request.Context(), request.Tags)
	ctx.Status(http.StatusNoContent)
}

func (c *EntryController) writeReport(ctx *gin.Context, report *entries_core.WriteReport, err error) {
	var bulkErr *entries_core.BulkWriteError
	if errors.As(err, &bulkErr) {
		ctx.JSON(http.StatusBadGateway, gin.H{
			"error":   bulkErr.Error(),
			"written": report.Written(),
			"items":   report.Items,
		})
		return
	}

	if err != nil {
		c.handleError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, WriteResponseDTO{Written: report.Written(), Items: report.Items})
}

func (c *EntryController) handleError(ctx *gin.Context, err error) {
	if errors.Is(err, entries_core.ErrEntryNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return
	}

	c.logger.Error("entries request failed",
		slog.String("path", ctx.FullPath()),
		slog.String("error", err.Error()))

	ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process entries request"})
}

package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/assetcache/internal/assetsync"
	"github.com/Checker-Finance/assetcache/pkg/model"
)

// AssetService is the coordinator surface exposed over HTTP.
type AssetService interface {
	FetchAllAssets(ctx context.Context, forceRefresh bool) assetsync.Result[[]model.Asset]
	FetchAssetByID(ctx context.Context, id string) assetsync.Result[model.Asset]
	PersistSnapshot(ctx context.Context, assets []model.Asset) error
	LastUpdateTimestamp(ctx context.Context) (int64, bool)
	InvalidateCache(ctx context.Context) error
}

type AssetHandler struct {
	logger  *zap.Logger
	service AssetService
}

func NewAssetHandler(logger *zap.Logger, service AssetService) *AssetHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetHandler{logger: logger, service: service}
}

// ListAssets serves GET /assets. ?refresh=true skips the cache fallback.
func (h *AssetHandler) ListAssets(c *fiber.Ctx) error {
	refresh := c.QueryBool("refresh", false)
	return writeResult(c, h.service.FetchAllAssets(c.UserContext(), refresh))
}

// GetAsset serves GET /assets/:id.
func (h *AssetHandler) GetAsset(c *fiber.Ctx) error {
	return writeResult(c, h.service.FetchAssetByID(c.UserContext(), c.Params("id")))
}

// SaveSnapshot serves POST /assets/snapshot. An empty body snapshots a fresh
// live fetch.
func (h *AssetHandler) SaveSnapshot(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var assets []model.Asset
	if len(c.Body()) == 0 {
		res := h.service.FetchAllAssets(ctx, true)
		if res.IsError() {
			h.logger.Warn("api.snapshot.fetch_failed", zap.Error(res.Err()))
			return writeError(c, res.Err())
		}
		assets = res.Data()
	} else {
		var req SnapshotRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
		}
		if len(req.Assets) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "assets must not be empty"})
		}
		assets = req.Assets
	}

	if err := h.service.PersistSnapshot(ctx, assets); err != nil {
		h.logger.Error("api.snapshot.save_failed",
			zap.Int("count", len(assets)),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: "error saving data: " + assetsync.Message(err),
		})
	}

	ts, when := asOf(h.service.LastUpdateTimestamp(ctx))
	return c.Status(fiber.StatusCreated).JSON(SnapshotResponse{
		Saved:     len(assets),
		Timestamp: ts,
		AsOf:      when,
	})
}

// LastUpdate serves GET /assets/last-update.
func (h *AssetHandler) LastUpdate(c *fiber.Ctx) error {
	ts, when := asOf(h.service.LastUpdateTimestamp(c.UserContext()))
	return c.JSON(LastUpdateResponse{Timestamp: ts, AsOf: when})
}

// InvalidateSnapshot serves DELETE /assets/snapshot.
func (h *AssetHandler) InvalidateSnapshot(c *fiber.Ctx) error {
	if err := h.service.InvalidateCache(c.UserContext()); err != nil {
		h.logger.Error("api.snapshot.invalidate_failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: assetsync.Message(err)})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func writeResult[T any](c *fiber.Ctx, res assetsync.Result[T]) error {
	if res.IsError() {
		return writeError(c, res.Err())
	}
	ts, when := asOf(res.Timestamp())
	return c.JSON(AssetsResponse{
		Data:      res.Data(),
		FromCache: res.FromCache(),
		Timestamp: ts,
		AsOf:      when,
	})
}

func writeError(c *fiber.Ctx, err error) error {
	status := fiber.StatusBadGateway
	if errors.Is(err, model.ErrNotFound) {
		status = fiber.StatusNotFound
	}
	return c.Status(status).JSON(ErrorResponse{Error: assetsync.Message(err)})
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/family-profiler/backend/internal/domain"
	"github.com/family-profiler/backend/internal/extraction"
	"github.com/family-profiler/backend/internal/middleware/validation"
	"github.com/family-profiler/backend/internal/pipeline"
	"github.com/family-profiler/backend/internal/storage/models"
	"github.com/family-profiler/backend/internal/storage/sqlite"
	"github.com/family-profiler/backend/pkg/logger"
)

type BatchProcessor interface {
	ProcessBatch(ctx context.Context, items []pipeline.Item) (*domain.FamilyProfile, error)
}

type ProfileReader interface {
	GetProfile(ctx context.Context, id string) (*domain.FamilyProfile, error)
	ListProfiles(ctx context.Context, limit, offset int) ([]models.ProfileSummary, error)
	Stats(ctx context.Context) (models.StoreStats, error)
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type FamilyHandler struct {
	processor    BatchProcessor
	profiles     ProfileReader
	maxFileBytes int64
}

func NewFamilyHandler(processor BatchProcessor, profiles ProfileReader, maxFileBytes int) *FamilyHandler {
	return &FamilyHandler{
		processor:    processor,
		profiles:     profiles,
		maxFileBytes: int64(maxFileBytes),
	}
}

// Upload builds one family profile from the uploaded workbooks. Hints are
// matched to files by name.
func (h *FamilyHandler) Upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		logger.Error("Failed to parse multipart form", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid multipart form",
		})
	}

	hints, _ := c.Locals(validation.LocalHints).(map[string]domain.MemberHints)

	files := form.File["files"]
	items := make([]pipeline.Item, 0, len(files))
	for _, fh := range files {
		name := validation.SanitizeFilename(fh.Filename)
		content, err := h.readFile(fh)
		if err != nil {
			// An empty workbook is reported back as an unprocessed file.
			logger.Warn("Failed to read uploaded file", zap.String("file", name), zap.Error(err))
		}
		items = append(items, pipeline.Item{
			Source: extraction.NewWorkbookSource(name, content),
			Hints:  hints[name],
		})
	}

	profile, err := h.processor.ProcessBatch(c.UserContext(), items)
	if err != nil {
		var verr *pipeline.ValidationError
		if errors.As(err, &verr) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":  "no usable data in this submission",
				"reason": verr.Reason,
			})
		}
		logger.Error("Failed to process batch", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process family profile",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(profile)
}

func (h *FamilyHandler) readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	limit := h.maxFileBytes
	if limit <= 0 {
		limit = fh.Size
	}
	content, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return content, nil
}

func (h *FamilyHandler) List(c *fiber.Ctx) error {
	limit := queryInt(c, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	summaries, err := h.profiles.ListProfiles(c.UserContext(), limit, offset)
	if err != nil {
		logger.Error("Failed to list profiles", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list family profiles",
		})
	}

	return c.JSON(fiber.Map{
		"families": summaries,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *FamilyHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")

	profile, err := h.profiles.GetProfile(c.UserContext(), id)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Family profile not found",
		})
	}
	if err != nil {
		logger.Error("Failed to get profile", zap.String("profile_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get family profile",
		})
	}

	return c.JSON(profile)
}

func queryInt(c *fiber.Ctx, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

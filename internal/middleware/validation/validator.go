package validation

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/family-profiler/backend/internal/domain"
	"github.com/family-profiler/backend/internal/metrics"
)

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

// Locals keys set for the upload handler.
const (
	LocalHints = "upload_hints"
)

type Config struct {
	MaxFiles     int
	MaxFileBytes int
	AllowedExts  []string
	Logger       *zap.Logger
}

// UploadMiddleware checks a multipart upload before any workbook is parsed.
// Parsed hints are stored under LocalHints keyed by file name.
func UploadMiddleware(cfg Config) fiber.Handler {
	if cfg.MaxFiles == 0 {
		cfg.MaxFiles = 20
	}
	if cfg.MaxFileBytes == 0 {
		cfg.MaxFileBytes = 10 * 1024 * 1024
	}
	if len(cfg.AllowedExts) == 0 {
		cfg.AllowedExts = []string{".xlsx"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	reject := func(c *fiber.Ctx, status int, reason, msg string) error {
		metrics.UploadsRejected.WithLabelValues(reason).Inc()
		cfg.Logger.Warn("Upload rejected",
			zap.String("reason", reason),
			zap.String("ip", c.IP()),
		)
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}

	return func(c *fiber.Ctx) error {
		if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
			return reject(c, fiber.StatusUnsupportedMediaType, "content_type", "Upload must be multipart/form-data")
		}

		form, err := c.MultipartForm()
		if err != nil {
			return reject(c, fiber.StatusBadRequest, "malformed", "Invalid multipart form")
		}

		files := form.File["files"]
		if len(files) == 0 {
			return reject(c, fiber.StatusBadRequest, "no_files", "At least one file is required")
		}
		if len(files) > cfg.MaxFiles {
			return reject(c, fiber.StatusBadRequest, "too_many_files", "Too many files in one submission")
		}

		for _, fh := range files {
			name := SanitizeFilename(fh.Filename)
			if name == "" {
				return reject(c, fiber.StatusBadRequest, "bad_name", "File name is required")
			}
			// BIFF workbooks cannot be parsed, even when configured as allowed.
			if strings.EqualFold(filepath.Ext(name), ".xls") {
				return reject(c, fiber.StatusUnsupportedMediaType, "legacy_format", "Legacy .xls workbooks are not supported, save as .xlsx: "+name)
			}
			if !allowedExt(name, cfg.AllowedExts) {
				return reject(c, fiber.StatusBadRequest, "extension", "Unsupported file type: "+name)
			}
			if fh.Size > int64(cfg.MaxFileBytes) {
				return reject(c, fiber.StatusRequestEntityTooLarge, "too_large", "File exceeds maximum size: "+name)
			}
		}

		hints := map[string]domain.MemberHints{}
		if raw := form.Value["hints"]; len(raw) > 0 && strings.TrimSpace(raw[0]) != "" {
			if err := json.Unmarshal([]byte(raw[0]), &hints); err != nil {
				return reject(c, fiber.StatusBadRequest, "hints", "Invalid hints JSON")
			}
			for file, h := range hints {
				if containsXSS(h.Name) || containsXSS(file) {
					return reject(c, fiber.StatusBadRequest, "hints", "Invalid hints content")
				}
				if h.Age < 0 || h.Age > 130 {
					return reject(c, fiber.StatusBadRequest, "hints", "Hint age out of range for "+file)
				}
			}
		}
		c.Locals(LocalHints, hints)

		return c.Next()
	}
}

func allowedExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range exts {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

// SanitizeFilename drops any client supplied directory and control bytes.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\x00", "")
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSpace(name)
}

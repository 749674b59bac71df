// Package evidence persists page captures for audit review.
package evidence

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/price-audit/internal/model"
)

const (
	dateLayout = "2006-01-02"
	// Millisecond resolution keeps back-to-back attempts apart.
	stampLayout = "2006-01-02_15-04-05.000"

	maxSuffix = 100
)

// Capturer is the part of a browser page the store reads from.
type Capturer interface {
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
}

// Ref identifies the capture being saved.
type Ref struct {
	ProductID    string
	VendorDomain string
	// Label is empty for a successful capture, otherwise failed, blocked,
	// error or debug.
	Label     string
	Timestamp time.Time
}

// Store writes evidence under Dir/<product>_<date>/.
type Store struct {
	dir          string
	markupLabels map[string]bool
}

// NewStore creates a Store rooted at dir. Markup is saved for successful
// captures and for the given diagnostic labels.
func NewStore(dir string, markupLabels []string) *Store {
	m := make(map[string]bool, len(markupLabels))
	for _, l := range markupLabels {
		m[strings.ToLower(strings.TrimSpace(l))] = true
	}
	return &Store{dir: dir, markupLabels: m}
}

// Dir returns the root output directory.
func (s *Store) Dir() string { return s.dir }

// WantsMarkup reports whether a capture with this label includes markup.
func (s *Store) WantsMarkup(label string) bool {
	return label == "" || s.markupLabels[label]
}

// Save captures a screenshot and, when the label calls for it, the page
// markup. Failures are logged and the artifact is omitted.
func (s *Store) Save(ctx context.Context, page Capturer, ref Ref) []model.EvidenceArtifact {
	log := zap.L().With(
		zap.String("product_id", ref.ProductID),
		zap.String("vendor", ref.VendorDomain),
		zap.String("label", ref.Label),
	)

	if page == nil {
		log.Warn("evidence: no page to capture")
		return nil
	}
	if ref.Timestamp.IsZero() {
		ref.Timestamp = time.Now()
	}

	dir := s.FolderFor(ref.ProductID, ref.Timestamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn("evidence: create folder", zap.String("dir", dir), zap.Error(err))
		return nil
	}
	base := BaseName(ref.VendorDomain, ref.Label, ref.Timestamp)

	var out []model.EvidenceArtifact

	png, err := page.Screenshot(ctx)
	if err != nil {
		log.Warn("evidence: screenshot failed", zap.Error(err))
	} else if path, err := writeExclusive(dir, base, ".png", png); err != nil {
		log.Warn("evidence: write screenshot", zap.Error(err))
	} else {
		out = append(out, model.EvidenceArtifact{
			Kind: model.ArtifactScreenshot, Label: ref.Label, Path: path, Timestamp: ref.Timestamp,
		})
	}

	if !s.WantsMarkup(ref.Label) {
		return out
	}

	html, err := page.HTML(ctx)
	if err != nil {
		log.Warn("evidence: read markup failed", zap.Error(err))
	} else if path, err := writeExclusive(dir, base, ".html", []byte(html)); err != nil {
		log.Warn("evidence: write markup", zap.Error(err))
	} else {
		out = append(out, model.EvidenceArtifact{
			Kind: model.ArtifactMarkup, Label: ref.Label, Path: path, Timestamp: ref.Timestamp,
		})
	}

	return out
}

// FolderFor returns the evidence folder for a product on the date of ts.
func (s *Store) FolderFor(productID string, ts time.Time) string {
	return filepath.Join(s.dir, Sanitize(productID)+"_"+ts.Format(dateLayout))
}

// BaseName returns the file name without extension:
// <vendor>[_<label>]_<timestamp>.
func BaseName(vendorDomain, label string, ts time.Time) string {
	parts := []string{Sanitize(vendorDomain)}
	if label != "" {
		parts = append(parts, Sanitize(label))
	}
	parts = append(parts, strings.ReplaceAll(ts.Format(stampLayout), ".", "-"))
	return strings.Join(parts, "_")
}

// Sanitize keeps letters, digits, space, hyphen and underscore, and trims
// trailing spaces. Dots are removed, so "example.com" becomes "examplecom".
func Sanitize(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	out := strings.TrimRight(b.String(), " ")
	if out == "" {
		return "unknown"
	}
	return out
}

// writeExclusive creates dir/base+ext, appending _1, _2, ... if the name is
// already taken. Existing files are never overwritten.
func writeExclusive(dir, base, ext string, data []byte) (string, error) {
	for i := 0; i < maxSuffix; i++ {
		name := base + ext
		if i > 0 {
			name = base + "_" + strconv.Itoa(i) + ext
		}
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", eris.Wrapf(err, "evidence: create %s", path)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return "", eris.Wrapf(err, "evidence: write %s", path)
		}
		if err := f.Close(); err != nil {
			return "", eris.Wrapf(err, "evidence: close %s", path)
		}
		return path, nil
	}
	return "", eris.Errorf("evidence: no free name for %s%s in %s", base, ext, dir)
}

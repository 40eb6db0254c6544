// Package dataset reads image manifests and writes per-image reports.
package dataset

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
)

// Sample is one manifest row.
type Sample struct {
	ID    string
	Image string
	Mask  string // empty when the row has no ground truth
}

// ReadManifest reads a CSV with a header and an `image` column, plus
// optional `mask` and `id` columns. Relative paths are resolved against root.
func ReadManifest(r io.Reader, root string) ([]Sample, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "read manifest")
	}

	cols := map[string]bool{}
	for _, name := range df.Names() {
		cols[name] = true
	}
	if !cols["image"] {
		return nil, errors.Errorf("manifest has no `image` column (columns: %v)", df.Names())
	}

	images := df.Col("image").Records()
	var masks, ids []string
	if cols["mask"] {
		masks = df.Col("mask").Records()
	}
	if cols["id"] {
		ids = df.Col("id").Records()
	}

	samples := make([]Sample, 0, len(images))
	for i, img := range images {
		img = strings.TrimSpace(img)
		if img == "" {
			return nil, errors.Errorf("manifest row %d has an empty image path", i+1)
		}

		s := Sample{Image: resolve(root, img)}
		if masks != nil {
			if m := strings.TrimSpace(masks[i]); m != "" && m != "NaN" {
				s.Mask = resolve(root, m)
			}
		}
		if ids != nil && strings.TrimSpace(ids[i]) != "" {
			s.ID = strings.TrimSpace(ids[i])
		} else {
			base := filepath.Base(img)
			s.ID = strings.TrimSuffix(base, filepath.Ext(base))
		}
		samples = append(samples, s)
	}

	return samples, nil
}

// LoadManifest reads a manifest file; relative paths resolve against its directory.
func LoadManifest(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadManifest(f, filepath.Dir(path))
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) || root == "" {
		return p
	}
	return filepath.Join(root, p)
}

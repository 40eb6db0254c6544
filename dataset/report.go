package dataset

import (
	"io"
	"os"
	"path/filepath"

	"github.com/go-gota/gota/dataframe"
	"github.com/pkg/errors"
)

// Score is the evaluation of one predicted mask.
type Score struct {
	ID            string
	PixelAccuracy float64
	MeanIoU       float64
	Dice          float64
}

// Summary averages scores.
func Summary(scores []Score) Score {
	mean := Score{ID: "mean"}
	if len(scores) == 0 {
		return mean
	}
	for _, s := range scores {
		mean.PixelAccuracy += s.PixelAccuracy
		mean.MeanIoU += s.MeanIoU
		mean.Dice += s.Dice
	}
	n := float64(len(scores))
	mean.PixelAccuracy /= n
	mean.MeanIoU /= n
	mean.Dice /= n
	return mean
}

// WriteReport writes scores as CSV with columns
// ID, PixelAccuracy, MeanIoU, Dice.
func WriteReport(w io.Writer, scores []Score) error {
	if len(scores) == 0 {
		return errors.New("no scores to report")
	}
	df := dataframe.LoadStructs(scores)
	if df.Err != nil {
		return errors.Wrap(df.Err, "build report")
	}
	return df.WriteCSV(w)
}

// SaveReport writes scores to path.
func SaveReport(path string, scores []Score) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteReport(f, scores); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

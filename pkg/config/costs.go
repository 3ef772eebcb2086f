package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "github.com/MotherTongues/mothertongues/pkg/errors"
)

// ReadSubstitutionCosts parses "src,dst,cost" rows. Blank lines and lines
// starting with '#' are skipped.
func ReadSubstitutionCosts(r io.Reader) (map[string]map[string]float64, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	costs := make(map[string]map[string]float64)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading substitution costs: %w", err)
		}
		src, dst := strings.TrimSpace(record[0]), strings.TrimSpace(record[1])
		cost, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			line, _ := reader.FieldPos(2)
			return nil, fmt.Errorf("line %d: parsing cost %q: %w", line, record[2], err)
		}
		if _, ok := costs[src]; !ok {
			costs[src] = make(map[string]float64)
		}
		costs[src][dst] = cost
	}
	return costs, nil
}

// resolveSubstitutionCosts loads the side's cost file, resolved relative to
// baseDir. Costs declared inline take precedence over the file.
func (c *Config) resolveSubstitutionCosts(side Side, baseDir string) error {
	w := c.sideRef(side).WeightedLevenshtein
	if w.SubstitutionCostsPath == "" {
		return nil
	}
	field := fmt.Sprintf("dictionary.%s.weightedLevenshtein.substitutionCostsPath", side)
	path := w.SubstitutionCostsPath
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return apperrors.Configf(field, "opening %s: %v", path, err)
	}
	defer f.Close()
	fromFile, err := ReadSubstitutionCosts(f)
	if err != nil {
		return apperrors.Configf(field, "%s: %v", path, err)
	}
	for src, row := range w.SubstitutionCosts {
		if _, ok := fromFile[src]; !ok {
			fromFile[src] = make(map[string]float64)
		}
		for dst, cost := range row {
			fromFile[src][dst] = cost
		}
	}
	ref := c.sideRef(side)
	ref.WeightedLevenshtein.SubstitutionCosts = fromFile
	ref.WeightedLevenshtein.SubstitutionCostsPath = path
	return nil
}

func (c *Config) sideRef(side Side) *SideConfig {
	if side == SideL2 {
		return &c.Dictionary.L2
	}
	return &c.Dictionary.L1
}

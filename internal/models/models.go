package models

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/IGLOU-EU/go-wildcard"
)

// Model names a structural motif with precomputed feature files.
type Model string

var ErrNoModels = errors.New("no models selected")

var known = [...]Model{
	"ASP_PROTEASE.4.ASP.OD1",
	"EF_HAND_1.1.ASP.OD1",
	"EF_HAND_1.1.ASP.OD2",
	"EF_HAND_1.9.GLN.NE2",
	"IG_MHC.3.CYS.SG",
	"PROTEIN_KINASE_ST.5.ASP.OD1",
	"TRYPSIN_HIS.5.HIS.ND1",
}

// All returns a fresh copy of the fixed model list. Callers may shuffle it.
func All() []Model {
	out := make([]Model, len(known))
	copy(out, known[:])
	return out
}

// Select filters the fixed list by shell-style patterns. No patterns selects everything.
func Select(patterns []string) ([]Model, error) {
	var ps []string
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			ps = append(ps, p)
		}
	}
	if len(ps) == 0 {
		return All(), nil
	}

	var out []Model
	for _, m := range known {
		for _, p := range ps {
			if wildcard.Match(p, string(m)) {
				out = append(out, m)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoModels
	}
	return out, nil
}

type Kind string

const (
	KindPos        Kind = "pos"
	KindNeg        Kind = "neg"
	KindImportance Kind = "importance"
)

// Sources holds the download roots. Feature files and importance scores live on different hosts.
type Sources struct {
	FeatureBase    string
	ImportanceBase string
}

var DefaultSources = Sources{
	FeatureBase:    "http://feature.stanford.edu/webfeature/models",
	ImportanceBase: "https://storage.googleapis.com/thesis-993.appspot.com/data/misc",
}

// Artifact is one file of a model's data set: where it comes from and where it goes.
type Artifact struct {
	Model Model
	Kind  Kind
	Path  string
	URL   string
}

type FileSet struct {
	Model      Model
	Dir        string
	Pos        Artifact
	Neg        Artifact
	Importance Artifact
}

// Artifacts returns the three files in fetch order.
func (fs FileSet) Artifacts() []Artifact {
	return []Artifact{fs.Pos, fs.Neg, fs.Importance}
}

// Files derives the data file set of m under <root>/data/<m>/.
func Files(root string, src Sources, m Model) FileSet {
	name := string(m)
	dir := filepath.Join(root, "data", name)
	feat := strings.TrimRight(src.FeatureBase, "/") + "/" + name + "/" + name
	imp := strings.TrimRight(src.ImportanceBase, "/") + "/" + name

	return FileSet{
		Model: m,
		Dir:   dir,
		Pos: Artifact{
			Model: m,
			Kind:  KindPos,
			Path:  filepath.Join(dir, name+".pos.ff.gz"),
			URL:   feat + ".pos.ff.gz",
		},
		Neg: Artifact{
			Model: m,
			Kind:  KindNeg,
			Path:  filepath.Join(dir, name+".neg.ff.gz"),
			URL:   feat + ".neg.ff.gz",
		},
		Importance: Artifact{
			Model: m,
			Kind:  KindImportance,
			Path:  filepath.Join(dir, name+".importance"),
			URL:   imp + ".importance",
		},
	}
}

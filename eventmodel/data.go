// Package eventmodel implements the event-based mixture stage likelihood
// model.  Each biomarker has a single abnormality event, so a progression
// sequence orders the biomarkers, and a subject at stage k has experienced
// the first k events of its subtype's sequence.
//
// The data of a subject are the likelihoods of its measurements under the
// abnormal and normal states of each biomarker, typically obtained from a
// two component mixture fit per biomarker.
package eventmodel

import (
	"fmt"

	"github.com/kshedden/sustain/sustainlib"
)

// Data holds the event likelihoods of a cohort.
type Data struct {

	// LYes[m][j] is the likelihood of subject m's value of biomarker j if
	// the biomarker is abnormal.
	LYes [][]float64

	// LNo[m][j] is the likelihood of subject m's value of biomarker j if
	// the biomarker is normal.
	LNo [][]float64

	// The number of biomarkers, kept so that cohorts with no subjects still
	// know their stage count
	nbio int
}

// NewData returns a cohort with the given event likelihoods.  lyes and lno
// must have the same shape, with one row per subject.
func NewData(lyes, lno [][]float64, nbio int) (*Data, error) {

	if len(lyes) != len(lno) {
		return nil, fmt.Errorf("eventmodel: %d rows of abnormal likelihoods but %d rows of normal likelihoods",
			len(lyes), len(lno))
	}

	for m := range lyes {
		if len(lyes[m]) != nbio || len(lno[m]) != nbio {
			return nil, fmt.Errorf("eventmodel: subject %d has %d and %d likelihoods, expected %d",
				m, len(lyes[m]), len(lno[m]), nbio)
		}
	}

	return &Data{
		LYes: lyes,
		LNo:  lno,
		nbio: nbio,
	}, nil
}

// NumSamples returns the number of subjects.
func (d *Data) NumSamples() int {
	return len(d.LYes)
}

// NumBiomarkers returns the number of biomarkers.
func (d *Data) NumBiomarkers() int {
	return d.nbio
}

// NumStages returns the number of events, one per biomarker.
func (d *Data) NumStages() int {
	return d.nbio
}

// Reindex returns a copy of the cohort holding the subjects in idx.
func (d *Data) Reindex(idx []int) sustainlib.Data {

	lyes := make([][]float64, len(idx))
	lno := make([][]float64, len(idx))
	for i, m := range idx {
		lyes[i] = append([]float64(nil), d.LYes[m]...)
		lno[i] = append([]float64(nil), d.LNo[m]...)
	}

	return &Data{
		LYes: lyes,
		LNo:  lno,
		nbio: d.nbio,
	}
}

package models

import (
	"strings"

	"github.com/jmoiron/sqlx/types"
)

// ComponentType enumerates the graded assessment categories of a subject.
type ComponentType string

const (
	ComponentESE  ComponentType = "ESE"
	ComponentCA   ComponentType = "CA"
	ComponentIA   ComponentType = "IA"
	ComponentTW   ComponentType = "TW"
	ComponentVIVA ComponentType = "VIVA"
)

// ParseComponentType normalises a raw component label.
func ParseComponentType(raw string) (ComponentType, bool) {
	switch ComponentType(strings.ToUpper(strings.TrimSpace(raw))) {
	case ComponentESE:
		return ComponentESE, true
	case ComponentCA:
		return ComponentCA, true
	case ComponentIA:
		return ComponentIA, true
	case ComponentTW:
		return ComponentTW, true
	case ComponentVIVA:
		return ComponentVIVA, true
	}
	return "", false
}

// Valid reports whether the value is one of the known component types.
func (c ComponentType) Valid() bool {
	_, ok := ParseComponentType(string(c))
	return ok
}

// ComponentWeightage holds the per-subject percentage split across components.
// Each column is a 0-100 percentage of the subject's maximum score.
type ComponentWeightage struct {
	ID            int64          `db:"id" json:"id"`
	SubjectCode   string         `db:"subject_code" json:"subject_code"`
	BatchID       *int64         `db:"batch_id" json:"batch_id,omitempty"`
	SemesterID    *int64         `db:"semester_id" json:"semester_id,omitempty"`
	ESE           float64        `db:"ese" json:"ese"`
	CA            float64        `db:"ca" json:"ca"`
	IA            float64        `db:"ia" json:"ia"`
	TW            float64        `db:"tw" json:"tw"`
	Viva          float64        `db:"viva" json:"viva"`
	SubComponents []SubComponent `json:"sub_components,omitempty"`
}

// WeightageFor returns the configured percentage for a main component type.
func (w *ComponentWeightage) WeightageFor(component ComponentType) float64 {
	if w == nil {
		return 0
	}
	switch component {
	case ComponentESE:
		return w.ESE
	case ComponentCA:
		return w.CA
	case ComponentIA:
		return w.IA
	case ComponentTW:
		return w.TW
	case ComponentVIVA:
		return w.Viva
	}
	return 0
}

// SubComponent is a finer subdivision of a component. When sub-components
// exist they carry the authoritative CO linkage and weighting for marks
// distribution, not the parent weightage row.
type SubComponent struct {
	ID                   int64          `db:"id" json:"id"`
	ComponentWeightageID int64          `db:"component_weightage_id" json:"component_weightage_id"`
	ComponentType        ComponentType  `db:"component_type" json:"component_type"`
	Name                 string         `db:"name" json:"name"`
	Weightage            float64        `db:"weightage" json:"weightage"`
	TotalMarks           float64        `db:"total_marks" json:"total_marks"`
	SelectedCOs          types.JSONText `db:"selected_cos" json:"selected_cos"`
}

// SelectedCOIDs decodes the JSON CO-id list attached to the sub-component.
func (s *SubComponent) SelectedCOIDs() ([]int64, error) {
	if len(s.SelectedCOs) == 0 {
		return nil, nil
	}
	var ids []int64
	if err := s.SelectedCOs.Unmarshal(&ids); err != nil {
		return nil, err
	}
	return ids, nil
}

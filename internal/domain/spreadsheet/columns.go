package spreadsheet

import (
	"github.com/preop/intake/internal/config"
)

// ColumnMap fixes where each field lives in the upstream surgery schedule.
// Indices are zero-based. The sheet has no dependable header row, so the
// positions are the contract.
type ColumnMap struct {
	SurgeryDate    int
	RegistrationID int
	Name           int
	Gender         int
	Age            int
	SurgeryName    int
	Doctor         int
	Phone          int
	Marker         int
	MarkerValue    string
	IDWidth        int
}

func DefaultColumnMap() ColumnMap {
	return ColumnMap{
		SurgeryDate:    5,
		RegistrationID: 7,
		Name:           8,
		Gender:         9,
		Age:            10,
		SurgeryName:    12,
		Doctor:         13,
		Phone:          30,
		Marker:         14,
		MarkerValue:    "Gen",
		IDWidth:        8,
	}
}

func ColumnMapFromConfig(cfg *config.Config) ColumnMap {
	return ColumnMap{
		SurgeryDate:    cfg.SheetColSurgeryDate,
		RegistrationID: cfg.SheetColRegistrationID,
		Name:           cfg.SheetColName,
		Gender:         cfg.SheetColGender,
		Age:            cfg.SheetColAge,
		SurgeryName:    cfg.SheetColSurgeryName,
		Doctor:         cfg.SheetColDoctor,
		Phone:          cfg.SheetColPhone,
		Marker:         cfg.SheetColMarker,
		MarkerValue:    cfg.SheetMarkerValue,
		IDWidth:        cfg.SheetIDWidth,
	}
}

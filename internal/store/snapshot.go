package store

import "github.com/johndauphine/chfile/internal/model"

// Snapshot is a point-in-time copy of a Store. Nil pointers mean the entry
// is absent.
type Snapshot struct {
	Connection      *model.ConnectionConfig
	File            *model.FileConfig
	Blob            *model.Blob
	Table           string
	TargetTable     string
	SelectedColumns []model.Column
	Join            *model.JoinConfig
	Extra           map[Key]any
}

// Has reports whether key is present in the snapshot.
func (s Snapshot) Has(key Key) bool {
	switch key {
	case KeyClickHouseConfig:
		return s.Connection != nil
	case KeyFlatFileConfig:
		return s.File != nil
	case KeyFile:
		return s.Blob != nil
	case KeyTableName:
		return s.Table != ""
	case KeyTargetTableName:
		return s.TargetTable != ""
	case KeySelectedColumns:
		return s.SelectedColumns != nil
	case KeyJoin:
		return s.Join != nil
	}
	_, ok := s.Extra[key]
	return ok
}

// EndpointConfigured reports whether the config for an endpoint kind
// (model.EndpointClickHouse or model.EndpointFlatFile) is stored.
func (s Snapshot) EndpointConfigured(kind string) bool {
	switch kind {
	case model.EndpointClickHouse:
		return s.Connection != nil
	case model.EndpointFlatFile:
		return s.File != nil
	}
	return false
}

// Selected returns only the included columns, in discovery order.
func (s Snapshot) Selected() []model.Column {
	return model.SelectedOnly(s.SelectedColumns)
}

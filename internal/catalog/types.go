// Package catalog defines the normalized records produced by the catalog
// parser and consumed by the store.
package catalog

// Make is a vehicle manufacturer. MakeID is the upstream numeric id in
// string form and is the natural key.
type Make struct {
	MakeID       string        `json:"make_id"`
	MakeName     string        `json:"make_name"`
	VehicleTypes []VehicleType `json:"vehicle_types,omitempty"`
}

// VehicleType is a vehicle category belonging to exactly one make.
// (MakeID, TypeID) is unique.
type VehicleType struct {
	TypeID   string `json:"type_id"`
	TypeName string `json:"type_name"`
	MakeID   string `json:"make_id"`
}

// Key returns the natural key used in logs, "makeId/typeId".
func (v VehicleType) Key() string {
	return v.MakeID + "/" + v.TypeID
}

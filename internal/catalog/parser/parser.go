// Package parser decodes the upstream catalog XML documents into normalized
// catalog records. Malformed entries are dropped and logged; only documents
// that cannot be decoded at all are reported as errors (wrapping ErrParse).
package parser

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/errors"
)

const byteOrderMark = "\ufeff"

// makesDocument is the getallmakes response:
//
//	<Response><Count/><Message/><Results><AllVehicleMakes>...</AllVehicleMakes>...</Results></Response>
type makesDocument struct {
	XMLName xml.Name `xml:"Response"`
	Count   string   `xml:"Count"`
	Message string   `xml:"Message"`
	Results *struct {
		Makes []rawMake `xml:"AllVehicleMakes"`
	} `xml:"Results"`
}

type rawMake struct {
	ID   string `xml:"Make_ID"`
	Name string `xml:"Make_Name"`
}

// vehicleTypesDocument is the GetVehicleTypesForMakeId response. The result
// element repeats once per vehicle type and may appear exactly once.
type vehicleTypesDocument struct {
	XMLName        xml.Name             `xml:"Response"`
	Count          string               `xml:"Count"`
	Message        string               `xml:"Message"`
	SearchCriteria string               `xml:"SearchCriteria"`
	Results        *vehicleTypesResults `xml:"Results"`
}

type vehicleTypesResults struct {
	VehicleTypes []rawVehicleType `xml:"VehicleTypesForMakeIds"`
}

type rawVehicleType struct {
	ID   string `xml:"VehicleTypeId"`
	Name string `xml:"VehicleTypeName"`
}

// DecodeMakes returns every make entry carrying both an id and a name, in
// document order. A document with zero valid entries yields an empty slice
// and a warning, not an error.
func DecodeMakes(doc string) ([]catalog.Make, error) {
	logger := slog.Default().With("component", "catalog-parser", "document", "makes")
	var parsed makesDocument
	if err := unmarshal(doc, &parsed); err != nil {
		return nil, apperrors.Newf(apperrors.ErrParse, "decoding makes document: %v", err)
	}
	if parsed.Results == nil {
		return nil, apperrors.New(apperrors.ErrParse, "makes document has no Results element")
	}

	makes := make([]catalog.Make, 0, len(parsed.Results.Makes))
	for _, raw := range parsed.Results.Makes {
		id, name := coerceID(raw.ID), coerceText(raw.Name)
		if id == "" || name == "" {
			logger.Debug("skipping make entry with missing field", "make_id", raw.ID, "make_name", raw.Name)
			continue
		}
		makes = append(makes, catalog.Make{MakeID: id, MakeName: name})
	}

	if dropped := len(parsed.Results.Makes) - len(makes); dropped > 0 {
		logger.Warn("dropped malformed make entries", "dropped", dropped, "kept", len(makes))
	}
	if len(makes) == 0 {
		logger.Warn("makes document contained no valid entries",
			"upstream_count", parsed.Count,
			"upstream_message", parsed.Message,
		)
	}
	return makes, nil
}

// DecodeVehicleTypes returns the vehicle types of one make. The result list
// may hold a single element or many; both are normalized into one slice
// before any entry is examined. MakeID is left for the caller to set.
func DecodeVehicleTypes(doc string) ([]catalog.VehicleType, error) {
	logger := slog.Default().With("component", "catalog-parser", "document", "vehicle_types")
	var parsed vehicleTypesDocument
	if err := unmarshal(doc, &parsed); err != nil {
		return nil, apperrors.Newf(apperrors.ErrParse, "decoding vehicle types document: %v", err)
	}

	shape := shapeOf(parsed.Results)
	if shape == shapeMissing {
		return nil, apperrors.New(apperrors.ErrParse, "vehicle types document has no Results element")
	}
	entries := normalize(shape, parsed.Results)

	types := make([]catalog.VehicleType, 0, len(entries))
	for _, raw := range entries {
		id, name := coerceID(raw.ID), coerceText(raw.Name)
		if id == "" || name == "" {
			logger.Debug("skipping vehicle type entry with missing field",
				"type_id", raw.ID,
				"type_name", raw.Name,
				"search_criteria", parsed.SearchCriteria,
			)
			continue
		}
		types = append(types, catalog.VehicleType{TypeID: id, TypeName: name})
	}
	logger.Debug("vehicle types decoded",
		"shape", shape.String(),
		"kept", len(types),
		"upstream_count", parsed.Count,
		"search_criteria", parsed.SearchCriteria,
	)
	return types, nil
}

// resultShape records how the upstream serialized a result list.
type resultShape int

const (
	shapeMissing resultShape = iota
	shapeEmpty
	shapeSingle
	shapeList
)

func (s resultShape) String() string {
	switch s {
	case shapeEmpty:
		return "empty"
	case shapeSingle:
		return "single"
	case shapeList:
		return "list"
	default:
		return "missing"
	}
}

func shapeOf(results *vehicleTypesResults) resultShape {
	switch {
	case results == nil:
		return shapeMissing
	case len(results.VehicleTypes) == 0:
		return shapeEmpty
	case len(results.VehicleTypes) == 1:
		return shapeSingle
	default:
		return shapeList
	}
}

func normalize(shape resultShape, results *vehicleTypesResults) []rawVehicleType {
	switch shape {
	case shapeSingle:
		return []rawVehicleType{results.VehicleTypes[0]}
	case shapeList:
		return results.VehicleTypes
	default:
		return nil
	}
}

func unmarshal(doc string, v any) error {
	doc = strings.TrimSpace(strings.TrimPrefix(doc, byteOrderMark))
	if doc == "" {
		return fmt.Errorf("empty document")
	}
	return xml.Unmarshal([]byte(doc), v)
}

// coerceID trims the value and canonicalizes integers ("007" -> "7") so the
// natural key is stable across upstream formatting changes.
func coerceID(v string) string {
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return v
}

func coerceText(v string) string {
	return strings.TrimSpace(v)
}

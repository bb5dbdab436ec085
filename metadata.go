package georaster

import (
	"encoding/binary"
	"fmt"
	"maps"
	"slices"
)

// A PixelFormat is the kind of pixels a raster holds.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatImage
	PixelFormatElevation
)

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatImage:
		return "imagery"
	case PixelFormatElevation:
		return "elevation"
	default:
		return "unknown"
	}
}

// A DataType is the element type of an elevation buffer.
type DataType int

const (
	DataTypeUnknown DataType = iota
	DataTypeInt8
	DataTypeInt16
	DataTypeInt32
	DataTypeFloat32
)

// Size returns the size in bytes of one element of type t.
func (t DataType) Size() int {
	switch t {
	case DataTypeInt8:
		return 1
	case DataTypeInt16:
		return 2
	case DataTypeInt32, DataTypeFloat32:
		return 4
	default:
		return 0
	}
}

func (t DataType) String() string {
	switch t {
	case DataTypeInt8:
		return "int8"
	case DataTypeInt16:
		return "int16"
	case DataTypeInt32:
		return "int32"
	case DataTypeFloat32:
		return "float32"
	default:
		return "unknown"
	}
}

// An ElevationUnit is the unit of elevation samples.
type ElevationUnit int

const (
	ElevationUnitUnknown ElevationUnit = iota
	ElevationUnitMeter
	ElevationUnitFoot
)

// Metadata keys, as returned by [Metadata.Keys].
const (
	KeyWidth             = "width"
	KeyHeight            = "height"
	KeySector            = "sector"
	KeyPixelFormat       = "pixel_format"
	KeyDataType          = "data_type"
	KeyByteOrder         = "byte_order"
	KeyMissingDataSignal = "missing_data_signal"
	KeyElevationUnit     = "elevation_unit"
)

// Metadata describes a raster. Width and height may be set only once.
// Format-specific values live in Extra.
type Metadata struct {
	width             int
	height            int
	Sector            *Sector
	PixelFormat       PixelFormat
	DataType          DataType
	ByteOrder         binary.ByteOrder
	MissingDataSignal *float64
	ElevationUnit     ElevationUnit
	Extra             map[string]any
}

// NewMetadata returns a new Metadata with the given dimensions and sector.
// Zero dimensions are left unset.
func NewMetadata(width, height int, sector Sector) *Metadata {
	m := &Metadata{}
	_ = m.SetWidth(width)
	_ = m.SetHeight(height)
	m.SetSector(sector)
	return m
}

// Width returns m's width and whether it is set.
func (m *Metadata) Width() (int, bool) {
	return m.width, m.width > 0
}

// Height returns m's height and whether it is set.
func (m *Metadata) Height() (int, bool) {
	return m.height, m.height > 0
}

// SetWidth sets m's width. Changing an already set width fails with
// ErrImmutableDimension.
func (m *Metadata) SetWidth(width int) error {
	return setDimension(&m.width, width, KeyWidth)
}

// SetHeight sets m's height. Changing an already set height fails with
// ErrImmutableDimension.
func (m *Metadata) SetHeight(height int) error {
	return setDimension(&m.height, height, KeyHeight)
}

func setDimension(dimension *int, value int, key string) error {
	switch {
	case value <= 0:
		return nil
	case *dimension == 0 || *dimension == value:
		*dimension = value
		return nil
	default:
		return fmt.Errorf("%s: %w (%d, not %d)", key, ErrImmutableDimension, *dimension, value)
	}
}

// SetSector sets m's sector.
func (m *Metadata) SetSector(sector Sector) {
	m.Sector = &sector
}

// SetMissingDataSignal sets m's missing data signal.
func (m *Metadata) SetMissingDataSignal(value float64) {
	m.MissingDataSignal = &value
}

// Clone returns a deep copy of m. Cloning nil returns an empty Metadata.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return &Metadata{}
	}
	c := *m
	if m.Sector != nil {
		sector := *m.Sector
		c.Sector = &sector
	}
	if m.MissingDataSignal != nil {
		value := *m.MissingDataSignal
		c.MissingDataSignal = &value
	}
	c.Extra = maps.Clone(m.Extra)
	return &c
}

// Inherit copies the format-defining values from parent into m where m does
// not already define them.
func (m *Metadata) Inherit(parent *Metadata) {
	if parent == nil {
		return
	}
	if m.PixelFormat == PixelFormatUnknown {
		m.PixelFormat = parent.PixelFormat
	}
	if m.DataType == DataTypeUnknown {
		m.DataType = parent.DataType
	}
	if m.ByteOrder == nil {
		m.ByteOrder = parent.ByteOrder
	}
	if m.MissingDataSignal == nil && parent.MissingDataSignal != nil {
		m.SetMissingDataSignal(*parent.MissingDataSignal)
	}
	if m.ElevationUnit == ElevationUnitUnknown {
		m.ElevationUnit = parent.ElevationUnit
	}
}

// Merge copies every value set in other into m where m does not already
// define it. Dimension conflicts are reported.
func (m *Metadata) Merge(other *Metadata) error {
	if other == nil {
		return nil
	}
	if width, ok := other.Width(); ok {
		if err := m.SetWidth(width); err != nil {
			return err
		}
	}
	if height, ok := other.Height(); ok {
		if err := m.SetHeight(height); err != nil {
			return err
		}
	}
	if m.Sector == nil && other.Sector != nil {
		m.SetSector(*other.Sector)
	}
	m.Inherit(other)
	for key, value := range other.Extra {
		if _, ok := m.Extra[key]; !ok {
			m.SetExtra(key, value)
		}
	}
	return nil
}

// SetExtra sets a format-specific value.
func (m *Metadata) SetExtra(key string, value any) {
	if m.Extra == nil {
		m.Extra = make(map[string]any)
	}
	m.Extra[key] = value
}

// Validate checks that the required width, height, and sector are set.
func (m *Metadata) Validate() error {
	var missing []string
	if m.width <= 0 {
		missing = append(missing, KeyWidth)
	}
	if m.height <= 0 {
		missing = append(missing, KeyHeight)
	}
	if m.Sector == nil {
		missing = append(missing, KeySector)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrIncompleteMetadata, missing)
	}
	return nil
}

// Keys returns the keys of the values set in m, standard keys first in a
// fixed order followed by the sorted extra keys.
func (m *Metadata) Keys() []string {
	var keys []string
	for _, kv := range []struct {
		key string
		set bool
	}{
		{KeyWidth, m.width > 0},
		{KeyHeight, m.height > 0},
		{KeySector, m.Sector != nil},
		{KeyPixelFormat, m.PixelFormat != PixelFormatUnknown},
		{KeyDataType, m.DataType != DataTypeUnknown},
		{KeyByteOrder, m.ByteOrder != nil},
		{KeyMissingDataSignal, m.MissingDataSignal != nil},
		{KeyElevationUnit, m.ElevationUnit != ElevationUnitUnknown},
	} {
		if kv.set {
			keys = append(keys, kv.key)
		}
	}
	return append(keys, slices.Sorted(maps.Keys(m.Extra))...)
}

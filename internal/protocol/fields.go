package protocol

// Config field names as used by the subprotocol and header mapping.
const (
	FieldVersion      = "version"
	FieldRegistryHash = "registryHash"
	FieldFeatureFlags = "featureFlags"
	FieldTerminalMode = "terminalMode"
	FieldRows         = "rows"
	FieldCols         = "cols"
)

// FieldSpec declares one addressable field within the descriptor layout.
type FieldSpec struct {
	Name   string
	Offset uint32
	Width  int
}

var fieldSpecs = []FieldSpec{
	{FieldVersion, OffsetVersion, 1},
	{FieldRegistryHash, OffsetRegistryHash, 4},
	{FieldFeatureFlags, OffsetFeatureFlags, 4},
	{FieldTerminalMode, OffsetTerminalMode, 1},
	{FieldRows, OffsetRows, 1},
	{FieldCols, OffsetCols, 1},
}

var (
	specByName   = map[string]FieldSpec{}
	specByOffset = map[uint32]FieldSpec{}
)

func init() {
	for _, spec := range fieldSpecs {
		specByName[spec.Name] = spec
		specByOffset[spec.Offset] = spec
	}
}

// FieldByName resolves a field name to its layout spec.
func FieldByName(name string) (FieldSpec, bool) {
	spec, ok := specByName[name]
	return spec, ok
}

// FieldByOffset resolves a byte offset to its layout spec.
func FieldByOffset(offset uint32) (FieldSpec, bool) {
	spec, ok := specByOffset[offset]
	return spec, ok
}

// MaxValue reports the largest value the field's wire slot can hold.
func (s FieldSpec) MaxValue() uint64 {
	return 1<<(8*uint(s.Width)) - 1
}

// WithField returns a copy of c with the named field replaced.
// The value must fit the field's wire width.
func (c ConfigState) WithField(name string, value uint64) (ConfigState, error) {
	spec, ok := specByName[name]
	if !ok {
		return ConfigState{}, ErrUnknownField
	}
	if value > spec.MaxValue() {
		return ConfigState{}, ErrValueOutOfRange
	}
	out := c
	switch name {
	case FieldVersion:
		out.Version = uint8(value)
	case FieldRegistryHash:
		out.RegistryHash = uint32(value)
	case FieldFeatureFlags:
		out.FeatureFlags = uint32(value)
	case FieldTerminalMode:
		out.TerminalMode = uint8(value)
	case FieldRows:
		out.Rows = uint8(value)
	case FieldCols:
		out.Cols = uint8(value)
	}
	return out, nil
}

// FieldValue reads the named field widened to uint64.
func (c ConfigState) FieldValue(name string) (uint64, error) {
	switch name {
	case FieldVersion:
		return uint64(c.Version), nil
	case FieldRegistryHash:
		return uint64(c.RegistryHash), nil
	case FieldFeatureFlags:
		return uint64(c.FeatureFlags), nil
	case FieldTerminalMode:
		return uint64(c.TerminalMode), nil
	case FieldRows:
		return uint64(c.Rows), nil
	case FieldCols:
		return uint64(c.Cols), nil
	default:
		return 0, ErrUnknownField
	}
}

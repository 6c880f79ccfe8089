package project

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/morgaesis/GitHub-Migrator/internal/github"
	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

// errUnencodable marks a source value that has no equivalent on the
// target field.
var errUnencodable = errors.New("value cannot be encoded for target field")

// encode converts a source item value into the update input for target
// field f. Single-select and iteration values are resolved by label.
func encode(f types.ProjectField, v types.FieldValue) (github.ProjectV2FieldValue, error) {
	var out github.ProjectV2FieldValue
	switch f.DataType {
	case types.FieldText:
		s := v.String()
		out.Text = &s
	case types.FieldNumber:
		n := v.Number
		if n == nil {
			parsed, err := strconv.ParseFloat(v.String(), 64)
			if err != nil {
				return out, fmt.Errorf("%w: %q is not a number", errUnencodable, v.String())
			}
			n = &parsed
		}
		out.Number = n
	case types.FieldDate:
		d := v.Date
		if d == "" {
			d = v.String()
		}
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return out, fmt.Errorf("%w: %q is not a date", errUnencodable, d)
		}
		out.Date = &d
	case types.FieldSingleSelect:
		opt, ok := f.OptionByName(v.String())
		if !ok || opt.ID == "" {
			return out, fmt.Errorf("%w: no option %q on field %q", errUnencodable, v.String(), f.Name)
		}
		out.SingleSelectOptionID = &opt.ID
	case types.FieldIteration:
		it, ok := f.IterationByTitle(v.String())
		if !ok || it.ID == "" {
			return out, fmt.Errorf("%w: no iteration %q on field %q", errUnencodable, v.String(), f.Name)
		}
		out.IterationID = &it.ID
	default:
		return out, fmt.Errorf("%w: unsupported field type %s", errUnencodable, f.DataType)
	}
	return out, nil
}

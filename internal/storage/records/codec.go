package records

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tbills/internal/domain"
)

// encodingVersion prefixes every stored entity.
const encodingVersion byte = 1

// Encode serializes an entity into its versioned byte form.
func Encode(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(domain.ErrSerialization, err.Error())
	}

	out := make([]byte, 0, len(payload)+1)
	out = append(out, encodingVersion)

	return append(out, payload...), nil
}

// Decode restores an entity from its versioned byte form.
func Decode[V any](data []byte) (V, error) {
	var v V
	if len(data) == 0 {
		return v, domain.ErrSerialization.Withf("empty record")
	}
	if data[0] != encodingVersion {
		return v, domain.ErrSerialization.Withf("unsupported record version %d", data[0])
	}
	if err := json.Unmarshal(data[1:], &v); err != nil {
		return v, errors.Wrap(domain.ErrSerialization, err.Error())
	}

	return v, nil
}

package presentations

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// MaxSelection bounds how many contributions one presentation may reference.
const MaxSelection = 200

const maxNameLength = 190

var (
	errEmptySelection    = errors.New("no contributions selected")
	errInvalidSelection  = errors.New("contribution ids must be positive integers")
	errSelectionTooLarge = errors.New("too many contributions selected")
	errNameTooLong       = errors.New("presentation name is too long")
)

// normalizeSelection validates submitted ids and drops duplicates, keeping the first occurrence.
func normalizeSelection(ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, errEmptySelection
	}
	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, errInvalidSelection
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) > MaxSelection {
		return nil, errSelectionTooLarge
	}
	return unique, nil
}

// normalizeName trims the optional name; blank names are stored as NULL.
func normalizeName(name *string) (*string, error) {
	if name == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil, nil
	}
	if len(trimmed) > maxNameLength {
		return nil, errNameTooLong
	}
	return &trimmed, nil
}

func encodeIDList(ids []int64) (string, error) {
	encoded, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// decodeIDList parses a stored id list. Non-JSON or non-array data yields an empty list and
// ok=false. Entries that are not positive integers (numbers or numeric strings) are skipped and
// duplicates collapse onto their first occurrence.
func decodeIDList(stored string) (ids []int64, ok bool) {
	var raw []any
	if err := json.Unmarshal([]byte(stored), &raw); err != nil || raw == nil {
		return []int64{}, false
	}

	seen := make(map[int64]struct{}, len(raw))
	ids = make([]int64, 0, len(raw))
	for _, entry := range raw {
		id, valid := coerceID(entry)
		if !valid {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, true
}

func coerceID(entry any) (int64, bool) {
	switch value := entry.(type) {
	case float64:
		if value <= 0 || value != math.Trunc(value) || value >= math.MaxInt64 {
			return 0, false
		}
		return int64(value), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || parsed <= 0 {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

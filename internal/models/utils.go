package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is a jsonb column holding one JSON object. A nil map is stored as
// SQL NULL.
type JSONMap map[string]interface{}

func (JSONMap) GormDataType() string {
	return "jsonb"
}

func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONMap) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("decode JSONMap: %w", err)
	}
	*j = decoded
	return nil
}

package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// ReactionSet maps an emoji to the set of user ids that reacted with it.
// It implements driver.Valuer and sql.Scanner so it can be used as a gorm JSON column.
type ReactionSet map[string][]int64

// Toggle adds userId under emoji if absent and removes it if present. An emoji key
// whose set becomes empty is dropped entirely. Reports whether the user was added.
func (r ReactionSet) Toggle(emoji string, userId int64) bool {
	ids := r[emoji]
	for i, id := range ids {
		if id == userId {
			ids = append(ids[:i], ids[i+1:]...)
			if len(ids) == 0 {
				delete(r, emoji)
			} else {
				r[emoji] = ids
			}
			return false
		}
	}
	r[emoji] = append(ids, userId)
	return true
}

func (r ReactionSet) Has(emoji string, userId int64) bool {
	for _, id := range r[emoji] {
		if id == userId {
			return true
		}
	}
	return false
}

// Value return json value, implement driver.Valuer interface
func (r ReactionSet) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	ba, err := json.Marshal(map[string][]int64(r))
	return string(ba), err
}

// Scan scan value into the map, implements sql.Scanner interface
func (r *ReactionSet) Scan(val interface{}) error {
	if val == nil {
		*r = ReactionSet{}
		return nil
	}
	var ba []byte
	switch v := val.(type) {
	case []byte:
		ba = v
	case string:
		ba = []byte(v)
	default:
		return errors.New(fmt.Sprint("Failed to unmarshal JSONB value:", val))
	}
	t := map[string][]int64{}
	err := json.Unmarshal(ba, &t)
	*r = ReactionSet(t)
	return err
}

// GormDataType gorm common data type
func (r ReactionSet) GormDataType() string {
	return "reactionset"
}

// GormDBDataType gorm db data type
func (ReactionSet) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "sqlite":
		return "JSON"
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}

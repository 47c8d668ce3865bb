package data

import (
	"github.com/stake-plus/govboard/src/board/types"
	"gorm.io/gorm"
)

// Settings is a snapshot of the settings table. A nil *Settings behaves as
// an empty table so callers can run without a database.
type Settings struct {
	values map[string]string
}

// LoadSettings reads every row of the settings table, creating the table on
// first use.
func LoadSettings(db *gorm.DB) (*Settings, error) {
	if err := db.AutoMigrate(&types.Setting{}); err != nil {
		return nil, err
	}
	var rows []types.Setting
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	s := &Settings{values: make(map[string]string, len(rows))}
	for _, r := range rows {
		s.values[r.Name] = r.Value
	}
	return s, nil
}

// NewSettings builds a Settings from literal values.
func NewSettings(values map[string]string) *Settings {
	s := &Settings{values: make(map[string]string, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

func (s *Settings) Get(name string) string {
	if s == nil {
		return ""
	}
	return s.values[name]
}

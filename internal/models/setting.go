package models

// Setting maps to the key/value `settings` table.
type Setting struct {
	ID    uint   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Key   string `gorm:"column:key;size:191;uniqueIndex" json:"key"`
	Value string `gorm:"column:value;type:text" json:"value"`
}

func (Setting) TableName() string {
	return "settings"
}

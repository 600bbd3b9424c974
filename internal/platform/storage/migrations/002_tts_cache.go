package migrations

import (
	"gorm.io/gorm"
)

// Migration002TTSCache 语音缓存元数据表
type Migration002TTSCache struct{}

func (m *Migration002TTSCache) Version() string {
	return "002_tts_cache"
}

func (m *Migration002TTSCache) Description() string {
	return "Create TTS cache metadata table"
}

func (m *Migration002TTSCache) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tts_cache_entries (
			cache_key VARCHAR(64) PRIMARY KEY,
			storage_path TEXT NOT NULL,
			url TEXT NOT NULL,
			content_type VARCHAR(64),
			speaker_id INTEGER NOT NULL,
			text_length INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			url_expires_at DATETIME NOT NULL,
			cache_expires_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return err
	}

	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_tts_cache_entries_cache_expires_at ON tts_cache_entries(cache_expires_at)`).Error
}

func (m *Migration002TTSCache) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS tts_cache_entries`).Error
}

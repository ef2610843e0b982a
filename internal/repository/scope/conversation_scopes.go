package scope

import "gorm.io/gorm"

func OrderByLastUpdateDesc(db *gorm.DB) *gorm.DB {
	return db.Order("last_update_time DESC")
}

// MessagesInOrder preloads messages in the order they were appended.
func MessagesInOrder(db *gorm.DB) *gorm.DB {
	return db.Preload("Messages", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("seq ASC")
	})
}

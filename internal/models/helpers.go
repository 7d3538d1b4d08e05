package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func GenerateSearchID() string {
	return uuid.New().String()
}

func GenerateEventID() string {
	return fmt.Sprintf("evt_%s_%d",
		time.Now().Format("20060102"),
		uuid.New().ID())
}

func GenerateTaskID() string {
	return fmt.Sprintf("task_%s", uuid.New().String())
}

// Pages returns how many pages of size pageSize hold total items.
func Pages(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

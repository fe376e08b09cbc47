package util

import (
	"fmt"

	"github.com/gosimple/slug"
	"github.com/lithammer/shortuuid/v4"
)

const (
	alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
)

// GenerateRoundID builds a readable, unique round identifier from the item name,
// e.g. "smartwatch-7KQ2M9XA".
func GenerateRoundID(itemName string) string {
	baseSlug := slug.Make(itemName)
	if baseSlug == "" {
		baseSlug = "round"
	}
	shortID := shortuuid.NewWithAlphabet(alphabet)[:8]

	return fmt.Sprintf("%s-%s", baseSlug, shortID)
}

// GenerateTaskID generates a unique asynq task ID for a round timer.
func GenerateTaskID(prefix string) string {
	return fmt.Sprintf("%s:%s", prefix, shortuuid.New())
}

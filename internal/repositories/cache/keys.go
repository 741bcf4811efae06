package cache

import (
	"fmt"
	"strings"
)

type EntityType string

const (
	EntityQRRegistry EntityType = "qr_registry"
	EntitySettlement EntityType = "settlement"
)

type KeyType string

const (
	KeyOwner   KeyType = "owner"
	KeyRequest KeyType = "request"
)

// GenerateKey creates a standardized cache key
func GenerateKey(entity EntityType, keyType KeyType, parts ...interface{}) string {
	segments := make([]string, 0, len(parts)+2)
	segments = append(segments, string(entity), string(keyType))
	for _, p := range parts {
		s := fmt.Sprint(p)
		if s == "" {
			s = "-"
		}
		segments = append(segments, s)
	}
	return strings.Join(segments, ":")
}

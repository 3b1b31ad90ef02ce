package util

import (
	"os"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"
)

const defaultUserCacheSize = 1000

var (
	userIDCache *lru.Cache[string, uint]
	userCacheMu sync.RWMutex
)

// InitUserIDCache initializes the email -> user id LRU cache with given capacity.
// If capacity <= 0, a default of 1000 is used.
func InitUserIDCache(capacity int) {
	if capacity <= 0 {
		capacity = defaultUserCacheSize
	}
	c, err := lru.New[string, uint](capacity)
	if err != nil {
		Logger().Sugar().Warnf("user id cache disabled: %v", err)
		return
	}
	userCacheMu.Lock()
	userIDCache = c
	userCacheMu.Unlock()
}

// InitUserIDCacheFromEnv initializes the cache using the env var USER_ID_CACHE_SIZE
func InitUserIDCacheFromEnv() {
	n, _ := strconv.Atoi(os.Getenv("USER_ID_CACHE_SIZE"))
	InitUserIDCache(n)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserIDCacheGet returns the user id cached for email.
func UserIDCacheGet(email string) (uint, bool) {
	userCacheMu.RLock()
	c := userIDCache
	userCacheMu.RUnlock()
	if c == nil {
		return 0, false
	}
	return c.Get(normalizeEmail(email))
}

// UserIDCacheSet stores the user id for email.
func UserIDCacheSet(email string, userID uint) {
	userCacheMu.RLock()
	c := userIDCache
	userCacheMu.RUnlock()
	if c == nil || userID == 0 {
		return
	}
	c.Add(normalizeEmail(email), userID)
}

// LookupUserIDByEmail resolves an account id from an email using the cache, falling back to DB.
// Unknown emails return 0 and are not cached so a later signup is picked up.
func LookupUserIDByEmail(db *gorm.DB, email string) uint {
	email = normalizeEmail(email)
	if email == "" {
		return 0
	}
	if id, ok := UserIDCacheGet(email); ok {
		return id
	}
	if db == nil {
		return 0
	}
	var u struct{ ID uint }
	if err := db.Table("users").Select("id").Where("LOWER(email) = ? AND deleted_at IS NULL", email).Take(&u).Error; err != nil {
		return 0
	}
	UserIDCacheSet(email, u.ID)
	return u.ID
}

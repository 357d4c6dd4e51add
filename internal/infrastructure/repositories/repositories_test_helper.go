package repositories

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "open sqlite")
	return db
}

func mustExec(t *testing.T, db *gorm.DB, q string, args ...interface{}) {
	t.Helper()
	require.NoError(t, db.Exec(q, args...).Error, "exec failed: query=%s", q)
}

func createLinkTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE links (
		id TEXT PRIMARY KEY,
		wallet_token TEXT NOT NULL,
		session_token TEXT NOT NULL,
		client_token TEXT,
		app_info TEXT,
		pub_key TEXT,
		current_rpc TEXT,
		current_accounts TEXT,
		priv_data TEXT,
		notify_wallet BOOLEAN,
		active BOOLEAN NOT NULL,
		linked_at DATETIME,
		unlinked_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	);`)
}

func createNotificationEndpointTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE webrtc_notification_endpoint (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		eth_address TEXT,
		wallet_token TEXT,
		device_token TEXT,
		device_type TEXT,
		active BOOLEAN,
		last_online DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	);`)
}

func createReferralTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE webrtc_referrals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		eth_address TEXT,
		attest_url TEXT,
		referral_url TEXT,
		created_at DATETIME
	);`)
}

func createUserInfoTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE webrtc_user_info (
		eth_address TEXT PRIMARY KEY,
		ipfs_hash TEXT,
		info TEXT,
		updated_at DATETIME
	);`)
}

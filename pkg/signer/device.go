package signer

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	deviceIDModulus = 1_000_000_000_000_000_000
	deviceIDOffset  = 7_000_000_000_000_000_000
)

// DeviceIdentity はブラウザを装うための端末識別子の組です。
// クライアント生成時に一度だけ作り、以降のすべての呼び出しで使い回します。
type DeviceIdentity struct {
	DeviceID string
	WebID    string
	UserID   string
}

// NewDeviceIdentity は現在時刻から端末 ID と Web ID を、UUID からユーザー ID を生成します。
func NewDeviceIdentity(now time.Time) DeviceIdentity {
	return DeviceIdentity{
		DeviceID: deriveID(now),
		WebID:    deriveID(now),
		UserID:   uuid.NewString(),
	}
}

// deriveID は (unixMicro % 1e18) + 7e18 を10進文字列にします。
func deriveID(now time.Time) string {
	v := uint64(now.UnixMicro())%deviceIDModulus + deviceIDOffset
	return strconv.FormatUint(v, 10)
}

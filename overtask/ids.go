// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overtask

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewLocalID mints an on-device identity of the form <prefix><unix-millis>_<9 chars>
func NewLocalID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:9]
	return prefix + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix
}

// NewLocalTaskID mints a locally-owned task identity pending promotion
func NewLocalTaskID(now time.Time) string { return NewLocalID(LocalTaskPrefix, now) }

// NewLocalUserID mints a locally-owned user identity for offline login
func NewLocalUserID(now time.Time) string { return NewLocalID(LocalUserPrefix, now) }

// NewChecklistItemID mints a checklist item identity
func NewChecklistItemID(now time.Time) string { return NewLocalID(LocalItemPrefix, now) }

// IsLocalTaskID reports whether id was minted on-device and awaits promotion
func IsLocalTaskID(id string) bool { return strings.HasPrefix(id, LocalTaskPrefix) }

// IsLocalUserID reports whether id was minted on-device during an offline login
func IsLocalUserID(id string) bool { return strings.HasPrefix(id, LocalUserPrefix) }
